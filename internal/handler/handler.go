// Package handler exposes the scheduling service over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the REST API.
package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"appointment-scheduler/internal/service"
)

const ServiceName = "scheduler.v1.SchedulingService"

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// SchedulingServer is the server API of ServiceName.
type SchedulingServer interface {
	CreateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAppointments(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailableSlots(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecordAttendance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RateAppointment(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryFunc func(SchedulingServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(SchedulingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(SchedulingServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		method("CreateAppointment", SchedulingServer.CreateAppointment),
		method("GetAppointment", SchedulingServer.GetAppointment),
		method("ListAppointments", SchedulingServer.ListAppointments),
		method("UpdateAppointment", SchedulingServer.UpdateAppointment),
		method("CancelAppointment", SchedulingServer.CancelAppointment),
		method("GetAvailableSlots", SchedulingServer.GetAvailableSlots),
		method("GetProfile", SchedulingServer.GetProfile),
		method("UpdateProfile", SchedulingServer.UpdateProfile),
		method("RecordAttendance", SchedulingServer.RecordAttendance),
		method("RateAppointment", SchedulingServer.RateAppointment),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scheduler/v1/scheduling.proto",
}

func Register(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Client is a minimal caller for ServiceName.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Call(ctx context.Context, name string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
