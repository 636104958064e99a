package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
	"appointment-scheduler/internal/service"
)

type idRequest struct {
	ID string `json:"id"`
}

func (r idRequest) validate() error {
	if r.ID == "" {
		return status.Error(codes.InvalidArgument, "id required")
	}
	return nil
}

type appointmentResponse struct {
	Appointment *model.Appointment `json:"appointment"`
}

func appointmentReply(a *model.Appointment, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(appointmentResponse{Appointment: a})
}

func (h *Handler) CreateAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req service.CreateRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "start and end required")
	}
	return appointmentReply(h.svc.CreateAppointment(ctx, userID, req))
}

func (h *Handler) GetAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req idRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return appointmentReply(h.svc.GetAppointment(ctx, req.ID, userID))
}

func (h *Handler) ListAppointments(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	list, err := h.svc.ListAppointments(ctx, userID, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(struct {
		Appointments []model.Appointment `json:"appointments"`
	}{list})
}

func (h *Handler) UpdateAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		idRequest
		service.Patch
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return appointmentReply(h.svc.UpdateAppointment(ctx, req.ID, userID, req.Patch))
}

func (h *Handler) CancelAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		idRequest
		Reason string `json:"reason"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return appointmentReply(h.svc.CancelAppointment(ctx, req.ID, userID, req.Reason))
}

func (h *Handler) GetAvailableSlots(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if _, err := uid(ctx); err != nil {
		return nil, err
	}
	var req struct {
		UserID string `json:"userId"`
		Date   string `json:"date"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" || req.Date == "" {
		return nil, status.Error(codes.InvalidArgument, "userId and date required")
	}
	slots, err := h.svc.GetAvailableSlots(ctx, req.UserID, req.Date)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(struct {
		Slots []schedule.Slot `json:"slots"`
	}{slots})
}

type profileResponse struct {
	UserID  string                    `json:"userId"`
	Profile model.AvailabilityProfile `json:"profile"`
}

func (h *Handler) GetProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.UserID == "" {
		req.UserID = userID
	}
	p, err := h.svc.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(profileResponse{UserID: req.UserID, Profile: p})
}

// UpdateProfile always edits the caller's own profile.
func (h *Handler) UpdateProfile(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var patch schedule.ProfilePatch
	if err := decode(in, &patch); err != nil {
		return nil, err
	}
	p, err := h.svc.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(profileResponse{UserID: userID, Profile: p})
}

func (h *Handler) RecordAttendance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req idRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return appointmentReply(h.svc.RecordAttendance(ctx, req.ID, userID))
}

func (h *Handler) RateAppointment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := uid(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		idRequest
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return appointmentReply(h.svc.RateAppointment(ctx, req.ID, userID, req.Rating, req.Feedback))
}
