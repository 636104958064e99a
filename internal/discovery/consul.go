// Package discovery registers the service with a Consul agent.
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"

	"appointment-scheduler/internal/config"
)

// Registration is a live Consul service registration.
type Registration struct {
	client    *consulapi.Client
	serviceID string
	log       *slog.Logger
}

// Register announces the gRPC port under cfg.Consul.ServiceName with an HTTP
// health check against the web port's /health.
func Register(cfg *config.Config, log *slog.Logger) (*Registration, error) {
	cc := consulapi.DefaultConfig()
	cc.Address = cfg.Consul.Address

	client, err := consulapi.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	host := cfg.Server.Host
	if host == "" {
		host = "localhost"
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      cfg.Consul.ServiceID,
		Name:    cfg.Consul.ServiceName,
		Address: cfg.Server.Host,
		Port:    cfg.Server.GRPCPort,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.WebPort)) + "/health",
			Interval:                       cfg.Consul.CheckInterval.Std().String(),
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: cfg.Consul.DeregisterCriticalServiceAfter.Std().String(),
		},
		Tags: []string{"scheduling", "grpc", "v1"},
		Meta: map[string]string{"web_port": strconv.Itoa(cfg.Server.WebPort)},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	log.Info("registered with consul", "service_id", cfg.Consul.ServiceID, "address", cfg.Consul.Address)
	return &Registration{client: client, serviceID: cfg.Consul.ServiceID, log: log}, nil
}

func (r *Registration) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister %s: %w", r.serviceID, err)
	}
	r.log.Info("deregistered from consul", "service_id", r.serviceID)
	return nil
}
