package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"appointment-scheduler/internal/config"
	"appointment-scheduler/internal/discovery"
	"appointment-scheduler/internal/events"
	gweb "appointment-scheduler/internal/grpcweb"
	"appointment-scheduler/internal/handler"
	"appointment-scheduler/internal/logging"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/realtime"
	"appointment-scheduler/internal/rest"
	"appointment-scheduler/internal/service"
	"appointment-scheduler/internal/store"
	"appointment-scheduler/internal/sweep"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, closeRepo, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()
	if err := seedUsers(ctx, repo, cfg.Database.SeedUsers); err != nil {
		return err
	}

	// events go to websocket clients and to NATS, or the log without a broker
	hub := realtime.NewHub(log, cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	pubs := events.Fanout{events.RegistryPublisher{Registry: hub}}
	if cfg.NATS.URL != "" {
		np, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer np.Close()
		pubs = append(pubs, np)
	} else {
		pubs = append(pubs, events.LogPublisher{Logger: log})
	}

	svc := service.New(repo, pubs, service.Options{
		EnforceBufferOnCreate: cfg.Scheduling.EnforceBufferOnCreate,
		SweepBatch:            cfg.Scheduling.SweepBatch,
		Logger:                log,
	})

	// grpc server
	rl := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer rl.Close()
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.Auth(cfg.Auth.JWTSecret),
			middleware.RateLimit(rl, handler.FullMethod("CreateAppointment")),
		),
	)
	handler.Register(srv, handler.New(svc))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errc := make(chan error, 2)
	go func() {
		log.Info("grpc listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			errc <- fmt.Errorf("grpc: %w", err)
		}
	}()

	// grpc-web bridge dials the local grpc listener
	bridge, err := gweb.New(fmt.Sprintf("localhost:%d", cfg.Server.GRPCPort), log, cfg.Server.AllowedOrigins)
	if err != nil {
		return err
	}
	defer bridge.Close()

	api := rest.New(svc, rest.Options{
		Secret:  cfg.Auth.JWTSecret,
		Logger:  log,
		Limiter: rl,
		Hub:     hub,
		GRPCWeb: bridge.Handler(),
	})
	httpSrv := &http.Server{
		Addr:              cfg.WebAddr(),
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info("http listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http: %w", err)
		}
	}()

	sweeper := sweep.New(svc, log, cfg.Scheduling.SweepInterval.Std())
	go sweeper.Start(ctx)

	var reg *discovery.Registration
	if cfg.Consul.Address != "" {
		if reg, err = discovery.Register(cfg, log); err != nil {
			log.Warn("consul registration failed", "error", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
		log.Error("listener failed", "error", runErr)
	}

	hs.Shutdown()
	if reg != nil {
		if err := reg.Deregister(); err != nil {
			log.Error("consul deregister failed", "error", err)
		}
	}
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	srv.GracefulStop()
	log.Info("server stopped")
	return runErr
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Repository, func(), error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store; data is lost on exit")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	log.Info("connected to postgres")

	st := store.New(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info("migrations applied")
	return st, pool.Close, nil
}

func seedUsers(ctx context.Context, repo store.Repository, ids []string) error {
	for _, id := range ids {
		if _, err := repo.GetUser(ctx, id); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		if err := repo.CreateUser(ctx, &model.User{ID: id, Email: id + "@localhost", Name: id}); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
	}
	return nil
}
