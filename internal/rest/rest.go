// Package rest serves the scheduling API as JSON over HTTP.
package rest

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"appointment-scheduler/internal/handler"
	"appointment-scheduler/internal/logging"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/service"
)

// WebSocketServer upgrades a request into an event stream for userID.
type WebSocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

type Options struct {
	Secret string
	Logger *slog.Logger
	// Limiter throttles POST /appointments when set.
	Limiter *middleware.RateLimiter
	Hub     WebSocketServer
	// GRPCWeb, when set, is mounted under the gRPC service path.
	GRPCWeb http.Handler
}

type API struct {
	router *mux.Router
	svc    *service.Service
	hub    WebSocketServer
	log    *slog.Logger
}

func New(svc *service.Service, opts Options) *API {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &API{router: mux.NewRouter(), svc: svc, hub: opts.Hub, log: log.With("component", "rest")}

	r := a.router
	r.Use(a.requestID, a.logRequests)
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	if opts.GRPCWeb != nil {
		// the bridge forwards Authorization to the gRPC interceptors
		r.PathPrefix("/" + handler.ServiceName + "/").Handler(opts.GRPCWeb)
	}

	p := r.PathPrefix("/").Subrouter()
	p.Use(middleware.HTTPAuth(opts.Secret))
	if opts.Limiter != nil {
		p.Use(middleware.HTTPRateLimit(opts.Limiter, func(r *http.Request) bool {
			return r.Method == http.MethodPost && r.URL.Path == "/appointments"
		}))
	}

	p.HandleFunc("/appointments", a.createAppointment).Methods(http.MethodPost)
	p.HandleFunc("/appointments", a.listAppointments).Methods(http.MethodGet)
	p.HandleFunc("/appointments/availability/{userId}/slots", a.availableSlots).Methods(http.MethodGet)
	p.HandleFunc("/appointments/{id}", a.getAppointment).Methods(http.MethodGet)
	p.HandleFunc("/appointments/{id}", a.updateAppointment).Methods(http.MethodPatch)
	p.HandleFunc("/appointments/{id}", a.cancelAppointment).Methods(http.MethodDelete)
	p.HandleFunc("/appointments/{id}/attendance", a.recordAttendance).Methods(http.MethodPost)
	p.HandleFunc("/appointments/{id}/rating", a.rateAppointment).Methods(http.MethodPut)
	p.HandleFunc("/availability/{userId}", a.getProfile).Methods(http.MethodGet)
	p.HandleFunc("/availability", a.updateProfile).Methods(http.MethodPatch)
	if a.hub != nil {
		p.HandleFunc("/ws", a.serveWS).Methods(http.MethodGet)
	}
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.router.ServeHTTP(w, r) }

func (a *API) Router() *mux.Router { return a.router }

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	uid, _ := middleware.UserID(r.Context())
	a.hub.ServeWS(w, r, uid)
}

func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := logging.ContextWithLogger(r.Context(), a.log.With("request_id", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logging.Or(r.Context(), a.log).Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rr *statusRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (rr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rr.status = http.StatusSwitchingProtocols
	return http.NewResponseController(rr.ResponseWriter).Hijack()
}

func (rr *statusRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
