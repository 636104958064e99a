package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/model"
	"appointment-scheduler/internal/schedule"
	"appointment-scheduler/internal/service"
)

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := a.svc.CreateAppointment(r.Context(), caller(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, appt)
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	from, ok := timeParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := timeParam(w, r, "to")
	if !ok {
		return
	}
	list, err := a.svc.ListAppointments(r.Context(), caller(r), from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []model.Appointment{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := a.svc.GetAppointment(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (a *API) updateAppointment(w http.ResponseWriter, r *http.Request) {
	var patch service.Patch
	if !decode(w, r, &patch) {
		return
	}
	appt, err := a.svc.UpdateAppointment(r.Context(), mux.Vars(r)["id"], caller(r), patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (a *API) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	appt, err := a.svc.CancelAppointment(r.Context(), mux.Vars(r)["id"], caller(r), req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (a *API) recordAttendance(w http.ResponseWriter, r *http.Request) {
	appt, err := a.svc.RecordAttendance(r.Context(), mux.Vars(r)["id"], caller(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (a *API) rateAppointment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rating   int    `json:"rating"`
		Feedback string `json:"feedback"`
	}
	if !decode(w, r, &req) {
		return
	}
	appt, err := a.svc.RateAppointment(r.Context(), mux.Vars(r)["id"], caller(r), req.Rating, req.Feedback)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, appt)
}

func (a *API) availableSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		respondError(w, schedule.Invalid(schedule.ReasonMissingField, "date", "date is required"))
		return
	}
	slots, err := a.svc.GetAvailableSlots(r.Context(), mux.Vars(r)["userId"], date)
	if err != nil {
		respondError(w, err)
		return
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}
	respondJSON(w, http.StatusOK, slots)
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.GetProfile(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var patch schedule.ProfilePatch
	if !decode(w, r, &patch) {
		return
	}
	p, err := a.svc.UpdateProfile(r.Context(), caller(r), patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func caller(r *http.Request) string {
	uid, _ := middleware.UserID(r.Context())
	return uid
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body: " + err.Error(), Kind: "validation"})
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	respondJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body: " + err.Error(), Kind: "validation"})
	return false
}

func timeParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondError(w, schedule.Invalid(schedule.ReasonInvalidDate, name, "expected RFC3339"))
		return time.Time{}, false
	}
	return t, true
}
