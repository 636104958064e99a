package rest

import (
	"errors"
	"net/http"
	"time"

	"appointment-scheduler/internal/schedule"
)

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Reason string `json:"reason,omitempty"`
	Field  string `json:"field,omitempty"`

	ConflictingID string     `json:"conflictingAppointmentId,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	Party         string     `json:"party,omitempty"`
	UserID        string     `json:"userId,omitempty"`
	Current       *int       `json:"current,omitempty"`
	Max           *int       `json:"max,omitempty"`
	Allowed       []string   `json:"allowed,omitempty"`
}

// respondError writes err with the status of its scheduling error kind.
// Errors outside the taxonomy become a bare 500.
func respondError(w http.ResponseWriter, err error) {
	var (
		vErr *schedule.ValidationError
		cErr *schedule.ConflictError
		aErr *schedule.AuthorizationError
		sErr *schedule.StateError
		nErr *schedule.NotFoundError
	)
	body := errorBody{Error: err.Error(), Kind: schedule.ErrorKind(err)}
	code := http.StatusInternalServerError

	switch {
	case errors.As(err, &vErr):
		code = http.StatusBadRequest
		body.Reason, body.Field = string(vErr.Reason), vErr.Field
	case errors.As(err, &sErr):
		code = http.StatusBadRequest
		body.Reason = string(sErr.Kind)
		for _, s := range sErr.Allowed {
			body.Allowed = append(body.Allowed, string(s))
		}
	case errors.As(err, &cErr):
		code = http.StatusConflict
		body.Reason = string(cErr.Kind)
		if cErr.Kind == schedule.CapacityExceeded {
			body.Party, body.UserID = string(cErr.Party), cErr.UserID
			body.Current, body.Max = &cErr.Current, &cErr.Max
		} else {
			body.ConflictingID = cErr.AppointmentID
			body.Start, body.End = &cErr.Start, &cErr.End
		}
	case errors.As(err, &aErr):
		code = http.StatusForbidden
		body.Reason = string(aErr.Kind)
	case errors.As(err, &nErr):
		code = http.StatusNotFound
		body.Reason = string(nErr.Kind)
	default:
		body = errorBody{Error: "internal error", Kind: "unexpected"}
	}
	respondJSON(w, code, body)
}
