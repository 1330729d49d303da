package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/config"
	"github.com/linesmerrill/chama-disputes-api/disputes"
)

// statusFor maps the dispute error taxonomy to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, disputes.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, disputes.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, disputes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, disputes.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, disputes.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, message string, err error) {
	config.ErrorStatus(message, statusFor(err), w, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(disputes.ErrInvalidArgument, err)
	}
	return nil
}

// actorFrom returns the authenticated caller, writing a 401 when there is none
func actorFrom(w http.ResponseWriter, r *http.Request) (disputes.Actor, bool) {
	actor, ok := api.ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, errors.New("no authenticated user"))
	}
	return actor, ok
}

func disputeID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		config.ErrorStatus("failed to get objectID from Hex", http.StatusBadRequest, w, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

// pagination reads limit and offset. Missing or malformed values fall back
// to zero, which the service treats as its defaults.
func pagination(r *http.Request) (limit, offset int64) {
	limit, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)
	if err != nil && r.URL.Query().Get("limit") != "" {
		zap.S().Warnw("limit not a number, using default", "limit", r.URL.Query().Get("limit"))
	}
	offset, _ = strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseDate accepts RFC3339 or YYYY-MM-DD. A bare date used as an end bound
// covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Join(disputes.ErrInvalidArgument, err)
	}
	if endOfDay {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}
