package handlers

import (
	"net/http"

	"github.com/linesmerrill/chama-disputes-api/api"
	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

// AdminDispute serves the platform review queue and analytics
type AdminDispute struct {
	Service *disputes.Service
}

type reviewRequest struct {
	Decision              string `json:"decision"`
	PlatformActionDetails string `json:"platformActionDetails"`
}

// EscalatedHandler returns the review queue, oldest escalation first
func (a AdminDispute) EscalatedHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	ds, err := a.Service.ListEscalated(ctx, actor, limit, offset)
	if err != nil {
		writeError(w, "failed to get escalated disputes", err)
		return
	}
	if len(ds) == 0 {
		ds = []models.Dispute{}
	}
	writeJSON(w, http.StatusOK, ds)
}

// ReviewHandler records the platform decision on an escalated dispute
func (a AdminDispute) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := disputeID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, "failed to decode request", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	dispute, err := a.Service.ReviewEscalatedDispute(ctx, actor, id, req.Decision, req.PlatformActionDetails)
	if err != nil {
		writeError(w, "failed to review dispute", err)
		return
	}
	writeJSON(w, http.StatusOK, dispute)
}

// AnalyticsHandler summarizes disputes created between startDate and endDate
func (a AdminDispute) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	start, err := parseDate(r.URL.Query().Get("startDate"), false)
	if err != nil {
		writeError(w, "invalid startDate", err)
		return
	}
	end, err := parseDate(r.URL.Query().Get("endDate"), true)
	if err != nil {
		writeError(w, "invalid endDate", err)
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	report, err := a.Service.Analytics(ctx, actor, start, end)
	if err != nil {
		writeError(w, "failed to build dispute analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
