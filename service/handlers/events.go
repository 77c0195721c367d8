package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/wardenhq/service-identity/service/models"
)

func (h *AuthServer) MySecurityEventsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	events, err := h.recorder.ListForAccount(ctx, account.ID, queryLimit(req))
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, eventPayloads(events))
}

// AdminSecurityEventsEndpoint lists events across accounts, filtered by
// risk level or the unresolved flag.
func (h *AuthServer) AdminSecurityEventsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	query := req.URL.Query()
	limit := queryLimit(req)

	var events []*models.SecurityEvent
	var err error

	switch {
	case query.Get("unresolved") == "true":
		events, err = h.recorder.ListUnresolved(ctx, limit)
	case query.Get("risk") != "":
		events, err = h.recorder.ListByRiskLevel(ctx, query.Get("risk"), limit)
	case query.Get("accountId") != "":
		events, err = h.recorder.ListForAccount(ctx, query.Get("accountId"), limit)
	default:
		events, err = h.recorder.ListByRiskLevel(ctx, models.RiskLevelHigh, limit)
	}
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, eventPayloads(events))
}

func (h *AuthServer) ResolveSecurityEventEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	event, err := h.recorder.Resolve(ctx, mux.Vars(req)["eventID"])
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, newSecurityEventPayload(event))
}

func eventPayloads(events []*models.SecurityEvent) []securityEventPayload {
	payloads := make([]securityEventPayload, len(events))
	for i, event := range events {
		payloads[i] = newSecurityEventPayload(event)
	}
	return payloads
}

func queryLimit(req *http.Request) int {
	limit, err := strconv.Atoi(req.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	return limit
}
