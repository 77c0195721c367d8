package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *AuthServer) ListSessionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)
	currentTokenID := tokenIDFromContext(ctx)

	sessions, err := h.orchestrator.Sessions(ctx, account)
	if err != nil {
		return err
	}

	payloads := make([]sessionPayload, len(sessions))
	for i, session := range sessions {
		payloads[i] = sessionPayload{
			ID:             session.ID,
			IPAddress:      session.IPAddress,
			UserAgent:      session.UserAgent,
			DeviceName:     session.DeviceName,
			LastActivityAt: session.LastActivityAt,
			ExpiresAt:      session.ExpiresAt,
			Current:        session.AccessTokenID == currentTokenID,
		}
	}
	return h.writeJSON(rw, http.StatusOK, payloads)
}

func (h *AuthServer) RevokeSessionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	err := h.orchestrator.RevokeSession(ctx, account, mux.Vars(req)["sessionID"], h.eventContext(req))
	if err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}
