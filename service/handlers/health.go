package handlers

import (
	"net/http"
)

func (h *AuthServer) IndexEndpoint(rw http.ResponseWriter, req *http.Request) error {
	return h.writeJSON(rw, http.StatusOK, map[string]string{
		"service": h.service.Name(),
		"status":  "ok",
	})
}

// HealthCheckEndpoint reports liveness. Database reachability is checked by
// attempting to obtain a read connection.
func (h *AuthServer) HealthCheckEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	db := h.service.DB(ctx, true)
	if db == nil {
		return h.writeJSON(rw, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})
	}

	return h.writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}
