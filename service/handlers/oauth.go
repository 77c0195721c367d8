package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pitabwire/frame"
	"github.com/pitabwire/util"
	"github.com/wardenhq/service-identity/service/business"
)

// providerAssertionRequest is the verified identity payload posted by a
// provider integration once it has completed the upstream exchange.
type providerAssertionRequest struct {
	SubjectID string         `json:"subjectId"`
	Email     string         `json:"email"`
	Name      string         `json:"name"`
	Username  string         `json:"username"`
	AvatarURL string         `json:"avatarUrl"`
	Raw       map[string]any `json:"raw"`
}

func (r providerAssertionRequest) assertion() business.ProviderAssertion {
	return business.ProviderAssertion{
		SubjectID: r.SubjectID,
		Email:     r.Email,
		Name:      r.Name,
		Username:  r.Username,
		AvatarURL: r.AvatarURL,
		Raw:       frame.JSONMap(r.Raw),
	}
}

// CompleteOAuthEndpoint reconciles a provider assertion and opens a session
// for the resolved account.
func (h *AuthServer) CompleteOAuthEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	provider := mux.Vars(req)["provider"]

	var body providerAssertionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	evtCtx := business.EventContext{IPAddress: util.GetIP(req), UserAgent: req.UserAgent()}
	reconciled, err := h.oauth.Reconcile(ctx, provider, body.assertion(), evtCtx)
	if err != nil {
		return err
	}

	result, err := h.orchestrator.CompleteSocialLogin(ctx, reconciled.Account, evtCtx.IPAddress, evtCtx.UserAgent)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if reconciled.IsNewAccount {
		status = http.StatusCreated
	}

	h.setSessionCookie(rw, result.Token, result.ExpiresAt)
	payload := h.loginPayload(result)
	return h.writeJSON(rw, status, map[string]any{
		"token":        payload.Token,
		"expiresAt":    payload.ExpiresAt,
		"account":      payload.Account,
		"isNewAccount": reconciled.IsNewAccount,
		"isNewLink":    reconciled.IsNewLink,
	})
}

func (h *AuthServer) LinkOAuthEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)
	provider := mux.Vars(req)["provider"]

	var body providerAssertionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	link, err := h.oauth.Link(ctx, account, provider, body.assertion(), h.eventContext(req))
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusCreated, newIdentityPayload(link))
}

func (h *AuthServer) UnlinkOAuthEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)
	provider := mux.Vars(req)["provider"]

	if err := h.oauth.Unlink(ctx, account, provider, h.eventContext(req)); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) LinkedOAuthEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	account := accountFromContext(ctx)

	identities, err := h.oauth.Linked(ctx, account)
	if err != nil {
		return err
	}

	payloads := make([]identityPayload, len(identities))
	for i, identity := range identities {
		payloads[i] = newIdentityPayload(identity)
	}
	return h.writeJSON(rw, http.StatusOK, payloads)
}
