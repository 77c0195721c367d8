package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/wardenhq/service-identity/service/business"
	"github.com/wardenhq/service-identity/service/models"
)

type adminResetPasswordRequest struct {
	Password string `json:"password"`
}

// targetAccount resolves the {accountID} path variable. Events emitted on the
// admin surface are attributed to the target account, not the operator.
func (h *AuthServer) targetAccount(req *http.Request) (*models.Account, business.EventContext, error) {
	ctx := req.Context()

	account, err := h.accountRepo.GetByID(ctx, mux.Vars(req)["accountID"])
	if err != nil {
		return nil, business.EventContext{}, err
	}
	if account == nil {
		return nil, business.EventContext{}, business.ErrNotFound
	}

	evtCtx := h.eventContext(req)
	evtCtx.AccountID = account.ID
	return account, evtCtx, nil
}

func (h *AuthServer) AdminGetUserEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, _, err := h.targetAccount(req)
	if err != nil {
		return err
	}

	roles, err := h.authz.AccountRoles(ctx, account.ID)
	if err != nil {
		return err
	}
	permissions, err := h.authz.EffectivePermissions(ctx, account.ID)
	if err != nil {
		return err
	}

	rolePayloads := make([]rolePayload, len(roles))
	for i, role := range roles {
		rolePayloads[i] = newRolePayload(role)
	}
	return h.writeJSON(rw, http.StatusOK, map[string]any{
		"account":     newAccountPayload(account),
		"roles":       rolePayloads,
		"permissions": permissions,
	})
}

func (h *AuthServer) AdminActivateUserEndpoint(rw http.ResponseWriter, req *http.Request) error {
	return h.setUserActive(rw, req, true)
}

func (h *AuthServer) AdminDeactivateUserEndpoint(rw http.ResponseWriter, req *http.Request) error {
	return h.setUserActive(rw, req, false)
}

func (h *AuthServer) setUserActive(rw http.ResponseWriter, req *http.Request, active bool) error {
	ctx := req.Context()

	account, evtCtx, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.orchestrator.SetActive(ctx, account, active, evtCtx); err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, newAccountPayload(account))
}

func (h *AuthServer) AdminForceLogoutEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, evtCtx, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.orchestrator.LogoutAll(ctx, account, evtCtx); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminResetPasswordEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, evtCtx, err := h.targetAccount(req)
	if err != nil {
		return err
	}

	var body adminResetPasswordRequest
	if err = json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if len(body.Password) < minPasswordLength {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "password is too short"})
	}

	if err = h.orchestrator.AdminResetPassword(ctx, account, body.Password, evtCtx); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminDisableTwoFactorEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, evtCtx, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.twoFactor.AdminDisable(ctx, account, evtCtx); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminAssignRoleEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, _, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.authz.AssignRoleToAccount(ctx, account.ID, mux.Vars(req)["roleID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminRemoveRoleEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, _, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.authz.RemoveRoleFromAccount(ctx, account.ID, mux.Vars(req)["roleID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminGrantPermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, _, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.authz.GrantDirectPermission(ctx, account.ID, mux.Vars(req)["permissionID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) AdminRevokePermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()

	account, _, err := h.targetAccount(req)
	if err != nil {
		return err
	}
	if err = h.authz.RevokeDirectPermission(ctx, account.ID, mux.Vars(req)["permissionID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}
