package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type roleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

type permissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *AuthServer) ListRolesEndpoint(rw http.ResponseWriter, req *http.Request) error {
	roles, err := h.authz.ListRoles(req.Context())
	if err != nil {
		return err
	}

	payloads := make([]rolePayload, len(roles))
	for i, role := range roles {
		payloads[i] = newRolePayload(role)
	}
	return h.writeJSON(rw, http.StatusOK, payloads)
}

func (h *AuthServer) CreateRoleEndpoint(rw http.ResponseWriter, req *http.Request) error {
	var body roleRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if body.Name == "" {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "a role name is required"})
	}

	role, err := h.authz.CreateRole(req.Context(), body.Name, body.Description, body.PermissionIDs)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusCreated, newRolePayload(role))
}

func (h *AuthServer) UpdateRoleEndpoint(rw http.ResponseWriter, req *http.Request) error {
	var body roleRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	role, err := h.authz.UpdateRole(req.Context(), mux.Vars(req)["roleID"], body.Name, body.Description)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, newRolePayload(role))
}

func (h *AuthServer) DeleteRoleEndpoint(rw http.ResponseWriter, req *http.Request) error {
	if err := h.authz.DeleteRole(req.Context(), mux.Vars(req)["roleID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) RolePermissionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	permissions, err := h.authz.RolePermissions(req.Context(), mux.Vars(req)["roleID"])
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, permissionPayloads(permissions))
}

func (h *AuthServer) SetRolePermissionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	ctx := req.Context()
	roleID := mux.Vars(req)["roleID"]

	var body rolePermissionsRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}

	if err := h.authz.SetRolePermissions(ctx, roleID, body.PermissionIDs); err != nil {
		return err
	}

	permissions, err := h.authz.RolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, permissionPayloads(permissions))
}

func (h *AuthServer) GrantRolePermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	if err := h.authz.GrantRolePermission(req.Context(), vars["roleID"], vars["permissionID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) RevokeRolePermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	if err := h.authz.RevokeRolePermission(req.Context(), vars["roleID"], vars["permissionID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *AuthServer) ListPermissionsEndpoint(rw http.ResponseWriter, req *http.Request) error {
	permissions, err := h.authz.ListPermissions(req.Context())
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusOK, permissionPayloads(permissions))
}

func (h *AuthServer) CreatePermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	var body permissionRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "could not decode request body"})
	}
	if body.Name == "" {
		return h.writeJSON(rw, http.StatusUnprocessableEntity,
			ErrorResponse{Code: http.StatusUnprocessableEntity, Message: "a permission name is required"})
	}

	permission, err := h.authz.CreatePermission(req.Context(), body.Name, body.Description)
	if err != nil {
		return err
	}
	return h.writeJSON(rw, http.StatusCreated, newPermissionPayload(permission))
}

func (h *AuthServer) DeletePermissionEndpoint(rw http.ResponseWriter, req *http.Request) error {
	if err := h.authz.DeletePermission(req.Context(), mux.Vars(req)["permissionID"]); err != nil {
		return err
	}

	rw.WriteHeader(http.StatusNoContent)
	return nil
}
