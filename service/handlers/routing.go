package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/csrf"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func (h *AuthServer) wrapHandler(f func(w http.ResponseWriter, r *http.Request) error, path, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := f(w, r)
		if err != nil {
			h.service.Log(r.Context()).WithError(err).
				WithField("path", path).WithField("name", name).Error("handler error")
			h.writeBusinessError(r.Context(), w, err)
		}
	})
}

func (h *AuthServer) addSecureHandler(router *mux.Router,
	f func(w http.ResponseWriter, r *http.Request) error, path string, name string, method string) {

	router.Path(path).
		Name(name).
		Handler(h.authenticate(h.wrapHandler(f, path, name))).
		Methods(method)
}

func (h *AuthServer) addPermissionHandler(router *mux.Router, permission string,
	f func(w http.ResponseWriter, r *http.Request) error, path string, name string, method string) {

	router.Path(path).
		Name(name).
		Handler(h.authenticate(h.requirePermission(permission, h.wrapHandler(f, path, name)))).
		Methods(method)
}

func (h *AuthServer) addProviderHandler(router *mux.Router,
	f func(w http.ResponseWriter, r *http.Request) error, path string, name string, method string) {

	router.Path(path).
		Name(name).
		Handler(h.requireProviderSecret(h.wrapHandler(f, path, name))).
		Methods(method)
}

func (h *AuthServer) addAPIKeyHandler(router *mux.Router, scope string,
	f func(w http.ResponseWriter, r *http.Request) error, path string, name string, method string) {

	router.Path(path).
		Name(name).
		Handler(h.requireAPIKey(scope, h.wrapHandler(f, path, name))).
		Methods(method)
}

// SetupRouterV1 wires every endpoint and the outer middleware stack.
func (h *AuthServer) SetupRouterV1(ctx context.Context) http.Handler {
	router := mux.NewRouter().StrictSlash(true)

	h.addHandler(router, h.IndexEndpoint, "/", "IndexEndpoint", "GET")
	h.addHandler(router, h.HealthCheckEndpoint, "/healthz", "HealthCheckEndpoint", "GET")

	// Authentication flows
	h.addHandler(router, h.RegisterEndpoint, "/v1/auth/register", "RegisterEndpoint", "POST")
	h.addHandler(router, h.LoginEndpoint, "/v1/auth/login", "LoginEndpoint", "POST")
	h.addHandler(router, h.VerifyTwoFactorEndpoint, "/v1/auth/two-factor", "VerifyTwoFactorEndpoint", "POST")
	h.addSecureHandler(router, h.LogoutEndpoint, "/v1/auth/logout", "LogoutEndpoint", "POST")
	h.addSecureHandler(router, h.LogoutAllEndpoint, "/v1/auth/logout-all", "LogoutAllEndpoint", "POST")
	h.addSecureHandler(router, h.MeEndpoint, "/v1/auth/me", "MeEndpoint", "GET")
	h.addSecureHandler(router, h.MyPermissionsEndpoint, "/v1/auth/me/permissions", "MyPermissionsEndpoint", "GET")
	h.addSecureHandler(router, h.ChangePasswordEndpoint, "/v1/auth/password", "ChangePasswordEndpoint", "POST")

	// Two factor management
	h.addSecureHandler(router, h.EnableTwoFactorEndpoint, "/v1/two-factor/enable", "EnableTwoFactorEndpoint", "POST")
	h.addSecureHandler(router, h.ConfirmTwoFactorEndpoint, "/v1/two-factor/confirm", "ConfirmTwoFactorEndpoint", "POST")
	h.addSecureHandler(router, h.DisableTwoFactorEndpoint, "/v1/two-factor/disable", "DisableTwoFactorEndpoint", "POST")
	h.addSecureHandler(router, h.RecoveryCodesEndpoint, "/v1/two-factor/recovery-codes", "RecoveryCodesEndpoint", "GET")
	h.addSecureHandler(router, h.RegenerateRecoveryCodesEndpoint, "/v1/two-factor/recovery-codes", "RegenerateRecoveryCodesEndpoint", "POST")

	// Provider identities. Completion is posted by the trusted provider
	// integration, never by end users directly.
	h.addProviderHandler(router, h.CompleteOAuthEndpoint, "/v1/oauth/{provider}/complete", "CompleteOAuthEndpoint", "POST")
	h.addSecureHandler(router, h.LinkOAuthEndpoint, "/v1/oauth/{provider}/link", "LinkOAuthEndpoint", "POST")
	h.addSecureHandler(router, h.UnlinkOAuthEndpoint, "/v1/oauth/{provider}", "UnlinkOAuthEndpoint", "DELETE")
	h.addSecureHandler(router, h.LinkedOAuthEndpoint, "/v1/oauth/linked", "LinkedOAuthEndpoint", "GET")

	// API keys
	h.addSecureHandler(router, h.CreateAPIKeyEndpoint, "/v1/api-keys", "CreateAPIKeyEndpoint", "POST")
	h.addSecureHandler(router, h.ListAPIKeyEndpoint, "/v1/api-keys", "ListAPIKeyEndpoint", "GET")
	h.addSecureHandler(router, h.GetAPIKeyEndpoint, "/v1/api-keys/{keyID}", "GetAPIKeyEndpoint", "GET")
	h.addSecureHandler(router, h.UpdateAPIKeyEndpoint, "/v1/api-keys/{keyID}", "UpdateAPIKeyEndpoint", "PUT")
	h.addSecureHandler(router, h.DeleteAPIKeyEndpoint, "/v1/api-keys/{keyID}", "DeleteAPIKeyEndpoint", "DELETE")

	// Machine callers authenticate with an API key
	h.addAPIKeyHandler(router, "read", h.IntegrationWhoAmIEndpoint, "/v1/integrations/whoami", "IntegrationWhoAmIEndpoint", "GET")

	// Sessions
	h.addSecureHandler(router, h.ListSessionsEndpoint, "/v1/sessions", "ListSessionsEndpoint", "GET")
	h.addSecureHandler(router, h.RevokeSessionEndpoint, "/v1/sessions/{sessionID}", "RevokeSessionEndpoint", "DELETE")

	// Security events
	h.addSecureHandler(router, h.MySecurityEventsEndpoint, "/v1/security-events", "MySecurityEventsEndpoint", "GET")
	h.addPermissionHandler(router, "view security events", h.AdminSecurityEventsEndpoint, "/v1/admin/security-events", "AdminSecurityEventsEndpoint", "GET")
	h.addPermissionHandler(router, "resolve security events", h.ResolveSecurityEventEndpoint, "/v1/admin/security-events/{eventID}/resolve", "ResolveSecurityEventEndpoint", "POST")

	// Account administration
	h.addPermissionHandler(router, "view users", h.AdminGetUserEndpoint, "/v1/admin/users/{accountID}", "AdminGetUserEndpoint", "GET")
	h.addPermissionHandler(router, "edit users", h.AdminActivateUserEndpoint, "/v1/admin/users/{accountID}/activate", "AdminActivateUserEndpoint", "POST")
	h.addPermissionHandler(router, "edit users", h.AdminDeactivateUserEndpoint, "/v1/admin/users/{accountID}/deactivate", "AdminDeactivateUserEndpoint", "POST")
	h.addPermissionHandler(router, "edit users", h.AdminForceLogoutEndpoint, "/v1/admin/users/{accountID}/force-logout", "AdminForceLogoutEndpoint", "POST")
	h.addPermissionHandler(router, "edit users", h.AdminResetPasswordEndpoint, "/v1/admin/users/{accountID}/reset-password", "AdminResetPasswordEndpoint", "POST")
	h.addPermissionHandler(router, "edit users", h.AdminDisableTwoFactorEndpoint, "/v1/admin/users/{accountID}/disable-two-factor", "AdminDisableTwoFactorEndpoint", "POST")
	h.addPermissionHandler(router, "assign roles", h.AdminAssignRoleEndpoint, "/v1/admin/users/{accountID}/roles/{roleID}", "AdminAssignRoleEndpoint", "POST")
	h.addPermissionHandler(router, "assign roles", h.AdminRemoveRoleEndpoint, "/v1/admin/users/{accountID}/roles/{roleID}", "AdminRemoveRoleEndpoint", "DELETE")
	h.addPermissionHandler(router, "assign permissions", h.AdminGrantPermissionEndpoint, "/v1/admin/users/{accountID}/permissions/{permissionID}", "AdminGrantPermissionEndpoint", "POST")
	h.addPermissionHandler(router, "assign permissions", h.AdminRevokePermissionEndpoint, "/v1/admin/users/{accountID}/permissions/{permissionID}", "AdminRevokePermissionEndpoint", "DELETE")

	// Role and permission catalogue
	h.addPermissionHandler(router, "view roles", h.ListRolesEndpoint, "/v1/admin/roles", "ListRolesEndpoint", "GET")
	h.addPermissionHandler(router, "create roles", h.CreateRoleEndpoint, "/v1/admin/roles", "CreateRoleEndpoint", "POST")
	h.addPermissionHandler(router, "edit roles", h.UpdateRoleEndpoint, "/v1/admin/roles/{roleID}", "UpdateRoleEndpoint", "PUT")
	h.addPermissionHandler(router, "delete roles", h.DeleteRoleEndpoint, "/v1/admin/roles/{roleID}", "DeleteRoleEndpoint", "DELETE")
	h.addPermissionHandler(router, "view roles", h.RolePermissionsEndpoint, "/v1/admin/roles/{roleID}/permissions", "RolePermissionsEndpoint", "GET")
	h.addPermissionHandler(router, "edit roles", h.SetRolePermissionsEndpoint, "/v1/admin/roles/{roleID}/permissions", "SetRolePermissionsEndpoint", "PUT")
	h.addPermissionHandler(router, "edit roles", h.GrantRolePermissionEndpoint, "/v1/admin/roles/{roleID}/permissions/{permissionID}", "GrantRolePermissionEndpoint", "POST")
	h.addPermissionHandler(router, "edit roles", h.RevokeRolePermissionEndpoint, "/v1/admin/roles/{roleID}/permissions/{permissionID}", "RevokeRolePermissionEndpoint", "DELETE")
	h.addPermissionHandler(router, "view permissions", h.ListPermissionsEndpoint, "/v1/admin/permissions", "ListPermissionsEndpoint", "GET")
	h.addPermissionHandler(router, "administer system", h.CreatePermissionEndpoint, "/v1/admin/permissions", "CreatePermissionEndpoint", "POST")
	h.addPermissionHandler(router, "administer system", h.DeletePermissionEndpoint, "/v1/admin/permissions/{permissionID}", "DeletePermissionEndpoint", "DELETE")

	return h.outerMiddleware(router)
}

// outerMiddleware layers panic recovery and the CSRF gate. CSRF tokens only
// matter for cookie authenticated browser calls, so requests carrying their
// own credential header bypass the check.
func (h *AuthServer) outerMiddleware(router http.Handler) http.Handler {
	protect := csrf.Protect(
		[]byte(h.config.CsrfSecret),
		csrf.Secure(!h.config.ExposeErrors),
		csrf.RequestHeader("X-CSRF-Token"),
	)

	csrfGate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get("X-API-Key") != "" {
			router.ServeHTTP(w, r)
			return
		}
		protect(router).ServeHTTP(w, r)
	})

	return ghandlers.RecoveryHandler()(csrfGate)
}
