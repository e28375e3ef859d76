package server

import (
	"net/http"

	"github.com/jrsteele09/go-identity-server/authz"
	"github.com/jrsteele09/go-identity-server/users"
)

func (s *Server) initRoutes() {
	// CORS preflight for every API route
	s.RegisterRouteFunc("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))

	// LOGIN
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteVerifyCode, ChainMiddleware(s.VerifyCodeHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAccessToken, ChainMiddleware(s.AccessTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.AuthenticateIfValid)...))

	// DEVICES
	s.RegisterRouteFunc("GET "+RouteDevices, ChainMiddleware(s.DevicesHandler(), s.APIMiddleware(s.Authenticate, s.RequireAuth)...))
	s.RegisterRouteFunc("DELETE "+RouteDevice, ChainMiddleware(s.RevokeDeviceHandler(), s.APIMiddleware(s.Authenticate, s.RequireAuth)...))

	// REGISTRATION & EMAIL
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRequestVerificationEmail, ChainMiddleware(s.RequestVerificationEmailHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteVerifyEmail, ChainMiddleware(s.VerifyEmailHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteRequestMagicLink, ChainMiddleware(s.RequestMagicLinkHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteChangeEmail, ChainMiddleware(s.ChangeEmailHandler(), s.APIMiddleware(s.Authenticate, s.RequireAuth)...))
	s.RegisterRouteFunc("POST "+RouteConfirmEmailChange, ChainMiddleware(s.ConfirmEmailChangeHandler(), s.APIMiddleware(s.Authenticate, s.RequireAuth)...))

	// PASSWORDS
	s.RegisterRouteFunc("POST "+RouteChangePassword, ChainMiddleware(s.ChangePasswordHandler(), s.APIMiddleware(s.Authenticate, s.RequireAuth)...))
	s.RegisterRouteFunc("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteNewPassword, ChainMiddleware(s.NewPasswordHandler(), s.APIMiddleware()...))

	// USERS
	s.RegisterRouteFunc("GET "+RouteUser, ChainMiddleware(s.GetUserHandler(),
		s.APIMiddleware(s.Authenticate, s.RequireAuth, s.evaluator.Middleware(OperationReadUser))...))
}

func (s *Server) registerRequirements() {
	s.registry.Register(OperationReadUser, authz.Requirement{
		ClaimType:     "user:{userId}",
		ClaimValue:    "read",
		OverrideRoles: users.RoleAdministrator,
	})
}
