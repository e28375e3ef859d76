package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - Login & Sessions
	RouteLogin       = "/api/auth/login"
	RouteVerifyCode  = "/api/auth/verify-code"
	RouteAccessToken = "/api/auth/access-token"
	RouteLogout      = "/api/auth/logout"
	RouteDevices     = "/api/auth/devices"
	RouteDevice      = "/api/auth/devices/{id}"

	// Auth Routes - Registration & Email
	RouteRegister                 = "/api/auth/register"
	RouteRequestVerificationEmail = "/api/auth/request-verification-email"
	RouteVerifyEmail              = "/api/auth/verify-email"
	RouteRequestMagicLink         = "/api/auth/request-magic-link"
	RouteChangeEmail              = "/api/auth/change-email"
	RouteConfirmEmailChange       = "/api/auth/confirm-email-change"

	// Auth Routes - Password Management
	RouteChangePassword = "/api/auth/change-password"
	RouteResetPassword  = "/api/auth/reset-password"
	RouteNewPassword    = "/api/auth/new-password"

	// Users
	RouteUser = "/api/users/{userId}"
)

// Operations protected by claim requirements.
const (
	OperationReadUser = "users.read"
)
