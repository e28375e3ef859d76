// Package auth turns login attempts, refresh cookies and one-time codes into
// access tokens, and runs the account lifecycle flows that end in a sign in.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-identity-server/email"
	"github.com/jrsteele09/go-identity-server/identity"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/internal/utils"
	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	"github.com/jrsteele09/go-identity-server/users"
)

// LoginStatus is the outcome of a successful credential check.
type LoginStatus int

const (
	LoginSucceeded LoginStatus = iota
	LoginTwoFactorRequired
	LoginEmailVerificationRequired
)

func (s LoginStatus) String() string {
	switch s {
	case LoginSucceeded:
		return "Succeeded"
	case LoginTwoFactorRequired:
		return "TwoFactorRequired"
	case LoginEmailVerificationRequired:
		return "EmailVerificationRequired"
	}
	return "Unknown"
}

// LoginResult carries an access token only when Status is LoginSucceeded.
type LoginResult struct {
	Status      LoginStatus
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
}

// Device is a device session as shown to its owner.
type Device struct {
	ID         string    `json:"id"`
	Device     string    `json:"device"`
	LastSeen   time.Time `json:"lastSeen"`
	LastSeenIP string    `json:"lastSeenIp"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Service provides the login, refresh and account lifecycle flows.
type Service struct {
	store                    identity.Store
	resolver                 *CredentialResolver
	tokens                   *token.Manager
	refreshTokens            *refresh.Manager
	sender                   email.Sender
	requireEmailVerification bool
	forceTwoFactor           bool
	adminEmails              []string
	logger                   zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithRequireEmailVerification withholds tokens from accounts whose email is unconfirmed.
func WithRequireEmailVerification(required bool) ServiceOption {
	return func(s *Service) {
		s.requireEmailVerification = required
	}
}

// WithForceTwoFactorOnRegistration enables two-factor sign in on every new account.
func WithForceTwoFactorOnRegistration(force bool) ServiceOption {
	return func(s *Service) {
		s.forceTwoFactor = force
	}
}

// WithAdminEmails sets the recipients of new user notifications.
func WithAdminEmails(emails []string) ServiceOption {
	return func(s *Service) {
		s.adminEmails = emails
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(
	store identity.Store,
	tokens *token.Manager,
	refreshTokens *refresh.Manager,
	sender email.Sender,
	options ...ServiceOption,
) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] identity store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] token manager is required")
	}
	if refreshTokens == nil {
		return nil, errors.New("[NewService] refresh token manager is required")
	}
	if sender == nil {
		return nil, errors.New("[NewService] email sender is required")
	}

	s := &Service{
		store:         store,
		resolver:      NewCredentialResolver(store),
		tokens:        tokens,
		refreshTokens: refreshTokens,
		sender:        sender,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Login checks the credentials and either signs in, asks for a two-factor code or
// asks for email verification. Failed logins change nothing but lockout counters.
func (s *Service) Login(ctx context.Context, caller Caller, req LoginRequest, jar CookieJar) (*LoginResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	loginType, _ := ParseLoginType(req.LoginType)

	user, err := s.resolver.Resolve(ctx, req.Login, loginType)
	if err != nil {
		return nil, s.internal(err, "login", "")
	}

	if err := s.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	result, err := s.resolver.VerifySecret(ctx, user, req.Password, loginType)
	if err != nil {
		return nil, s.internal(err, "login", user.ID)
	}
	switch result {
	case identity.SignInSucceeded:
	case identity.SignInLockedOut:
		return nil, apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgLockedOut)
	case identity.SignInNotAllowed:
		if s.requireEmailVerification && !user.EmailConfirmed {
			return &LoginResult{Status: LoginEmailVerificationRequired, UserID: user.ID}, nil
		}
		return nil, apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgNotAllowed)
	default:
		s.logger.Debug().Str("user_id", user.ID).Str("login_type", loginType.String()).Msg("login failed")
		return nil, invalidLogin()
	}

	return s.postCheckGate(ctx, user, req.RememberMe, s.device(caller, req.Device), jar)
}

// postCheckGate decides what a caller with a verified secret receives.
func (s *Service) postCheckGate(ctx context.Context, user *users.User, rememberMe bool, device refresh.DeviceDetails, jar CookieJar) (*LoginResult, error) {
	if s.requireEmailVerification && !user.EmailConfirmed {
		return &LoginResult{Status: LoginEmailVerificationRequired, UserID: user.ID}, nil
	}

	if user.TwoFactorEnabled {
		code, err := s.store.GenerateOneTimeToken(ctx, user, identity.PurposeTwoFactor)
		if err != nil {
			return nil, s.internal(err, "two_factor", user.ID)
		}
		if err := s.sender.SendTwoFactorCode(ctx, user.Email, code); err != nil {
			return nil, s.sendFailed(err, "two_factor", user.ID)
		}
		return &LoginResult{Status: LoginTwoFactorRequired, UserID: user.ID}, nil
	}

	return s.signIn(ctx, user, rememberMe, device, jar)
}

// signIn issues the device session, writes the refresh cookie and mints the access token.
func (s *Service) signIn(ctx context.Context, user *users.User, rememberMe bool, device refresh.DeviceDetails, jar CookieJar) (*LoginResult, error) {
	accessToken, expiresAt, err := s.mint(ctx, user)
	if err != nil {
		return nil, s.internal(err, "sign_in", user.ID)
	}

	rt, err := s.refreshTokens.Issue(ctx, user.ID, rememberMe, device)
	if err != nil {
		return nil, s.internal(err, "sign_in", user.ID)
	}
	jar.Set(rt.Token, cookieExpiry(rt, rememberMe))

	if err := s.store.RecordLogin(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	s.logger.Info().Str("user_id", user.ID).Str("device_id", rt.ID).Bool("remember_me", rememberMe).Msg("signed in")
	return &LoginResult{Status: LoginSucceeded, UserID: user.ID, AccessToken: accessToken, ExpiresAt: expiresAt}, nil
}

func (s *Service) mint(ctx context.Context, user *users.User) (string, time.Time, error) {
	roleClaims, err := s.store.RoleClaims(ctx, user)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "RoleClaims")
	}
	return s.tokens.GenerateAccessToken(user, roleClaims)
}

// VerifyCode completes a two-factor sign in.
func (s *Service) VerifyCode(ctx context.Context, caller Caller, req VerifyCodeRequest, jar CookieJar) (*LoginResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	user, err := s.resolver.Resolve(ctx, req.Login, LoginTypeUnspecified)
	if err != nil {
		return nil, s.internal(err, "verify_code", "")
	}
	if err := s.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	ok, err := s.store.VerifyOneTimeToken(ctx, user, identity.PurposeTwoFactor, req.Code)
	if err != nil {
		return nil, s.internal(err, "verify_code", user.ID)
	}
	if !ok {
		s.logger.Debug().Str("user_id", user.ID).Msg("two factor code rejected")
		return nil, apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgInvalidCode)
	}

	if err := s.confirmEmail(ctx, user); err != nil {
		return nil, s.internal(err, "verify_code", user.ID)
	}
	return s.signIn(ctx, user, req.RememberMe, s.device(caller, req.Device), jar)
}

// AccessToken exchanges the refresh cookie for a new access token, rotating the cookie.
func (s *Service) AccessToken(ctx context.Context, caller Caller, jar CookieJar) (*LoginResult, error) {
	cookie, ok := jar.Get()
	if !ok || cookie.Value == "" {
		return nil, needsSignIn()
	}
	rememberMe := RememberMe(cookie)

	rt, err := s.refreshTokens.Validate(ctx, cookie.Value, rememberMe, caller.IP)
	if err != nil {
		// A lost rotation race leaves the cookie alone; the winner has already replaced it.
		if errors.Is(err, refresh.ErrInvalidRefreshToken) {
			jar.Remove()
			return nil, needsSignIn()
		}
		if errors.Is(err, refresh.ErrNotFound) {
			return nil, needsSignIn()
		}
		return nil, s.internal(err, "access_token", "")
	}
	jar.Set(rt.Token, cookieExpiry(rt, rememberMe))

	user, err := s.store.FindByID(ctx, rt.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			jar.Remove()
			return nil, needsSignIn()
		}
		return nil, s.internal(err, "access_token", rt.UserID)
	}
	if err := s.checkLockout(ctx, user); err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.mint(ctx, user)
	if err != nil {
		return nil, s.internal(err, "access_token", user.ID)
	}
	return &LoginResult{Status: LoginSucceeded, UserID: user.ID, AccessToken: accessToken, ExpiresAt: expiresAt}, nil
}

// Logout deletes the device session behind the cookie and revokes the presented
// access token. It succeeds for callers that are already signed out.
func (s *Service) Logout(ctx context.Context, caller Caller, accessToken string, jar CookieJar) error {
	if cookie, ok := jar.Get(); ok {
		if err := s.refreshTokens.Delete(ctx, cookie.Value); err != nil {
			return s.internal(err, "logout", caller.UserID)
		}
	}
	jar.Remove()

	if accessToken != "" {
		if err := s.tokens.RevokeAccessToken(accessToken); err != nil {
			s.logger.Debug().Err(err).Str("user_id", caller.UserID).Msg("access token not revoked")
		}
	}
	return nil
}

// Devices lists the caller's active device sessions.
func (s *Service) Devices(ctx context.Context, caller Caller) ([]Device, error) {
	if !caller.Authenticated() {
		return nil, needsSignIn()
	}
	rows, err := s.refreshTokens.ListActive(ctx, caller.UserID)
	if err != nil {
		return nil, s.internal(err, "devices", caller.UserID)
	}
	devices := make([]Device, 0, len(rows))
	for _, rt := range rows {
		devices = append(devices, Device{
			ID:         rt.ID,
			Device:     rt.Device,
			LastSeen:   rt.LastSeen,
			LastSeenIP: rt.LastSeenIP,
			ExpiresAt:  rt.ExpiresAt,
			CreatedAt:  rt.CreatedAt,
		})
	}
	return devices, nil
}

// RevokeDevice revokes one of the caller's device sessions. Another account's
// device is reported as not found.
func (s *Service) RevokeDevice(ctx context.Context, caller Caller, id string) error {
	if !caller.Authenticated() {
		return needsSignIn()
	}
	if err := s.refreshTokens.Revoke(ctx, id, caller.UserID); err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			return apperrors.NewUserError(apperrors.KindNotFound, apperrors.MsgDeviceNotFound)
		}
		return s.internal(err, "revoke_device", caller.UserID)
	}
	return nil
}

func (s *Service) checkLockout(ctx context.Context, user *users.User) error {
	locked, err := s.store.IsLockedOut(ctx, user)
	if err != nil {
		return s.internal(err, "lockout_check", user.ID)
	}
	if locked {
		s.logger.Info().Str("user_id", user.ID).Msg("locked out account rejected")
		return apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgLockedOut)
	}
	return nil
}

// confirmEmail marks the email confirmed and welcomes the user the first time.
func (s *Service) confirmEmail(ctx context.Context, user *users.User) error {
	changed, err := s.store.ConfirmEmail(ctx, user)
	if err != nil {
		return err
	}
	user.EmailConfirmed = true
	if changed {
		if err := s.sender.SendWelcome(ctx, user.Email); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to send welcome email")
		}
	}
	return nil
}

func (s *Service) device(caller Caller, label string) refresh.DeviceDetails {
	return refresh.DeviceDetails{Device: label, IP: caller.IP}
}

func cookieExpiry(rt *refresh.RefreshToken, rememberMe bool) *time.Time {
	if !rememberMe {
		return nil
	}
	return utils.Ptr(rt.ExpiresAt)
}

// internal passes user errors through and hides everything else behind one message.
func (s *Service) internal(err error, operation, userID string) error {
	if ue, ok := apperrors.AsUserError(err); ok {
		return ue
	}
	s.logger.Error().Err(err).Str("operation", operation).Str("user_id", userID).Msg("internal error")
	return apperrors.Internal(err)
}

func (s *Service) sendFailed(err error, operation, userID string) error {
	s.logger.Error().Err(err).Str("operation", operation).Str("user_id", userID).Msg("failed to send email")
	return apperrors.NewUserError(apperrors.KindInternal, apperrors.MsgSendLinkFailed).WithCause(err)
}

func needsSignIn() error {
	return apperrors.NewUserError(apperrors.KindUnauthorized, apperrors.MsgNeedsSignIn)
}
