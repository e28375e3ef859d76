package auth

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/identity"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

// Register creates the account, sends the registration emails and then applies
// the same gate as Login.
func (s *Service) Register(ctx context.Context, caller Caller, req RegisterRequest, jar CookieJar) (*LoginResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	user := &users.User{
		Email:            strings.TrimSpace(req.Email),
		Username:         strings.TrimSpace(req.Username),
		TwoFactorEnabled: s.forceTwoFactor,
	}
	if err := s.store.Create(ctx, user, req.Password); err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return nil, apperrors.NewUserError(apperrors.KindConflict, apperrors.MsgEmailTaken)
		}
		return nil, s.internal(err, "register", "")
	}
	s.logger.Info().Str("user_id", user.ID).Msg("user registered")

	// Accounts that still have to prove their email are welcomed on confirmation.
	if !s.forceTwoFactor && !s.requireEmailVerification {
		if err := s.sender.SendWelcome(ctx, user.Email); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to send welcome email")
		}
	}
	if s.requireEmailVerification {
		if err := s.sendVerification(ctx, user); err != nil {
			return nil, err
		}
	}
	if len(s.adminEmails) > 0 {
		if err := s.sender.SendNewUserNotification(ctx, s.adminEmails, user.Email); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to notify administrators")
		}
	}

	return s.postCheckGate(ctx, user, req.RememberMe, s.device(caller, req.Device), jar)
}

// ResetPassword emails a reset code. Unknown addresses get the same response.
func (s *Service) ResetPassword(ctx context.Context, req EmailRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.findForLink(ctx, req.Email, "reset_password")
	if user == nil {
		return err
	}
	code, err := s.store.GenerateOneTimeToken(ctx, user, identity.PurposeResetPassword)
	if err != nil {
		return s.internal(err, "reset_password", user.ID)
	}
	if err := s.sender.SendPasswordReset(ctx, user.Email, code); err != nil {
		return s.sendFailed(err, "reset_password", user.ID)
	}
	return nil
}

// NewPassword completes a password reset and signs the user in.
func (s *Service) NewPassword(ctx context.Context, caller Caller, req NewPasswordRequest, jar CookieJar) (*LoginResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgPasswordMismatch)
	}
	if err := users.ValidatePasswordStrength(req.Password); err != nil {
		return nil, apperrors.NewUserError(apperrors.KindInvalid, err.Error())
	}

	user, err := s.consumeCode(ctx, req.Email, identity.PurposeResetPassword, req.Code, "new_password")
	if err != nil {
		return nil, err
	}
	if err := s.store.ResetPassword(ctx, user, req.Password); err != nil {
		return nil, s.internal(err, "new_password", user.ID)
	}
	if err := s.confirmEmail(ctx, user); err != nil {
		return nil, s.internal(err, "new_password", user.ID)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("password reset")
	return s.signIn(ctx, user, req.RememberMe, s.device(caller, req.Device), jar)
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, caller Caller, req ChangePasswordRequest) error {
	if !caller.Authenticated() {
		return needsSignIn()
	}
	if err := validate(req); err != nil {
		return err
	}
	if req.NewPassword != req.ConfirmPassword {
		return apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgPasswordMismatch)
	}

	user, err := s.callerUser(ctx, caller, "change_password")
	if err != nil {
		return err
	}
	if err := s.store.ChangePassword(ctx, user, req.CurrentPassword, req.NewPassword); err != nil {
		return s.internal(err, "change_password", user.ID)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("password changed")
	return nil
}

// ChangeEmail sends a confirmation code to the requested address.
func (s *Service) ChangeEmail(ctx context.Context, caller Caller, req ChangeEmailRequest) error {
	if !caller.Authenticated() {
		return needsSignIn()
	}
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.callerUser(ctx, caller, "change_email")
	if err != nil {
		return err
	}

	if err := s.ensureEmailFree(ctx, req.NewEmail, "change_email"); err != nil {
		return err
	}
	code, err := s.store.GenerateOneTimeToken(ctx, user, identity.ChangeEmailPurpose(req.NewEmail))
	if err != nil {
		return s.internal(err, "change_email", user.ID)
	}
	if err := s.sender.SendChangeEmail(ctx, req.NewEmail, code); err != nil {
		return s.sendFailed(err, "change_email", user.ID)
	}
	return nil
}

// ConfirmEmailChange swaps the caller's email once the code sent to the new address is presented.
func (s *Service) ConfirmEmailChange(ctx context.Context, caller Caller, req ConfirmEmailChangeRequest) error {
	if !caller.Authenticated() {
		return needsSignIn()
	}
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.callerUser(ctx, caller, "confirm_email_change")
	if err != nil {
		return err
	}

	// Checked again here so a taken address leaves the code unspent.
	if err := s.ensureEmailFree(ctx, req.NewEmail, "confirm_email_change"); err != nil {
		return err
	}
	ok, err := s.store.VerifyOneTimeToken(ctx, user, identity.ChangeEmailPurpose(req.NewEmail), req.Code)
	if err != nil {
		return s.internal(err, "confirm_email_change", user.ID)
	}
	if !ok {
		return apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgInvalidCode)
	}
	if err := s.store.ChangeEmail(ctx, user, strings.TrimSpace(req.NewEmail)); err != nil {
		if errors.Is(err, identity.ErrDuplicate) {
			return apperrors.NewUserError(apperrors.KindConflict, apperrors.MsgEmailTaken)
		}
		return s.internal(err, "confirm_email_change", user.ID)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("email changed")
	return nil
}

// RequestVerificationEmail sends a fresh email confirmation code.
func (s *Service) RequestVerificationEmail(ctx context.Context, req EmailRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.findForLink(ctx, req.Email, "request_verification")
	if user == nil {
		return err
	}
	if user.EmailConfirmed {
		return apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgEmailAlreadyConfirmed)
	}
	return s.sendVerification(ctx, user)
}

// VerifyEmail consumes an email confirmation code.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.consumeCode(ctx, req.Email, identity.PurposeEmailConfirmation, req.Code, "verify_email")
	if err != nil {
		return err
	}
	if err := s.confirmEmail(ctx, user); err != nil {
		return s.internal(err, "verify_email", user.ID)
	}
	return nil
}

// RequestMagicLinkEmail emails a single-use sign in link. It is consumed by
// Login with LoginTypeMagicLink.
func (s *Service) RequestMagicLinkEmail(ctx context.Context, req EmailRequest) error {
	if err := validate(req); err != nil {
		return err
	}
	user, err := s.findForLink(ctx, req.Email, "magic_link")
	if user == nil {
		return err
	}
	code, err := s.store.GenerateOneTimeToken(ctx, user, identity.PurposeMagicLink)
	if err != nil {
		return s.internal(err, "magic_link", user.ID)
	}
	if err := s.sender.SendMagicLink(ctx, user.Email, code); err != nil {
		return s.sendFailed(err, "magic_link", user.ID)
	}
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *users.User) error {
	code, err := s.store.GenerateOneTimeToken(ctx, user, identity.PurposeEmailConfirmation)
	if err != nil {
		return s.internal(err, "verification_email", user.ID)
	}
	if err := s.sender.SendVerification(ctx, user.Email, code); err != nil {
		return s.sendFailed(err, "verification_email", user.ID)
	}
	return nil
}

// findForLink returns a nil user and nil error for unknown addresses so that
// link requests do not reveal which emails are registered.
func (s *Service) findForLink(ctx context.Context, email, operation string) (*users.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			s.logger.Debug().Str("operation", operation).Msg("link requested for unknown email")
			return nil, nil
		}
		return nil, s.internal(err, operation, "")
	}
	return user, nil
}

// consumeCode resolves the email and consumes its code. Unknown emails and bad
// codes share one message.
func (s *Service) consumeCode(ctx context.Context, email string, purpose identity.Purpose, code, operation string) (*users.User, error) {
	invalid := apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgInvalidCode)
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, invalid
		}
		return nil, s.internal(err, operation, "")
	}
	ok, err := s.store.VerifyOneTimeToken(ctx, user, purpose, code)
	if err != nil {
		return nil, s.internal(err, operation, user.ID)
	}
	if !ok {
		return nil, invalid
	}
	return user, nil
}

func (s *Service) callerUser(ctx context.Context, caller Caller, operation string) (*users.User, error) {
	user, err := s.store.FindByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, needsSignIn()
		}
		return nil, s.internal(err, operation, caller.UserID)
	}
	return user, nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email, operation string) error {
	_, err := s.store.FindByEmail(ctx, email)
	if err == nil {
		return apperrors.NewUserError(apperrors.KindConflict, apperrors.MsgEmailTaken)
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return s.internal(err, operation, "")
	}
	return nil
}
