// Package identity is the identity store used by the login and account flows:
// user lookup, lockout-aware password checks and purpose-scoped one-time codes.
package identity

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

var (
	ErrNotFound  = apperrors.ErrNotFound
	ErrDuplicate = apperrors.ErrDuplicate
)

// Purpose scopes a one-time code. A code issued for one purpose never verifies for another.
type Purpose string

const (
	PurposeTwoFactor         Purpose = "TwoFactor"
	PurposeMagicLink         Purpose = "MagicLink"
	PurposeResetPassword     Purpose = "ResetPassword"
	PurposeEmailConfirmation Purpose = "EmailConfirmation"
)

// ChangeEmailPurpose binds an email change code to the requested address.
func ChangeEmailPurpose(newEmail string) Purpose {
	return Purpose("ChangeEmail:" + users.Normalize(newEmail))
}

// SignInResult is the outcome of a secret check. A wrong secret is a result, not an error.
type SignInResult int

const (
	SignInSucceeded SignInResult = iota
	SignInFailed
	SignInLockedOut
	SignInNotAllowed
)

func (r SignInResult) String() string {
	switch r {
	case SignInSucceeded:
		return "succeeded"
	case SignInFailed:
		return "failed"
	case SignInLockedOut:
		return "locked_out"
	case SignInNotAllowed:
		return "not_allowed"
	}
	return "unknown"
}

// Store is everything the login and account flows need from the identity store.
// Every method re-reads the stored identity; callers' copies may be stale.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*users.User, error)
	FindByUsername(ctx context.Context, username string) (*users.User, error)
	FindByID(ctx context.Context, id string) (*users.User, error)

	// CheckPassword verifies the password. Failures count toward lockout and a
	// locked account answers SignInLockedOut without checking the password.
	CheckPassword(ctx context.Context, user *users.User, password string) (SignInResult, error)
	IsLockedOut(ctx context.Context, user *users.User) (bool, error)
	SetLockoutEnd(ctx context.Context, user *users.User, end *time.Time) error

	// GenerateOneTimeToken replaces any outstanding code for (user, purpose).
	GenerateOneTimeToken(ctx context.Context, user *users.User, purpose Purpose) (string, error)
	// VerifyOneTimeToken consumes the code. It succeeds at most once.
	VerifyOneTimeToken(ctx context.Context, user *users.User, purpose Purpose, code string) (bool, error)

	RoleClaims(ctx context.Context, user *users.User) ([]users.Claim, error)

	Create(ctx context.Context, user *users.User, password string) error
	ChangePassword(ctx context.Context, user *users.User, currentPassword, newPassword string) error
	ResetPassword(ctx context.Context, user *users.User, newPassword string) error
	ChangeEmail(ctx context.Context, user *users.User, newEmail string) error
	// ConfirmEmail reports whether the email was unconfirmed before the call.
	ConfirmEmail(ctx context.Context, user *users.User) (bool, error)
	RecordLogin(ctx context.Context, user *users.User) error
}

// Code is a stored one-time code. Only the SHA-256 of the code is kept.
type Code struct {
	UserID    string
	Purpose   Purpose
	CodeHash  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CodeRepo stores one-time codes, at most one per (user, purpose).
type CodeRepo interface {
	// Put replaces any code held for (UserID, Purpose).
	Put(ctx context.Context, code *Code) error
	// Consume atomically removes and returns the code matching all three keys.
	// It returns ErrNotFound when nothing matches.
	Consume(ctx context.Context, userID string, purpose Purpose, codeHash string) (*Code, error)
}
