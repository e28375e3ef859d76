package users

import (
	"context"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

var (
	ErrNotFound  = apperrors.ErrNotFound
	ErrDuplicate = apperrors.ErrDuplicate
)

// UserRepo stores identities. Lookups take the normalized form (see Normalize).
// Create and Update return ErrDuplicate when the email or username is taken.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*User, error)
	GetByNormalizedUsername(ctx context.Context, normalizedUsername string) (*User, error)
	// Modify re-reads the user, applies fn and stores the result as one atomic
	// step. Nothing is written when fn returns an error.
	Modify(ctx context.Context, id string, fn func(u *User) error) (*User, error)
}

type RoleRepo interface {
	Upsert(ctx context.Context, role *Role) error
	Get(ctx context.Context, name string) (*Role, error)
}
