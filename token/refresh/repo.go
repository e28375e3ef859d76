package refresh

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
)

// NoIPAddress is recorded when the request carried no client address.
const NoIPAddress = "No IP address provided"

var (
	ErrNotFound            = apperrors.ErrNotFound
	ErrInvalidRefreshToken = apperrors.ErrInvalidRefreshToken
)

// RefreshToken is one device session. The client only ever sees Token; it is the
// sole lookup key and changes on every successful refresh.
type RefreshToken struct {
	ID         string
	Token      string
	UserID     string
	ExpiresAt  time.Time
	LastSeen   time.Time
	LastSeenIP string
	Device     string
	Revoked    bool
	CreatedAt  time.Time
}

// IsActive reports whether the row can still be exchanged for an access token.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// DeviceDetails describes the client a session was issued to.
type DeviceDetails struct {
	Device string
	IP     string
}

// Rotation replaces OldToken with NewToken on the same row.
type Rotation struct {
	OldToken   string
	NewToken   string
	ExpiresAt  time.Time
	LastSeen   time.Time
	LastSeenIP string
}

// Repo stores device sessions.
type Repo interface {
	Insert(ctx context.Context, token *RefreshToken) error
	GetByToken(ctx context.Context, token string) (*RefreshToken, error)
	// Rotate swaps the token value only if OldToken is still stored, not revoked and
	// not expired at r.LastSeen. Losing the race returns ErrNotFound.
	Rotate(ctx context.Context, r Rotation) (*RefreshToken, error)
	// Revoke marks the row revoked when it belongs to userID, otherwise ErrNotFound.
	Revoke(ctx context.Context, id, userID string) error
	DeleteByToken(ctx context.Context, token string) error
	// ListActive returns the usable rows of userID, latest expiry first.
	ListActive(ctx context.Context, userID string, now time.Time) ([]*RefreshToken, error)
}
