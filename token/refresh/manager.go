package refresh

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultSessionExpiry    = 30 * time.Minute
	defaultRememberMeExpiry = 30 * 24 * time.Hour
)

// TokenGenerator produces opaque refresh token values.
type TokenGenerator interface {
	GenerateRefreshToken() (string, error)
}

// Manager handles refresh token creation, validation, rotation and revocation.
type Manager struct {
	repo             Repo
	generator        TokenGenerator
	sessionExpiry    time.Duration
	rememberMeExpiry time.Duration
	nowFunc          func() time.Time
	logger           zerolog.Logger
}

type ManagerOption func(*Manager)

// WithExpiry sets the lifetime of a browser-session row and of a remember-me row.
func WithExpiry(session, rememberMe time.Duration) ManagerOption {
	return func(m *Manager) {
		m.sessionExpiry = session
		m.rememberMeExpiry = rememberMe
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(repo Repo, generator TokenGenerator, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[refresh.NewManager] repo is required")
	}
	if generator == nil {
		return nil, errors.New("[refresh.NewManager] token generator is required")
	}
	m := &Manager{
		repo:      repo,
		generator: generator,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.sessionExpiry <= 0 {
		m.sessionExpiry = defaultSessionExpiry
	}
	if m.rememberMeExpiry <= 0 {
		m.rememberMeExpiry = defaultRememberMeExpiry
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m, nil
}

func (m *Manager) expiry(now time.Time, rememberMe bool) time.Time {
	if rememberMe {
		return now.Add(m.rememberMeExpiry)
	}
	return now.Add(m.sessionExpiry)
}

// Issue creates a new device session for userID.
func (m *Manager) Issue(ctx context.Context, userID string, rememberMe bool, device DeviceDetails) (*RefreshToken, error) {
	value, err := m.generator.GenerateRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Issue] GenerateRefreshToken")
	}
	now := m.nowFunc()
	rt := &RefreshToken{
		ID:         uuid.New().String(),
		Token:      value,
		UserID:     userID,
		ExpiresAt:  m.expiry(now, rememberMe),
		LastSeen:   now,
		LastSeenIP: ipOrSentinel(device.IP),
		Device:     device.Device,
		CreatedAt:  now,
	}
	if err := m.repo.Insert(ctx, rt); err != nil {
		return nil, errors.Wrap(err, "[Manager.Issue] Insert")
	}
	m.logger.Debug().Str("user_id", userID).Str("device_id", rt.ID).Bool("remember_me", rememberMe).Msg("refresh token issued")
	return rt, nil
}

// Validate looks up token and, when it is usable, rotates it to a fresh value.
// The returned row carries the new value. Revoked and expired rows return
// ErrInvalidRefreshToken; unknown values and lost rotation races return ErrNotFound.
func (m *Manager) Validate(ctx context.Context, token string, rememberMe bool, ip string) (*RefreshToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotFound
	}
	stored, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()
	if !stored.IsActive(now) {
		return nil, ErrInvalidRefreshToken
	}

	value, err := m.generator.GenerateRefreshToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Validate] GenerateRefreshToken")
	}
	rotated, err := m.repo.Rotate(ctx, Rotation{
		OldToken:   token,
		NewToken:   value,
		ExpiresAt:  m.expiry(now, rememberMe),
		LastSeen:   now,
		LastSeenIP: ipOrSentinel(ip),
	})
	if err != nil {
		return nil, err
	}
	return rotated, nil
}

// Revoke revokes the device session id on behalf of callerID. A session owned by
// someone else is reported exactly like a missing one.
func (m *Manager) Revoke(ctx context.Context, id, callerID string) error {
	if id == "" || callerID == "" {
		return ErrNotFound
	}
	if err := m.repo.Revoke(ctx, id, callerID); err != nil {
		return err
	}
	m.logger.Info().Str("user_id", callerID).Str("device_id", id).Msg("device revoked")
	return nil
}

// Delete removes the session holding token. Unknown tokens are ignored.
func (m *Manager) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.repo.DeleteByToken(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "[Manager.Delete] DeleteByToken")
	}
	return nil
}

func (m *Manager) ListActive(ctx context.Context, userID string) ([]*RefreshToken, error) {
	return m.repo.ListActive(ctx, userID, m.nowFunc())
}

func ipOrSentinel(ip string) string {
	if strings.TrimSpace(ip) == "" {
		return NoIPAddress
	}
	return ip
}
