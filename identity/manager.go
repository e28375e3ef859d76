package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
)

const (
	defaultMaxFailedAttempts = 5
	defaultLockoutDuration   = 15 * time.Minute
	defaultTwoFactorExpiry   = 10 * time.Minute
	defaultCodeExpiry        = 24 * time.Hour
	linkCodeBytes            = 32
)

var _ Store = (*Manager)(nil)

// Manager implements Store over user, role and code repositories.
type Manager struct {
	users                 users.UserRepo
	roles                 users.RoleRepo
	codes                 CodeRepo
	maxFailedAttempts     int
	lockoutDuration       time.Duration
	requireConfirmedEmail bool
	twoFactorExpiry       time.Duration
	codeExpiry            time.Duration
	nowFunc               func() time.Time
	logger                zerolog.Logger
}

type ManagerOption func(*Manager)

// WithLockoutPolicy locks an account for duration after maxAttempts consecutive failures.
func WithLockoutPolicy(maxAttempts int, duration time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxFailedAttempts = maxAttempts
		m.lockoutDuration = duration
	}
}

// WithRequireConfirmedEmail makes CheckPassword answer SignInNotAllowed for unconfirmed accounts.
func WithRequireConfirmedEmail(required bool) ManagerOption {
	return func(m *Manager) {
		m.requireConfirmedEmail = required
	}
}

func WithCodeExpiry(twoFactor, other time.Duration) ManagerOption {
	return func(m *Manager) {
		m.twoFactorExpiry = twoFactor
		m.codeExpiry = other
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

func NewManager(userRepo users.UserRepo, roleRepo users.RoleRepo, codeRepo CodeRepo, options ...ManagerOption) (*Manager, error) {
	if userRepo == nil {
		return nil, errors.New("[identity.NewManager] user repo is required")
	}
	if roleRepo == nil {
		return nil, errors.New("[identity.NewManager] role repo is required")
	}
	if codeRepo == nil {
		return nil, errors.New("[identity.NewManager] code repo is required")
	}

	m := &Manager{
		users:             userRepo,
		roles:             roleRepo,
		codes:             codeRepo,
		maxFailedAttempts: defaultMaxFailedAttempts,
		lockoutDuration:   defaultLockoutDuration,
		twoFactorExpiry:   defaultTwoFactorExpiry,
		codeExpiry:        defaultCodeExpiry,
		nowFunc:           time.Now,
		logger:            log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

func (m *Manager) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	return m.users.GetByNormalizedEmail(ctx, users.Normalize(email))
}

func (m *Manager) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	return m.users.GetByNormalizedUsername(ctx, users.Normalize(username))
}

func (m *Manager) FindByID(ctx context.Context, id string) (*users.User, error) {
	return m.users.GetByID(ctx, id)
}

func (m *Manager) CheckPassword(ctx context.Context, user *users.User, password string) (SignInResult, error) {
	current, err := m.users.GetByID(ctx, user.ID)
	if err != nil {
		return SignInFailed, errors.Wrap(err, "[Manager.CheckPassword] GetByID")
	}
	if current.IsLockedOut(m.nowFunc()) {
		return SignInLockedOut, nil
	}

	if !users.CheckPasswordHash(password, current.PasswordHash) {
		locked, err := m.accessFailed(ctx, current.ID)
		if err != nil {
			return SignInFailed, errors.Wrap(err, "[Manager.CheckPassword] accessFailed")
		}
		if locked {
			return SignInLockedOut, nil
		}
		return SignInFailed, nil
	}

	if current.AccessFailedCount > 0 || current.LockoutEnd != nil {
		err := m.update(ctx, current.ID, func(u *users.User) error {
			u.AccessFailedCount = 0
			u.LockoutEnd = nil
			return nil
		})
		if err != nil {
			return SignInFailed, errors.Wrap(err, "[Manager.CheckPassword] reset failures")
		}
	}

	if m.requireConfirmedEmail && !current.EmailConfirmed {
		return SignInNotAllowed, nil
	}
	return SignInSucceeded, nil
}

// accessFailed counts a failed attempt and reports whether the account is now
// locked. The count is changed inside the repo's atomic Modify so concurrent
// failures are all counted.
func (m *Manager) accessFailed(ctx context.Context, id string) (bool, error) {
	var locked, lockedNow bool
	updated, err := m.users.Modify(ctx, id, func(u *users.User) error {
		now := m.nowFunc()
		if u.IsLockedOut(now) {
			locked = true
			return nil
		}
		u.AccessFailedCount++
		if m.maxFailedAttempts > 0 && u.AccessFailedCount >= m.maxFailedAttempts {
			end := now.Add(m.lockoutDuration)
			u.LockoutEnd = &end
			u.AccessFailedCount = 0
			locked, lockedNow = true, true
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if lockedNow {
		m.logger.Warn().Str("user_id", id).Time("lockout_end", *updated.LockoutEnd).Msg("account locked out")
	}
	return locked, nil
}

func (m *Manager) IsLockedOut(ctx context.Context, user *users.User) (bool, error) {
	current, err := m.users.GetByID(ctx, user.ID)
	if err != nil {
		return false, errors.Wrap(err, "[Manager.IsLockedOut] GetByID")
	}
	return current.IsLockedOut(m.nowFunc()), nil
}

func (m *Manager) SetLockoutEnd(ctx context.Context, user *users.User, end *time.Time) error {
	return m.update(ctx, user.ID, func(u *users.User) error {
		u.LockoutEnd = end
		return nil
	})
}

func (m *Manager) GenerateOneTimeToken(ctx context.Context, user *users.User, purpose Purpose) (string, error) {
	var (
		code   string
		expiry = m.codeExpiry
		err    error
	)
	if purpose == PurposeTwoFactor {
		code, err = numericCode(6)
		expiry = m.twoFactorExpiry
	} else {
		code, err = linkCode()
	}
	if err != nil {
		return "", errors.Wrap(err, "[Manager.GenerateOneTimeToken] generate")
	}

	now := m.nowFunc()
	if err := m.codes.Put(ctx, &Code{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hashCode(code),
		ExpiresAt: now.Add(expiry),
		CreatedAt: now,
	}); err != nil {
		return "", errors.Wrap(err, "[Manager.GenerateOneTimeToken] Put")
	}
	return code, nil
}

func (m *Manager) VerifyOneTimeToken(ctx context.Context, user *users.User, purpose Purpose, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	stored, err := m.codes.Consume(ctx, user.ID, purpose, hashCode(code))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, errors.Wrap(err, "[Manager.VerifyOneTimeToken] Consume")
	}
	ok := err == nil && stored.ExpiresAt.After(m.nowFunc())
	if !ok && purpose == PurposeTwoFactor {
		if _, err := m.accessFailed(ctx, user.ID); err != nil {
			return false, errors.Wrap(err, "[Manager.VerifyOneTimeToken] accessFailed")
		}
	}
	return ok, nil
}

// RoleClaims returns the claims granted by the user's roles. Unknown roles grant nothing.
func (m *Manager) RoleClaims(ctx context.Context, user *users.User) ([]users.Claim, error) {
	var claims []users.Claim
	for _, name := range user.Roles {
		role, err := m.roles.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "[Manager.RoleClaims] role %s", name)
		}
		claims = append(claims, role.Claims...)
	}
	return claims, nil
}

func (m *Manager) Create(ctx context.Context, user *users.User, password string) error {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return apperrors.NewUserError(apperrors.KindInvalid, err.Error())
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "[Manager.Create] HashPassword")
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.PasswordHash = hash
	user.DateJoined = m.nowFunc()
	user.Normalize()

	if err := m.users.Create(ctx, user); err != nil {
		return errors.Wrap(err, "[Manager.Create] users.Create")
	}
	return nil
}

func (m *Manager) ChangePassword(ctx context.Context, user *users.User, currentPassword, newPassword string) error {
	return m.update(ctx, user.ID, func(u *users.User) error {
		if !users.CheckPasswordHash(currentPassword, u.PasswordHash) {
			return apperrors.NewUserError(apperrors.KindInvalid, apperrors.MsgIncorrectPassword)
		}
		return setPassword(u, newPassword)
	})
}

func (m *Manager) ResetPassword(ctx context.Context, user *users.User, newPassword string) error {
	return m.update(ctx, user.ID, func(u *users.User) error {
		if err := setPassword(u, newPassword); err != nil {
			return err
		}
		u.AccessFailedCount = 0
		u.LockoutEnd = nil
		return nil
	})
}

func (m *Manager) ChangeEmail(ctx context.Context, user *users.User, newEmail string) error {
	return m.update(ctx, user.ID, func(u *users.User) error {
		u.Email = newEmail
		u.EmailConfirmed = true
		u.Normalize()
		return nil
	})
}

func (m *Manager) ConfirmEmail(ctx context.Context, user *users.User) (bool, error) {
	changed := false
	err := m.update(ctx, user.ID, func(u *users.User) error {
		changed = !u.EmailConfirmed
		u.EmailConfirmed = true
		return nil
	})
	return changed, err
}

func (m *Manager) RecordLogin(ctx context.Context, user *users.User) error {
	return m.update(ctx, user.ID, func(u *users.User) error {
		u.LastLogin = m.nowFunc()
		return nil
	})
}

// update applies fn to the stored user atomically. Errors returned by fn pass
// through unwrapped.
func (m *Manager) update(ctx context.Context, id string, fn func(u *users.User) error) error {
	var fnErr error
	_, err := m.users.Modify(ctx, id, func(u *users.User) error {
		fnErr = fn(u)
		return fnErr
	})
	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		return errors.Wrap(err, "[Manager.update] Modify")
	}
	return nil
}

func setPassword(u *users.User, password string) error {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return apperrors.NewUserError(apperrors.KindInvalid, err.Error())
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "HashPassword")
	}
	u.PasswordHash = hash
	return nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func numericCode(digits int) (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func linkCode() (string, error) {
	b := make([]byte, linkCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
