package identity_test

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-identity-server/identity"
	fakecoderepo "github.com/jrsteele09/go-identity-server/identity/repofake"
	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/jrsteele09/go-identity-server/users"
	fakeuserrepo "github.com/jrsteele09/go-identity-server/users/repofake"
	"github.com/stretchr/testify/require"
)

const testPassword = "Password123"

type testFixture struct {
	userRepo *fakeuserrepo.FakeUserRepo
	roleRepo *fakeuserrepo.FakeRoleRepo
	codeRepo *fakecoderepo.FakeCodeRepo
	manager  *identity.Manager
	now      time.Time
}

func setupTestFixture(t *testing.T, options ...identity.ManagerOption) *testFixture {
	t.Helper()
	f := &testFixture{
		userRepo: fakeuserrepo.NewFakeUserRepo(),
		roleRepo: fakeuserrepo.NewFakeRoleRepo(),
		codeRepo: fakecoderepo.NewFakeCodeRepo(),
		now:      time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	opts := append([]identity.ManagerOption{
		identity.WithNowFunc(func() time.Time { return f.now }),
		identity.WithLockoutPolicy(3, 15*time.Minute),
	}, options...)
	m, err := identity.NewManager(f.userRepo, f.roleRepo, f.codeRepo, opts...)
	require.NoError(t, err)
	f.manager = m
	return f
}

func (f *testFixture) createUser(t *testing.T, email string) *users.User {
	t.Helper()
	u := &users.User{Email: email, Username: "user-" + email}
	require.NoError(t, f.manager.Create(context.Background(), u, testPassword))
	return u
}

func TestNewManager_MissingDependencies(t *testing.T) {
	_, err := identity.NewManager(nil, fakeuserrepo.NewFakeRoleRepo(), fakecoderepo.NewFakeCodeRepo())
	require.ErrorContains(t, err, "user repo is required")
	_, err = identity.NewManager(fakeuserrepo.NewFakeUserRepo(), nil, fakecoderepo.NewFakeCodeRepo())
	require.ErrorContains(t, err, "role repo is required")
	_, err = identity.NewManager(fakeuserrepo.NewFakeUserRepo(), fakeuserrepo.NewFakeRoleRepo(), nil)
	require.ErrorContains(t, err, "code repo is required")
}

func TestCreate_NormalizesAndHashes(t *testing.T) {
	f := setupTestFixture(t)
	u := f.createUser(t, "Jane@Example.com")

	stored, err := f.manager.FindByEmail(context.Background(), "jane@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, stored.ID)
	require.NotEqual(t, testPassword, stored.PasswordHash)
	require.Equal(t, f.now, stored.DateJoined)
}

func TestCreate_WeakPasswordIsUserError(t *testing.T) {
	f := setupTestFixture(t)
	err := f.manager.Create(context.Background(), &users.User{Email: "a@example.com"}, "weak")
	ue, ok := apperrors.AsUserError(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindInvalid, ue.Kind)
}

func TestCreate_Duplicate(t *testing.T) {
	f := setupTestFixture(t)
	f.createUser(t, "a@example.com")
	err := f.manager.Create(context.Background(), &users.User{Email: "A@example.com"}, testPassword)
	require.ErrorIs(t, err, identity.ErrDuplicate)
}

func TestCheckPassword_LocksOutAfterRepeatedFailures(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	for i := 0; i < 2; i++ {
		res, err := f.manager.CheckPassword(ctx, u, "wrong")
		require.NoError(t, err)
		require.Equal(t, identity.SignInFailed, res)
	}
	res, err := f.manager.CheckPassword(ctx, u, "wrong")
	require.NoError(t, err)
	require.Equal(t, identity.SignInLockedOut, res)

	// correct password while locked still answers locked out
	res, err = f.manager.CheckPassword(ctx, u, testPassword)
	require.NoError(t, err)
	require.Equal(t, identity.SignInLockedOut, res)

	locked, err := f.manager.IsLockedOut(ctx, u)
	require.NoError(t, err)
	require.True(t, locked)

	f.now = f.now.Add(16 * time.Minute)
	res, err = f.manager.CheckPassword(ctx, u, testPassword)
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, res)

	stored, err := f.manager.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, stored.AccessFailedCount)
	require.Nil(t, stored.LockoutEnd)
}

func TestCheckPassword_ConcurrentFailuresLockOut(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	var failed, lockedOut atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.manager.CheckPassword(ctx, u, "wrong")
			require.NoError(t, err)
			switch res {
			case identity.SignInFailed:
				failed.Add(1)
			case identity.SignInLockedOut:
				lockedOut.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(2), failed.Load())
	require.Equal(t, int32(18), lockedOut.Load())

	stored, err := f.manager.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockoutEnd)
	require.True(t, stored.IsLockedOut(f.now))
}

func TestCheckPassword_ConcurrentFailuresAllCounted(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, identity.WithLockoutPolicy(50, 15*time.Minute))
	u := f.createUser(t, "a@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.CheckPassword(ctx, u, "wrong")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.manager.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 20, stored.AccessFailedCount)
	require.Nil(t, stored.LockoutEnd)
}

func TestCheckPassword_NotAllowedWhenUnconfirmed(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, identity.WithRequireConfirmedEmail(true))
	u := f.createUser(t, "a@example.com")

	res, err := f.manager.CheckPassword(ctx, u, testPassword)
	require.NoError(t, err)
	require.Equal(t, identity.SignInNotAllowed, res)

	first, err := f.manager.ConfirmEmail(ctx, u)
	require.NoError(t, err)
	require.True(t, first)
	again, err := f.manager.ConfirmEmail(ctx, u)
	require.NoError(t, err)
	require.False(t, again)

	res, err = f.manager.CheckPassword(ctx, u, testPassword)
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, res)
}

func TestOneTimeToken_SingleUse(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	code, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeMagicLink)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(code), 43)

	ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeMagicLink, code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeMagicLink, code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOneTimeToken_ScopedByPurpose(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	code, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeResetPassword)
	require.NoError(t, err)

	ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeEmailConfirmation, code)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.manager.VerifyOneTimeToken(ctx, u, identity.ChangeEmailPurpose("b@example.com"), code)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeResetPassword, code)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestOneTimeToken_Expires(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, identity.WithCodeExpiry(time.Minute, time.Hour))
	u := f.createUser(t, "a@example.com")

	code, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeEmailConfirmation)
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeEmailConfirmation, code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOneTimeToken_RegenerateReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	first, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeResetPassword)
	require.NoError(t, err)
	second, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeResetPassword)
	require.NoError(t, err)
	require.Equal(t, 1, f.codeRepo.Len())

	ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeResetPassword, first)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeResetPassword, second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTwoFactorCode_SixDigitsAndFailuresCount(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	code, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeTwoFactor)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeTwoFactor, "not-it")
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := f.manager.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stored.AccessFailedCount)
}

func TestOneTimeToken_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")
	code, err := f.manager.GenerateOneTimeToken(ctx, u, identity.PurposeMagicLink)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := f.manager.VerifyOneTimeToken(ctx, u, identity.PurposeMagicLink, code); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestRoleClaims_SkipsUnknownRoles(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	require.NoError(t, f.roleRepo.Upsert(ctx, &users.Role{Name: "Editor", Claims: []users.Claim{{Type: "doc", Value: "write"}}}))

	claims, err := f.manager.RoleClaims(ctx, &users.User{Roles: []string{"Editor", "Ghost"}})
	require.NoError(t, err)
	require.Equal(t, []users.Claim{{Type: "doc", Value: "write"}}, claims)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")

	err := f.manager.ChangePassword(ctx, u, "wrong", "NewPassword1")
	require.True(t, apperrors.HasMessage(err, apperrors.MsgIncorrectPassword))

	require.NoError(t, f.manager.ChangePassword(ctx, u, testPassword, "NewPassword1"))
	res, err := f.manager.CheckPassword(ctx, u, "NewPassword1")
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, res)
}

func TestResetPassword_ClearsLockout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")
	end := f.now.Add(time.Hour)
	require.NoError(t, f.manager.SetLockoutEnd(ctx, u, &end))

	require.NoError(t, f.manager.ResetPassword(ctx, u, "Another123"))
	locked, err := f.manager.IsLockedOut(ctx, u)
	require.NoError(t, err)
	require.False(t, locked)
}

func TestChangeEmail_ConfirmsAndReindexes(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "old@example.com")

	require.NoError(t, f.manager.ChangeEmail(ctx, u, "New@Example.com"))
	stored, err := f.manager.FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, stored.ID)
	require.True(t, stored.EmailConfirmed)

	_, err = f.manager.FindByEmail(ctx, "old@example.com")
	require.ErrorIs(t, err, identity.ErrNotFound)
}

func TestRecordLogin(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	u := f.createUser(t, "a@example.com")
	require.NoError(t, f.manager.RecordLogin(ctx, u))
	stored, err := f.manager.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, f.now, stored.LastLogin)
}
