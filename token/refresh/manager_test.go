package refresh_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-identity-server/token"
	"github.com/jrsteele09/go-identity-server/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-identity-server/token/refresh/repofake"
)

type testFixture struct {
	now     time.Time
	repo    *refreshrepofake.FakeRefreshTokenRepo
	manager *refresh.Manager
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		repo: refreshrepofake.NewFakeRefreshTokenRepo(),
	}
	signer, err := token.NewHMACSigner([]byte(strings.Repeat("k", 32)))
	require.NoError(t, err)
	generator, err := token.New(signer)
	require.NoError(t, err)

	f.manager, err = refresh.NewManager(f.repo, generator,
		refresh.WithExpiry(30*time.Minute, 30*24*time.Hour),
		refresh.WithNowFunc(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

func TestNewManager_RequiresCollaborators(t *testing.T) {
	_, err := refresh.NewManager(nil, nil)
	require.ErrorContains(t, err, "repo is required")

	_, err = refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), nil)
	require.ErrorContains(t, err, "token generator is required")
}

func TestIssue_ExpiryDependsOnRememberMe(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	session, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{Device: "Firefox", IP: "10.0.0.1"})
	require.NoError(t, err)
	require.Equal(t, f.now.Add(30*time.Minute), session.ExpiresAt)
	require.Equal(t, "10.0.0.1", session.LastSeenIP)
	require.Equal(t, "Firefox", session.Device)
	require.Len(t, session.Token, 64)

	remembered, err := f.manager.Issue(ctx, "u1", true, refresh.DeviceDetails{})
	require.NoError(t, err)
	require.Equal(t, f.now.Add(30*24*time.Hour), remembered.ExpiresAt)
	require.Equal(t, refresh.NoIPAddress, remembered.LastSeenIP)
	require.NotEqual(t, session.ID, remembered.ID)
}

func TestValidate_RotatesEveryTime(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	issued, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{Device: "d"})
	require.NoError(t, err)

	f.now = f.now.Add(5 * time.Minute)
	rotated, err := f.manager.Validate(ctx, issued.Token, false, "192.168.1.5")
	require.NoError(t, err)
	require.Equal(t, issued.ID, rotated.ID)
	require.NotEqual(t, issued.Token, rotated.Token)
	require.Equal(t, f.now, rotated.LastSeen)
	require.Equal(t, f.now.Add(30*time.Minute), rotated.ExpiresAt)
	require.Equal(t, "192.168.1.5", rotated.LastSeenIP)

	_, err = f.manager.Validate(ctx, issued.Token, false, "")
	require.ErrorIs(t, err, refresh.ErrNotFound)

	again, err := f.manager.Validate(ctx, rotated.Token, false, "")
	require.NoError(t, err)
	require.NotEqual(t, rotated.Token, again.Token)
	require.Equal(t, 1, f.repo.Len())
}

func TestValidate_RejectsExpiredAndEmpty(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.manager.Validate(ctx, "", false, "")
	require.ErrorIs(t, err, refresh.ErrNotFound)

	issued, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{})
	require.NoError(t, err)
	f.now = f.now.Add(31 * time.Minute)
	_, err = f.manager.Validate(ctx, issued.Token, false, "")
	require.ErrorIs(t, err, refresh.ErrInvalidRefreshToken)
}

func TestValidate_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	issued, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{})
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.Validate(ctx, issued.Token, false, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
}

func TestRevoke_OnlyOwnDevices(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	issued, err := f.manager.Issue(ctx, "owner", true, refresh.DeviceDetails{})
	require.NoError(t, err)

	err = f.manager.Revoke(ctx, issued.ID, "intruder")
	require.ErrorIs(t, err, refresh.ErrNotFound)
	err = f.manager.Revoke(ctx, "missing", "owner")
	require.ErrorIs(t, err, refresh.ErrNotFound)

	_, err = f.manager.Validate(ctx, issued.Token, true, "")
	require.NoError(t, err)

	active, err := f.manager.ListActive(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, f.manager.Revoke(ctx, issued.ID, "owner"))
	_, err = f.manager.Validate(ctx, active[0].Token, true, "")
	require.ErrorIs(t, err, refresh.ErrInvalidRefreshToken)
}

func TestDelete_BlocksRefreshAndIgnoresUnknown(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	issued, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{})
	require.NoError(t, err)

	require.NoError(t, f.manager.Delete(ctx, issued.Token))
	require.NoError(t, f.manager.Delete(ctx, issued.Token))
	require.NoError(t, f.manager.Delete(ctx, ""))

	_, err = f.manager.Validate(ctx, issued.Token, false, "")
	require.ErrorIs(t, err, refresh.ErrNotFound)
}

func TestListActive_OrderedByExpiryDescending(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	short, err := f.manager.Issue(ctx, "u1", false, refresh.DeviceDetails{Device: "short"})
	require.NoError(t, err)
	long, err := f.manager.Issue(ctx, "u1", true, refresh.DeviceDetails{Device: "long"})
	require.NoError(t, err)
	revoked, err := f.manager.Issue(ctx, "u1", true, refresh.DeviceDetails{Device: "revoked"})
	require.NoError(t, err)
	require.NoError(t, f.manager.Revoke(ctx, revoked.ID, "u1"))
	_, err = f.manager.Issue(ctx, "u2", true, refresh.DeviceDetails{Device: "other user"})
	require.NoError(t, err)

	active, err := f.manager.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, long.ID, active[0].ID)
	require.Equal(t, short.ID, active[1].ID)
}
