package refreshrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-identity-server/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	rows    map[string]*refresh.RefreshToken // id to row
	byToken map[string]string                // token value to id
	lock    sync.RWMutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		rows:    make(map[string]*refresh.RefreshToken),
		byToken: make(map[string]string),
	}
}

func (tr *FakeRefreshTokenRepo) Insert(_ context.Context, token *refresh.RefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *token
	tr.rows[stored.ID] = &stored
	tr.byToken[stored.Token] = stored.ID
	return nil
}

func (tr *FakeRefreshTokenRepo) GetByToken(_ context.Context, token string) (*refresh.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	id, ok := tr.byToken[token]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	copied := *tr.rows[id]
	return &copied, nil
}

func (tr *FakeRefreshTokenRepo) Rotate(_ context.Context, r refresh.Rotation) (*refresh.RefreshToken, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	id, ok := tr.byToken[r.OldToken]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	row := tr.rows[id]
	if !row.IsActive(r.LastSeen) {
		return nil, refresh.ErrNotFound
	}
	delete(tr.byToken, r.OldToken)
	row.Token = r.NewToken
	row.ExpiresAt = r.ExpiresAt
	row.LastSeen = r.LastSeen
	row.LastSeenIP = r.LastSeenIP
	tr.byToken[row.Token] = id

	copied := *row
	return &copied, nil
}

func (tr *FakeRefreshTokenRepo) Revoke(_ context.Context, id, userID string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	row, ok := tr.rows[id]
	if !ok || row.UserID != userID {
		return refresh.ErrNotFound
	}
	row.Revoked = true
	return nil
}

func (tr *FakeRefreshTokenRepo) DeleteByToken(_ context.Context, token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	id, ok := tr.byToken[token]
	if !ok {
		return refresh.ErrNotFound
	}
	delete(tr.byToken, token)
	delete(tr.rows, id)
	return nil
}

func (tr *FakeRefreshTokenRepo) ListActive(_ context.Context, userID string, now time.Time) ([]*refresh.RefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*refresh.RefreshToken, 0)
	for _, v := range tr.rows {
		if v.UserID == userID && v.IsActive(now) {
			copied := *v
			tokens = append(tokens, &copied)
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].ExpiresAt.After(tokens[j].ExpiresAt)
	})
	return tokens, nil
}

// Len returns the number of stored rows, revoked ones included.
func (tr *FakeRefreshTokenRepo) Len() int {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.rows)
}
