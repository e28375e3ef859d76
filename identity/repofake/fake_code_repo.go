package fakecoderepo

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/jrsteele09/go-identity-server/identity"
)

var _ identity.CodeRepo = (*FakeCodeRepo)(nil)

type codeKey struct {
	userID  string
	purpose identity.Purpose
}

type FakeCodeRepo struct {
	codes map[codeKey]identity.Code
	lock  sync.Mutex
}

func NewFakeCodeRepo() *FakeCodeRepo {
	return &FakeCodeRepo{codes: make(map[codeKey]identity.Code)}
}

func (cr *FakeCodeRepo) Put(_ context.Context, code *identity.Code) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.codes[codeKey{code.UserID, code.Purpose}] = *code
	return nil
}

func (cr *FakeCodeRepo) Consume(_ context.Context, userID string, purpose identity.Purpose, codeHash string) (*identity.Code, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	key := codeKey{userID, purpose}
	stored, ok := cr.codes[key]
	if !ok || subtle.ConstantTimeCompare([]byte(stored.CodeHash), []byte(codeHash)) != 1 {
		return nil, identity.ErrNotFound
	}
	delete(cr.codes, key)
	return &stored, nil
}

// Len returns the number of outstanding codes.
func (cr *FakeCodeRepo) Len() int {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	return len(cr.codes)
}
