package fakeuserrepo

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-identity-server/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users     map[string]*users.User
	emailIds  map[string]string // normalized email to user id
	usernames map[string]string // normalized username to user id
	lock      sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:     make(map[string]*users.User),
		emailIds:  make(map[string]string),
		usernames: make(map[string]string),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if _, ok := ur.users[user.ID]; ok {
		return users.ErrDuplicate
	}
	if ur.taken(user) {
		return users.ErrDuplicate
	}
	ur.index(user.Clone())
	return nil
}

func (ur *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	existing, ok := ur.users[user.ID]
	if !ok {
		return users.ErrNotFound
	}
	if ur.taken(user) {
		return users.ErrDuplicate
	}
	delete(ur.emailIds, existing.NormalizedEmail)
	delete(ur.usernames, existing.NormalizedUsername)
	ur.index(user.Clone())
	return nil
}

func (ur *FakeUserRepo) Modify(_ context.Context, id string, fn func(u *users.User) error) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	existing, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	u := existing.Clone()
	if err := fn(u); err != nil {
		return nil, err
	}
	u.ID = id
	if ur.taken(u) {
		return nil, users.ErrDuplicate
	}
	delete(ur.emailIds, existing.NormalizedEmail)
	delete(ur.usernames, existing.NormalizedUsername)
	ur.index(u.Clone())
	return u, nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u.Clone(), nil
}

func (ur *FakeUserRepo) GetByNormalizedEmail(_ context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

func (ur *FakeUserRepo) GetByNormalizedUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernames[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.users[id].Clone(), nil
}

// taken reports whether another user already owns user's email or username.
func (ur *FakeUserRepo) taken(user *users.User) bool {
	if id, ok := ur.emailIds[user.NormalizedEmail]; ok && id != user.ID {
		return true
	}
	if user.NormalizedUsername == "" {
		return false
	}
	id, ok := ur.usernames[user.NormalizedUsername]
	return ok && id != user.ID
}

func (ur *FakeUserRepo) index(user *users.User) {
	ur.users[user.ID] = user
	ur.emailIds[user.NormalizedEmail] = user.ID
	if user.NormalizedUsername != "" {
		ur.usernames[user.NormalizedUsername] = user.ID
	}
}

var _ users.RoleRepo = (*FakeRoleRepo)(nil)

type FakeRoleRepo struct {
	roles map[string]*users.Role
	lock  sync.RWMutex
}

func NewFakeRoleRepo() *FakeRoleRepo {
	return &FakeRoleRepo{roles: make(map[string]*users.Role)}
}

func (rr *FakeRoleRepo) Upsert(_ context.Context, role *users.Role) error {
	rr.lock.Lock()
	defer rr.lock.Unlock()
	rr.roles[role.Name] = &users.Role{Name: role.Name, Claims: slices.Clone(role.Claims)}
	return nil
}

func (rr *FakeRoleRepo) Get(_ context.Context, name string) (*users.Role, error) {
	rr.lock.RLock()
	defer rr.lock.RUnlock()
	role, ok := rr.roles[name]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &users.Role{Name: role.Name, Claims: slices.Clone(role.Claims)}, nil
}
