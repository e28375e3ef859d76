// Package repopg stores users and roles in Postgres.
package repopg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/internal/db"
	"github.com/jrsteele09/go-identity-server/users"
)

const userColumns = `id, email, normalized_email, username, normalized_username, password_hash,
		email_confirmed, two_factor_enabled, lockout_end, access_failed_count, roles, claims,
		date_joined, last_login`

var _ users.UserRepo = (*UserRepository)(nil)

type UserRepository struct {
	conn *sql.DB
}

func NewUserRepository(conn *sql.DB) *UserRepository {
	return &UserRepository{conn: conn}
}

func (r *UserRepository) Create(ctx context.Context, u *users.User) error {
	roles, claims, err := marshalAccess(u)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = r.conn.ExecContext(ctx, query,
		u.ID, u.Email, u.NormalizedEmail, u.Username, nullString(u.NormalizedUsername), u.PasswordHash,
		u.EmailConfirmed, u.TwoFactorEnabled, nullTime(u.LockoutEnd), u.AccessFailedCount, roles, claims,
		u.DateJoined, nullTimeValue(u.LastLogin))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return users.ErrDuplicate
		}
		return errors.Wrap(err, "[UserRepository.Create] insert")
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, u *users.User) error {
	return update(ctx, r.conn, u)
}

// Modify locks the row with SELECT ... FOR UPDATE for the length of the transaction.
func (r *UserRepository) Modify(ctx context.Context, id string, fn func(u *users.User) error) (*users.User, error) {
	var modified *users.User
	err := db.WithTx(ctx, r.conn, nil, func(ctx context.Context, tx db.DBTX) error {
		u, err := getOne(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.ID = id
		if err := update(ctx, tx, u); err != nil {
			return err
		}
		modified = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modified, nil
}

func update(ctx context.Context, conn db.DBTX, u *users.User) error {
	roles, claims, err := marshalAccess(u)
	if err != nil {
		return err
	}
	query := `
		UPDATE users SET email = $2, normalized_email = $3, username = $4, normalized_username = $5,
			password_hash = $6, email_confirmed = $7, two_factor_enabled = $8, lockout_end = $9,
			access_failed_count = $10, roles = $11, claims = $12, last_login = $13
		WHERE id = $1
	`
	res, err := conn.ExecContext(ctx, query,
		u.ID, u.Email, u.NormalizedEmail, u.Username, nullString(u.NormalizedUsername), u.PasswordHash,
		u.EmailConfirmed, u.TwoFactorEnabled, nullTime(u.LockoutEnd), u.AccessFailedCount, roles, claims,
		nullTimeValue(u.LastLogin))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return users.ErrDuplicate
		}
		return errors.Wrap(err, "[UserRepository.Update] update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[UserRepository.Update] rows affected")
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*users.User, error) {
	return getOne(ctx, r.conn, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByNormalizedEmail(ctx context.Context, email string) (*users.User, error) {
	return getOne(ctx, r.conn, `SELECT `+userColumns+` FROM users WHERE normalized_email = $1`, email)
}

func (r *UserRepository) GetByNormalizedUsername(ctx context.Context, username string) (*users.User, error) {
	return getOne(ctx, r.conn, `SELECT `+userColumns+` FROM users WHERE normalized_username = $1`, username)
}

func getOne(ctx context.Context, conn db.DBTX, query string, arg string) (*users.User, error) {
	var (
		u              users.User
		normalizedName sql.NullString
		lockoutEnd     sql.NullTime
		lastLogin      sql.NullTime
		rolesRaw       []byte
		claimsRaw      []byte
	)
	err := conn.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.NormalizedEmail, &u.Username, &normalizedName, &u.PasswordHash,
		&u.EmailConfirmed, &u.TwoFactorEnabled, &lockoutEnd, &u.AccessFailedCount, &rolesRaw, &claimsRaw,
		&u.DateJoined, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "[UserRepository] select")
	}
	u.NormalizedUsername = normalizedName.String
	if lockoutEnd.Valid {
		end := lockoutEnd.Time
		u.LockoutEnd = &end
	}
	if lastLogin.Valid {
		u.LastLogin = lastLogin.Time
	}
	if err := json.Unmarshal(rolesRaw, &u.Roles); err != nil {
		return nil, errors.Wrap(err, "[UserRepository] decode roles")
	}
	if err := json.Unmarshal(claimsRaw, &u.Claims); err != nil {
		return nil, errors.Wrap(err, "[UserRepository] decode claims")
	}
	return &u, nil
}

var _ users.RoleRepo = (*RoleRepository)(nil)

type RoleRepository struct {
	db db.DBTX
}

func NewRoleRepository(conn db.DBTX) *RoleRepository {
	return &RoleRepository{db: conn}
}

func (r *RoleRepository) Upsert(ctx context.Context, role *users.Role) error {
	claims, err := json.Marshal(nonNilClaims(role.Claims))
	if err != nil {
		return errors.Wrap(err, "[RoleRepository.Upsert] encode claims")
	}
	query := `
		INSERT INTO roles (name, claims) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET claims = EXCLUDED.claims
	`
	if _, err := r.db.ExecContext(ctx, query, role.Name, claims); err != nil {
		return errors.Wrap(err, "[RoleRepository.Upsert] upsert")
	}
	return nil
}

func (r *RoleRepository) Get(ctx context.Context, name string) (*users.Role, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT claims FROM roles WHERE name = $1`, name).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RoleRepository.Get] select")
	}
	role := &users.Role{Name: name}
	if err := json.Unmarshal(raw, &role.Claims); err != nil {
		return nil, errors.Wrap(err, "[RoleRepository.Get] decode claims")
	}
	return role, nil
}

func marshalAccess(u *users.User) ([]byte, []byte, error) {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesRaw, err := json.Marshal(roles)
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode roles")
	}
	claimsRaw, err := json.Marshal(nonNilClaims(u.Claims))
	if err != nil {
		return nil, nil, errors.Wrap(err, "encode claims")
	}
	return rolesRaw, claimsRaw, nil
}

func nonNilClaims(c []users.Claim) []users.Claim {
	if c == nil {
		return []users.Claim{}
	}
	return c
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeValue(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
