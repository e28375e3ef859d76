// Package repopg stores device sessions in Postgres.
package repopg

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/internal/db"
	"github.com/jrsteele09/go-identity-server/token/refresh"
)

const columns = `id, token, user_id, expires_at, last_seen, last_seen_ip, device, revoked, created_at`

var _ refresh.Repo = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	db db.DBTX
}

func NewRefreshTokenRepository(conn db.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: conn}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*refresh.RefreshToken, error) {
	var t refresh.RefreshToken
	err := row.Scan(&t.ID, &t.Token, &t.UserID, &t.ExpiresAt, &t.LastSeen, &t.LastSeenIP, &t.Device, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RefreshTokenRepository) Insert(ctx context.Context, t *refresh.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Token, t.UserID, t.ExpiresAt, t.LastSeen, t.LastSeenIP, t.Device, t.Revoked, t.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepository.Insert] insert")
	}
	return nil
}

func (r *RefreshTokenRepository) GetByToken(ctx context.Context, token string) (*refresh.RefreshToken, error) {
	t, err := scanToken(r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM refresh_tokens WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RefreshTokenRepository.GetByToken] select")
	}
	return t, nil
}

// Rotate is a single conditional UPDATE, so two concurrent rotations of the same
// value cannot both match.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, rot refresh.Rotation) (*refresh.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET token = $1, expires_at = $2, last_seen = $3, last_seen_ip = $4
		WHERE token = $5 AND revoked = FALSE AND expires_at > $3
		RETURNING ` + columns
	t, err := scanToken(r.db.QueryRowContext(ctx, query,
		rot.NewToken, rot.ExpiresAt, rot.LastSeen, rot.LastSeenIP, rot.OldToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "[RefreshTokenRepository.Rotate] update")
	}
	return t, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepository.Revoke] update")
	}
	return expectOne(res, "[RefreshTokenRepository.Revoke]")
}

func (r *RefreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return errors.Wrap(err, "[RefreshTokenRepository.DeleteByToken] delete")
	}
	return expectOne(res, "[RefreshTokenRepository.DeleteByToken]")
}

func (r *RefreshTokenRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*refresh.RefreshToken, error) {
	query := `
		SELECT ` + columns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY expires_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepository.ListActive] select")
	}
	defer rows.Close()

	tokens := make([]*refresh.RefreshToken, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, errors.Wrap(err, "[RefreshTokenRepository.ListActive] scan")
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "[RefreshTokenRepository.ListActive] rows")
	}
	return tokens, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op+" rows affected")
	}
	if n == 0 {
		return refresh.ErrNotFound
	}
	return nil
}
