// Package repopg stores one-time codes in Postgres.
package repopg

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-identity-server/identity"
	"github.com/jrsteele09/go-identity-server/internal/db"
)

var _ identity.CodeRepo = (*CodeRepository)(nil)

type CodeRepository struct {
	db *sql.DB
}

func NewCodeRepository(conn *sql.DB) *CodeRepository {
	return &CodeRepository{db: conn}
}

// Put deletes the previous code for (user, purpose) and inserts the new one in one transaction.
func (r *CodeRepository) Put(ctx context.Context, code *identity.Code) error {
	return db.WithTx(ctx, r.db, nil, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM one_time_codes
			WHERE user_id = $1 AND purpose = $2
		`, code.UserID, string(code.Purpose)); err != nil {
			return errors.Wrap(err, "[CodeRepository.Put] delete")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO one_time_codes (user_id, purpose, code_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, code.UserID, string(code.Purpose), code.CodeHash, code.ExpiresAt, code.CreatedAt); err != nil {
			return errors.Wrap(err, "[CodeRepository.Put] insert")
		}
		return nil
	})
}

func (r *CodeRepository) Consume(ctx context.Context, userID string, purpose identity.Purpose, codeHash string) (*identity.Code, error) {
	query := `
		DELETE FROM one_time_codes
		WHERE user_id = $1 AND purpose = $2 AND code_hash = $3
		RETURNING expires_at, created_at
	`
	code := &identity.Code{UserID: userID, Purpose: purpose, CodeHash: codeHash}
	err := r.db.QueryRowContext(ctx, query, userID, string(purpose), codeHash).Scan(&code.ExpiresAt, &code.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, errors.Wrap(err, "[CodeRepository.Consume] delete")
	}
	return code, nil
}
