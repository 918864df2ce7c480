package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrAdvisoryLock = errors.New("failed to acquire advisory lock")

// AdvisoryXactLock takes a transaction-scoped advisory lock on key. The lock
// is released when tx commits or rolls back, so it covers exactly the
// transaction's read-modify-write sequence. Keys are hashed server-side,
// callers may use any string such as "customer:<uuid>".
func AdvisoryXactLock(ctx context.Context, tx pgx.Tx, key string) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return errors.Join(ErrAdvisoryLock, err)
	}
	return nil
}
