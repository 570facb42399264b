package sqlite

import (
	"context"
	"database/sql"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
)

// txStore exposes the repository set bound to one open transaction. Every
// repo call sees the same snapshot and commits or rolls back together.
type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the outer Store owns the connection pool.
func (t *txStore) Close() error { return nil }

// Ping is a no-op; reaching this point means the connection is live.
func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported. SAVEPOINT emulation is possible if a
// caller ever needs it.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                   { return &usersRepo{db: t.tx} }
func (t *txStore) Sessions() store.Sessions             { return &sessionsRepo{db: t.tx} }
func (t *txStore) PasswordResets() store.PasswordResets { return &passwordResetsRepo{db: t.tx} }
func (t *txStore) BackupCodes() store.BackupCodes       { return &backupCodesRepo{db: t.tx} }
func (t *txStore) AuditLogs() store.AuditLogs           { return &auditLogsRepo{db: t.tx} }

// Migrations run on the root connection before any transaction is opened.
func (t *txStore) ApplyMigrations() error { return nil }
