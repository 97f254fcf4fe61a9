package sqlite

import (
	"context"
	"database/sql"

	"github.com/axs360/access-engine/internal/axs/store"
	dbpkg "github.com/axs360/access-engine/internal/db"
)

// Store implements store.Store on SQLite.  Reads go straight to db; every
// write, including ledger updates, is funnelled through writer.
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Update runs fn inside one writer transaction.  A deadline that passes
// before the writer picks the job up leaves the database untouched.
func (s *Store) Update(ctx context.Context, fn store.TxFn) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &sqlTx{tx: tx})
	})
}
