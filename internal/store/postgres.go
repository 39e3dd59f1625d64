package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tsheringkof667-bot/Bank/internal/infra"
	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// Postgres is a Store over a pgx pool. Units of work map onto one database
// transaction each.
type Postgres struct {
	pool        *pgxpool.Pool
	newID       transactions.IDGenerator
	busyTimeout time.Duration
}

// NewPostgres wraps pool. The store owns the pool from here on and closes it in Close.
func NewPostgres(pool *pgxpool.Pool, newID transactions.IDGenerator, busyTimeout time.Duration) *Postgres {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return &Postgres{pool: pool, newID: newID, busyTimeout: busyTimeout}
}

func (p *Postgres) Accounts() ledger.Accounts      { return ledger.NewPostgresAccounts(p.pool) }
func (p *Postgres) Transactions() transactions.Log { return transactions.NewPostgresLog(p.pool, p.newID) }
func (p *Postgres) Loans() loan.Repository         { return loan.NewPostgresRepository(p.pool) }

func (p *Postgres) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.busyTimeout)
	defer cancel()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return infra.ClassifyError("begin unit of work", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(pgTx{tx: tx, newID: p.newID}); err != nil {
		return infra.ClassifyError("unit of work", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return infra.ClassifyError("commit unit of work", err)
	}
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgTx struct {
	tx    pgx.Tx
	newID transactions.IDGenerator
}

func (t pgTx) Accounts() ledger.Accounts      { return ledger.NewPostgresAccounts(t.tx) }
func (t pgTx) Transactions() transactions.Log { return transactions.NewPostgresLog(t.tx, t.newID) }
func (t pgTx) Loans() loan.Repository         { return loan.NewPostgresRepository(t.tx) }
