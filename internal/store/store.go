// Package store gives the engine one handle on accounts, transactions and loans,
// plus units of work that commit all of their writes or none of them.
package store

import (
	"context"

	"github.com/tsheringkof667-bot/Bank/internal/ledger"
	"github.com/tsheringkof667-bot/Bank/internal/loan"
	"github.com/tsheringkof667-bot/Bank/internal/transactions"
)

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Accounts() ledger.Accounts
	Transactions() transactions.Log
	Loans() loan.Repository
}

// Store is the persistent store. Its own accessors run each call as an
// independent atomic statement; Atomic groups calls. Callbacks passed to Atomic
// must only use the Tx they receive.
type Store interface {
	Tx
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
