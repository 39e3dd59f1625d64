package transactions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// MemoryLog is a slice-backed Log. Like ledger.MemoryAccounts it relies on the
// owning store for serialization.
type MemoryLog struct {
	byID  map[string]*Transaction
	order []string
	newID IDGenerator
	now   func() time.Time
}

// NewMemoryLog builds an empty log. Nil arguments fall back to NewTransactionID
// and time.Now.
func NewMemoryLog(newID IDGenerator, now func() time.Time) *MemoryLog {
	if newID == nil {
		newID = NewTransactionID
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryLog{byID: make(map[string]*Transaction), newID: newID, now: now}
}

// Clone returns a deep copy suitable for staging a unit of work.
func (l *MemoryLog) Clone() *MemoryLog {
	c := &MemoryLog{
		byID:  make(map[string]*Transaction, len(l.byID)),
		order: append([]string(nil), l.order...),
		newID: l.newID,
		now:   l.now,
	}
	for k, v := range l.byID {
		t := *v
		c.byID[k] = &t
	}
	return c
}

func (l *MemoryLog) Record(_ context.Context, in RecordInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}
	id := l.newID()
	if _, exists := l.byID[id]; exists {
		return Transaction{}, fmt.Errorf("%w: %s", apperrors.ErrDuplicateTransactionID, id)
	}
	now := l.now().UTC()
	t := &Transaction{
		ID:            uuid.NewString(),
		TransactionID: id,
		FromAccountID: copyRef(in.FromAccountID),
		ToAccountID:   copyRef(in.ToAccountID),
		Amount:        in.Amount,
		Type:          in.Type,
		Status:        StatusPending,
		Description:   in.Description,
		ReferenceID:   in.ReferenceID,
		Metadata:      append([]byte(nil), in.Metadata...),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	l.byID[id] = t
	l.order = append(l.order, id)
	return *t, nil
}

func (l *MemoryLog) Complete(_ context.Context, transactionID string) (Transaction, error) {
	return l.finish(transactionID, StatusCompleted, "")
}

func (l *MemoryLog) Fail(_ context.Context, transactionID, reason string) (Transaction, error) {
	return l.finish(transactionID, StatusFailed, reason)
}

func (l *MemoryLog) finish(transactionID string, status Status, reason string) (Transaction, error) {
	t, ok := l.byID[transactionID]
	if !ok {
		return Transaction{}, apperrors.NotFound("transaction", transactionID)
	}
	if t.Status != StatusPending {
		return Transaction{}, fmt.Errorf("%w: %s is %s", apperrors.ErrAlreadyProcessed, transactionID, t.Status)
	}
	t.Status = status
	t.ErrorMessage = reason
	t.UpdatedAt = l.now().UTC()
	return *t, nil
}

func (l *MemoryLog) Get(_ context.Context, transactionID string) (Transaction, error) {
	t, ok := l.byID[transactionID]
	if !ok {
		return Transaction{}, apperrors.NotFound("transaction", transactionID)
	}
	return *t, nil
}

func (l *MemoryLog) DailyDebitTotal(_ context.Context, accountID string, typ Type, date time.Time) (decimal.Decimal, error) {
	start, end := DayBounds(date)
	total := decimal.Zero
	for _, id := range l.order {
		t := l.byID[id]
		if t.Status != StatusCompleted || t.Type != typ || t.FromAccountID == nil || *t.FromAccountID != accountID {
			continue
		}
		if inRange(t.CreatedAt, start, end) {
			total = total.Add(t.Amount)
		}
	}
	return total, nil
}

func (l *MemoryLog) Statement(_ context.Context, accountID string, start, end time.Time) ([]Transaction, error) {
	from, to := RangeBounds(start, end)
	var out []Transaction
	for _, id := range l.order {
		t := l.byID[id]
		if t.Status == StatusCompleted && t.Touches(accountID) && inRange(t.CreatedAt, from, to) {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *MemoryLog) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]Transaction, error) {
	var out []Transaction
	for i := len(l.order) - 1; i >= 0; i-- {
		t := l.byID[l.order[i]]
		if t.Touches(accountID) {
			out = append(out, *t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func copyRef(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
