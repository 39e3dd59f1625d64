package loan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
)

// MemoryRepository keeps loans in maps. The owning store serializes access.
type MemoryRepository struct {
	loans        map[string]Loan
	numbers      map[string]string
	installments map[string][]Installment
	now          func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository(now func() time.Time) *MemoryRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryRepository{
		loans:        make(map[string]Loan),
		numbers:      make(map[string]string),
		installments: make(map[string][]Installment),
		now:          now,
	}
}

// Clone deep-copies the repository.
func (r *MemoryRepository) Clone() *MemoryRepository {
	c := NewMemoryRepository(r.now)
	for k, v := range r.loans {
		c.loans[k] = v
	}
	for k, v := range r.numbers {
		c.numbers[k] = v
	}
	for k, v := range r.installments {
		c.installments[k] = append([]Installment(nil), v...)
	}
	return c
}

func (r *MemoryRepository) Create(_ context.Context, l Loan) error {
	if _, ok := r.loans[l.ID]; ok {
		return fmt.Errorf("%w: loan %s", apperrors.ErrDuplicate, l.ID)
	}
	if _, ok := r.numbers[l.LoanNumber]; ok {
		return fmt.Errorf("%w: loan number %s", apperrors.ErrDuplicate, l.LoanNumber)
	}
	r.loans[l.ID] = l
	r.numbers[l.LoanNumber] = l.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Loan, error) {
	l, ok := r.loans[id]
	if !ok {
		return Loan{}, apperrors.NotFound("loan", id)
	}
	return l, nil
}

// GetForUpdate is Get; the owning store already serializes units of work.
func (r *MemoryRepository) GetForUpdate(ctx context.Context, id string) (Loan, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Loan, error) {
	return r.filter(func(l Loan) bool { return l.OwnerID == ownerID }), nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status Status) ([]Loan, error) {
	return r.filter(func(l Loan) bool { return l.Status == status }), nil
}

func (r *MemoryRepository) filter(keep func(Loan) bool) []Loan {
	var out []Loan
	for _, l := range r.loans {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) Update(_ context.Context, l Loan) error {
	if _, ok := r.loans[l.ID]; !ok {
		return apperrors.NotFound("loan", l.ID)
	}
	l.UpdatedAt = r.now().UTC()
	r.loans[l.ID] = l
	return nil
}

func (r *MemoryRepository) Transition(_ context.Context, id string, from, to Status, remarks string) (Loan, error) {
	l, ok := r.loans[id]
	if !ok {
		return Loan{}, apperrors.NotFound("loan", id)
	}
	if l.Status != from {
		return Loan{}, fmt.Errorf("%w: loan %s is %s", apperrors.ErrAlreadyProcessed, l.LoanNumber, l.Status)
	}
	l.Status = to
	if remarks != "" {
		l.Remarks = remarks
	}
	l.UpdatedAt = r.now().UTC()
	r.loans[id] = l
	return l, nil
}

func (r *MemoryRepository) SaveInstallments(_ context.Context, loanID string, installments []Installment) error {
	if _, ok := r.loans[loanID]; !ok {
		return apperrors.NotFound("loan", loanID)
	}
	current := r.installments[loanID]
	bySeq := make(map[int]int, len(current))
	for i, inst := range current {
		bySeq[inst.Sequence] = i
	}
	for _, inst := range installments {
		inst.LoanID = loanID
		if i, ok := bySeq[inst.Sequence]; ok {
			current[i] = inst
			continue
		}
		bySeq[inst.Sequence] = len(current)
		current = append(current, inst)
	}
	sort.Slice(current, func(i, j int) bool { return current[i].Sequence < current[j].Sequence })
	r.installments[loanID] = current
	return nil
}

func (r *MemoryRepository) Installments(_ context.Context, loanID string) ([]Installment, error) {
	if _, ok := r.loans[loanID]; !ok {
		return nil, apperrors.NotFound("loan", loanID)
	}
	return append([]Installment(nil), r.installments[loanID]...), nil
}
