package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tsheringkof667-bot/Bank/internal/apperrors"
	"github.com/tsheringkof667-bot/Bank/internal/money"
)

// calcPrecision is the number of fractional digits carried by intermediate EMI math.
const calcPrecision = 20

// Period is the fixed spacing between installment due dates.
const Period = 30 * 24 * time.Hour

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// MonthlyRate converts an annual percentage rate into a monthly fraction.
func MonthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.DivRound(monthsInYear.Mul(hundred), calcPrecision)
}

// CalculateEMI returns the fixed monthly installment for a reducing-balance loan,
// rounded half away from zero to the cent. A zero rate degrades to straight-line
// division.
func CalculateEMI(principal, annualRate decimal.Decimal, tenureMonths int) (decimal.Decimal, error) {
	if err := validateTerms(principal, annualRate, tenureMonths); err != nil {
		return decimal.Zero, err
	}
	n := decimal.NewFromInt(int64(tenureMonths))
	if annualRate.IsZero() {
		return money.Round(principal.DivRound(n, calcPrecision)), nil
	}

	r := MonthlyRate(annualRate)
	growth := compound(decimal.NewFromInt(1).Add(r), tenureMonths)
	emi := principal.Mul(r).Mul(growth).DivRound(growth.Sub(decimal.NewFromInt(1)), calcPrecision)
	return money.Round(emi), nil
}

// compound raises base to the n-th power, rounding each step to calcPrecision.
func compound(base decimal.Decimal, n int) decimal.Decimal {
	out := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		out = out.Mul(base).Round(calcPrecision)
	}
	return out
}

func validateTerms(principal, annualRate decimal.Decimal, tenureMonths int) error {
	if !principal.IsPositive() {
		return apperrors.Validation("principal must be greater than 0")
	}
	if annualRate.IsNegative() {
		return apperrors.Validation("interest rate must not be negative")
	}
	if tenureMonths < 1 {
		return apperrors.Validation("tenure must be at least one month")
	}
	return nil
}

// GenerateSchedule builds tenureMonths installments due every 30 days after
// disbursedAt. Interest is charged on the outstanding principal and rounded per
// period. The final installment takes whatever principal is left so that the
// principal components add up to exactly principal.
func GenerateSchedule(principal, annualRate decimal.Decimal, tenureMonths int, emi decimal.Decimal, disbursedAt time.Time) []Installment {
	r := MonthlyRate(annualRate)
	remaining := principal
	schedule := make([]Installment, 0, tenureMonths)
	for i := 1; i <= tenureMonths; i++ {
		interest := money.Round(remaining.Mul(r))
		part := emi.Sub(interest)
		if i == tenureMonths || part.GreaterThan(remaining) {
			part = remaining
		}
		remaining = remaining.Sub(part)
		schedule = append(schedule, Installment{
			Sequence:   i,
			DueDate:    disbursedAt.Add(time.Duration(i) * Period).UTC(),
			Amount:     part.Add(interest),
			Principal:  part,
			Interest:   interest,
			Status:     InstallmentPending,
			PaidAmount: decimal.Zero,
			Penalty:    decimal.Zero,
		})
	}
	return schedule
}

// TotalPayable sums the installment amounts of a schedule.
func TotalPayable(schedule []Installment) decimal.Decimal {
	amounts := make([]decimal.Decimal, len(schedule))
	for i, inst := range schedule {
		amounts[i] = inst.Amount
	}
	return money.Sum(amounts...)
}

// ApplyRepayment allocates amount to the pending installments in sequence order
// and reduces the loan's remaining amount. An installment is paid once its
// allocations reach its scheduled amount, so partial payments accumulate and
// overpayments spill into later installments. The inputs are not modified.
func ApplyRepayment(l Loan, schedule []Installment, amount decimal.Decimal, paidAt time.Time) (Loan, []Installment, error) {
	if l.Status != StatusActive {
		return Loan{}, nil, apperrors.Validation("loan %s is %s, not active", l.LoanNumber, l.Status)
	}
	if err := money.ValidatePositive(amount); err != nil {
		return Loan{}, nil, err
	}
	if amount.GreaterThan(l.RemainingAmount) {
		return Loan{}, nil, apperrors.Validation("amount %s exceeds remaining %s", money.Format(amount), money.Format(l.RemainingAmount))
	}

	paidAt = paidAt.UTC()
	updated := make([]Installment, len(schedule))
	copy(updated, schedule)

	left := amount
	pending := 0
	for i := range updated {
		inst := &updated[i]
		if inst.Status == InstallmentPending && left.IsPositive() {
			portion := decimal.Min(left, inst.Outstanding())
			inst.PaidAmount = inst.PaidAmount.Add(portion)
			left = left.Sub(portion)
			if !inst.PaidAmount.LessThan(inst.Amount) {
				inst.Status = InstallmentPaid
				at := paidAt
				inst.PaidAt = &at
			}
		}
		if inst.Status == InstallmentPending {
			pending++
		}
	}

	l.RemainingAmount = l.RemainingAmount.Sub(amount)
	l.RemainingTenure = pending
	l.LastPaymentAt = &paidAt
	l.UpdatedAt = paidAt
	if !l.RemainingAmount.IsPositive() {
		l.Status = StatusClosed
		l.Remarks = "Loan fully repaid"
	}
	return l, updated, nil
}

// IsOverdue reports whether an active loan with an outstanding balance has gone
// longer than window without a payment. A loan that was never paid is measured
// from its disbursement.
func IsOverdue(l Loan, asOf time.Time, window time.Duration) bool {
	ref := lastActivity(l)
	if l.Status != StatusActive || !l.RemainingAmount.IsPositive() || ref == nil {
		return false
	}
	return ref.Before(asOf.Add(-window))
}

// DaysOverdue counts whole days past the window.
func DaysOverdue(l Loan, asOf time.Time, window time.Duration) int {
	ref := lastActivity(l)
	if ref == nil {
		return 0
	}
	late := asOf.Sub(ref.Add(window))
	if late <= 0 {
		return 0
	}
	return int(late / (24 * time.Hour))
}

// Penalty is the late charge on one EMI at penaltyRate percent.
func Penalty(emi, penaltyRate decimal.Decimal) decimal.Decimal {
	return money.Round(emi.Mul(penaltyRate).Div(hundred))
}

func lastActivity(l Loan) *time.Time {
	if l.LastPaymentAt != nil {
		return l.LastPaymentAt
	}
	return l.DisbursedAt
}
