package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/lending-ledger/internal/domain"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
	"github.com/segyhp/lending-ledger/pkg/utils"
)

// OverpaymentPolicy decides what happens to the loan balance when a payment
// exceeds what is outstanding.
type OverpaymentPolicy string

const (
	// OverpaymentAllow lets the loan balance go negative.
	OverpaymentAllow OverpaymentPolicy = "allow"
	// OverpaymentReject refuses payments larger than the loan balance.
	OverpaymentReject OverpaymentPolicy = "reject"
	// OverpaymentClamp records the payment but floors the loan balance at zero.
	OverpaymentClamp OverpaymentPolicy = "clamp"
)

// Allocation is the outcome of applying one received payment.
type Allocation struct {
	Received *domain.ReceivedRepayment
	// Touched holds the installments whose balance changed, in walk order.
	Touched []*domain.ScheduledRepayment
	Lines   []domain.AllocationLine
	// Unallocated is what is left of the payment once every open installment
	// has been walked.
	Unallocated int64
}

// SortForAllocation orders installments oldest due date first. Installments
// due on the same day keep their creation order.
func SortForAllocation(installments []*domain.ScheduledRepayment) {
	sort.SliceStable(installments, func(i, j int) bool {
		a, b := installments[i], installments[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.InstallmentNumber < b.InstallmentNumber
	})
}

// Allocate records a payment against the loan and walks its open
// installments oldest-first, mutating the loan and installments in place.
//
// The payment is recorded even when the loan is already repaid. The loan
// balance is reduced by the full amount; under OverpaymentAllow it may go
// negative. The loan becomes repaid only when its balance lands exactly on 0.
func Allocate(loan *domain.Loan, installments []*domain.ScheduledRepayment, amount int64, currencyCode string, receivedAt time.Time, policy OverpaymentPolicy) (*Allocation, error) {
	if loan == nil {
		return nil, customError.WrapInvalidArgument("loan is required")
	}
	if amount <= 0 {
		return nil, customError.WrapInvalidArgument("payment amount must be positive, got %d", amount)
	}
	if policy == OverpaymentReject && amount > loan.OutstandingAmount {
		return nil, customError.WrapInvalidArgument("payment amount %d exceeds outstanding balance %d", amount, loan.OutstandingAmount)
	}

	received := &domain.ReceivedRepayment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       amount,
		CurrencyCode: strings.ToUpper(strings.TrimSpace(currencyCode)),
		ReceivedAt:   utils.TruncateToDate(receivedAt),
	}

	balance := loan.OutstandingAmount - amount
	if policy == OverpaymentClamp {
		if floor := min(loan.OutstandingAmount, 0); balance < floor {
			balance = floor
		}
	}
	loan.OutstandingAmount = balance

	open := make([]*domain.ScheduledRepayment, 0, len(installments))
	for _, s := range installments {
		if s.Status != domain.RepaymentStatusRepaid {
			open = append(open, s)
		}
	}
	SortForAllocation(open)

	result := &Allocation{Received: received}

	remaining := amount
	for _, s := range open {
		if remaining <= 0 {
			break
		}

		before := s.OutstandingAmount
		applied := s.Apply(remaining)
		remaining -= applied

		result.Touched = append(result.Touched, s)
		result.Lines = append(result.Lines, domain.AllocationLine{
			InstallmentID:     s.ID,
			InstallmentNumber: s.InstallmentNumber,
			Applied:           applied,
			OutstandingBefore: before,
			OutstandingAfter:  s.OutstandingAmount,
			Status:            s.Status,
		})
	}
	result.Unallocated = remaining

	loan.Settle()

	return result, nil
}
