package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Installment statuses
const (
	RepaymentStatusDue     = "due"
	RepaymentStatusPartial = "partial"
	RepaymentStatusRepaid  = "repaid"
)

// ScheduledRepayment is one installment of a loan's repayment plan.
type ScheduledRepayment struct {
	ID                uuid.UUID `json:"id" db:"id"`
	LoanID            uuid.UUID `json:"loan_id" db:"loan_id"`
	InstallmentNumber int       `json:"installment_number" db:"installment_number"`
	Amount            int64     `json:"amount" db:"amount"`
	OutstandingAmount int64     `json:"outstanding_amount" db:"outstanding_amount"`
	CurrencyCode      string    `json:"currency_code" db:"currency_code"`
	DueDate           time.Time `json:"due_date" db:"due_date"`
	Status            string    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// StatusFor derives the installment status from its balances.
func StatusFor(outstanding, amount int64) string {
	switch {
	case outstanding == 0:
		return RepaymentStatusRepaid
	case outstanding == amount:
		return RepaymentStatusDue
	default:
		return RepaymentStatusPartial
	}
}

// Apply consumes up to remaining from the installment's outstanding balance
// and returns the amount applied. Nothing is applied when the resulting
// status change is not allowed, so a repaid installment absorbs nothing.
func (s *ScheduledRepayment) Apply(remaining int64) int64 {
	if remaining <= 0 {
		return 0
	}

	applied := min(remaining, s.OutstandingAmount)
	next := StatusFor(s.OutstandingAmount-applied, s.Amount)
	if !CanTransition(s.Status, next) {
		return 0
	}

	s.OutstandingAmount -= applied
	s.Status = next
	return applied
}

// Validate checks the balance and status invariants of the installment.
//
// An installment with a zero amount (principal smaller than terms) is both
// fully outstanding and fully paid. It is created due and stays valid as due
// until a payment walks over it and settles it as repaid.
func (s *ScheduledRepayment) Validate() error {
	if s.OutstandingAmount < 0 || s.OutstandingAmount > s.Amount {
		return fmt.Errorf("installment %d: outstanding %d outside [0, %d]", s.InstallmentNumber, s.OutstandingAmount, s.Amount)
	}
	if s.Amount == 0 && s.Status == RepaymentStatusDue {
		return nil
	}
	if expected := StatusFor(s.OutstandingAmount, s.Amount); s.Status != expected {
		return fmt.Errorf("installment %d: status %q does not match balance, expected %q", s.InstallmentNumber, s.Status, expected)
	}
	return nil
}

var transitions = map[string][]string{
	RepaymentStatusDue:     {RepaymentStatusPartial, RepaymentStatusRepaid},
	RepaymentStatusPartial: {RepaymentStatusPartial, RepaymentStatusRepaid},
}

// CanTransition reports whether an installment may move from one status to
// another. Repaid is terminal.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ScheduleResponse struct {
	LoanID   uuid.UUID             `json:"loan_id"`
	Schedule []*ScheduledRepayment `json:"schedule"`
}
