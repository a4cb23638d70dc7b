package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReceivedRepayment is the immutable audit record of a payment event.
type ReceivedRepayment struct {
	ID           uuid.UUID `json:"id" db:"id"`
	LoanID       uuid.UUID `json:"loan_id" db:"loan_id"`
	Amount       int64     `json:"amount" db:"amount"`
	CurrencyCode string    `json:"currency_code" db:"currency_code"`
	ReceivedAt   time.Time `json:"received_at" db:"received_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// AllocationLine records how much of a payment went to one installment.
type AllocationLine struct {
	InstallmentID     uuid.UUID `json:"installment_id"`
	InstallmentNumber int       `json:"installment_number"`
	Applied           int64     `json:"applied"`
	OutstandingBefore int64     `json:"outstanding_before"`
	OutstandingAfter  int64     `json:"outstanding_after"`
	Status            string    `json:"status"`
}

type RepayLoanRequest struct {
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	CurrencyCode string `json:"currency_code" validate:"required,iso4217"`
	ReceivedAt   string `json:"received_at" validate:"required,datetime=2006-01-02"`
}

type RepayLoanResponse struct {
	ReceivedRepayment *ReceivedRepayment `json:"received_repayment"`
	AmountDisplay     string             `json:"amount_display"`
	Loan              *LoanView          `json:"loan"`
	Allocations       []AllocationLine   `json:"allocations"`
	Unallocated       int64              `json:"unallocated"`
}

// RepaymentResult is the outcome of allocating one received payment.
type RepaymentResult struct {
	Received    *ReceivedRepayment
	Loan        *Loan
	Lines       []AllocationLine
	Unallocated int64
}
