package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	LoanStatusDue    = "due"
	LoanStatusRepaid = "repaid"
)

// Loan represents a loan entity. Amounts are in minor currency units.
type Loan struct {
	ID                uuid.UUID `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	Amount            int64     `json:"amount" db:"amount"`
	CurrencyCode      string    `json:"currency_code" db:"currency_code"`
	Terms             int       `json:"terms" db:"terms"`
	OutstandingAmount int64     `json:"outstanding_amount" db:"outstanding_amount"`
	ProcessedAt       time.Time `json:"processed_at" db:"processed_at"`
	Status            string    `json:"status" db:"status"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// IsRepaid reports whether the loan reached its terminal state.
func (l *Loan) IsRepaid() bool {
	return l.Status == LoanStatusRepaid
}

// Settle moves the loan to repaid once nothing is outstanding. The transition
// is one-way: a repaid loan is never moved back to due.
func (l *Loan) Settle() bool {
	if l.Status == LoanStatusDue && l.OutstandingAmount == 0 {
		l.Status = LoanStatusRepaid
		return true
	}
	return false
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	CurrencyCode string `json:"currency_code" validate:"required,iso4217"`
	Terms        int    `json:"terms" validate:"required,gt=0"`
	ProcessedAt  string `json:"processed_at" validate:"required,datetime=2006-01-02"`
}

type LoanResponse struct {
	Loan     *LoanView             `json:"loan"`
	Schedule []*ScheduledRepayment `json:"schedule"`
}

// LoanView is the loan as presented over the API, with decimal renderings of
// the minor-unit amounts.
type LoanView struct {
	*Loan
	AmountDisplay            string `json:"amount_display"`
	OutstandingAmountDisplay string `json:"outstanding_amount_display"`
}

// LoanDetails is a loan together with its full schedule.
type LoanDetails struct {
	Loan     *Loan                 `json:"loan"`
	Schedule []*ScheduledRepayment `json:"schedule"`
}
