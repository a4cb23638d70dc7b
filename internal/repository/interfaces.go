package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/segyhp/lending-ledger/internal/domain"
)

// Transactor runs a unit of work atomically. Repositories called with the
// context passed to fn take part in the same transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// GetByIDForUpdate retrieves a loan and locks its row until the surrounding transaction ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// Update updates the loan's outstanding amount and status
	Update(ctx context.Context, loan *domain.Loan) error

	// ListByStatus retrieves all loans with the given status
	ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error)
}

// RepaymentRepository defines the interface for scheduled and received repayment operations
type RepaymentRepository interface {
	// CreateSchedule creates all installments of a loan in one batch
	CreateSchedule(ctx context.Context, schedules []*domain.ScheduledRepayment) error

	// GetScheduleByLoanID retrieves every installment of a loan ordered by installment number
	GetScheduleByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error)

	// GetOutstandingInstallments retrieves installments not yet repaid, oldest due date first
	GetOutstandingInstallments(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error)

	// UpdateInstallment updates an installment's outstanding amount and status
	UpdateInstallment(ctx context.Context, schedule *domain.ScheduledRepayment) error

	// CreateReceived records a received repayment
	CreateReceived(ctx context.Context, repayment *domain.ReceivedRepayment) error

	// GetReceivedByLoanID retrieves all received repayments for a loan
	GetReceivedByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error)
}
