package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/lending-ledger/internal/domain"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Loan), args.Error(1)
}

type MockRepaymentRepository struct {
	mock.Mock
}

func (m *MockRepaymentRepository) CreateSchedule(ctx context.Context, schedules []*domain.ScheduledRepayment) error {
	args := m.Called(ctx, schedules)
	return args.Error(0)
}

func (m *MockRepaymentRepository) GetScheduleByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockRepaymentRepository) GetOutstandingInstallments(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockRepaymentRepository) UpdateInstallment(ctx context.Context, schedule *domain.ScheduledRepayment) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockRepaymentRepository) CreateReceived(ctx context.Context, repayment *domain.ReceivedRepayment) error {
	args := m.Called(ctx, repayment)
	return args.Error(0)
}

func (m *MockRepaymentRepository) GetReceivedByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReceivedRepayment), args.Error(1)
}

// MockTransactor runs fn inline unless the expectation returns an error,
// which stands in for a failed BEGIN.
type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}
