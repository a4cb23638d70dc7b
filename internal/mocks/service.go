package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/lending-ledger/internal/domain"
)

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.Loan), args.Get(1).([]*domain.ScheduledRepayment), args.Error(2)
}

func (m *MockBillingService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDetails), args.Error(1)
}

func (m *MockBillingService) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockBillingService) RepayLoan(ctx context.Context, loanID uuid.UUID, amount int64, currencyCode string, receivedAt time.Time) (*domain.RepaymentResult, error) {
	args := m.Called(ctx, loanID, amount, currencyCode, receivedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RepaymentResult), args.Error(1)
}

func (m *MockBillingService) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReceivedRepayment), args.Error(1)
}
