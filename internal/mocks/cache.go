package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/lending-ledger/internal/cache"
	"github.com/segyhp/lending-ledger/internal/domain"
)

type MockLoanCache struct {
	mock.Mock
}

func (m *MockLoanCache) Get(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, bool, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.LoanDetails), args.Bool(1), args.Error(2)
}

func (m *MockLoanCache) Version(ctx context.Context, loanID uuid.UUID) (int64, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLoanCache) Set(ctx context.Context, details *domain.LoanDetails, version int64) (bool, error) {
	args := m.Called(ctx, details, version)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanCache) Invalidate(ctx context.Context, loanID uuid.UUID) error {
	args := m.Called(ctx, loanID)
	return args.Error(0)
}

// MockLocker hands out a release func whose call is recorded as "Release".
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, loanID uuid.UUID) (cache.ReleaseFunc, error) {
	args := m.Called(ctx, loanID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return m.MethodCalled("Release", ctx, loanID).Error(0)
	}, nil
}
