package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/lending-ledger/internal/cache"
	"github.com/segyhp/lending-ledger/internal/domain"
	"github.com/segyhp/lending-ledger/internal/ledger"
	"github.com/segyhp/lending-ledger/internal/repository"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
	"github.com/segyhp/lending-ledger/pkg/utils"
)

// LoanCache stores read-side loan snapshots. Set only stores a snapshot read
// under a version that no Invalidate has superseded.
type LoanCache interface {
	Get(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, bool, error)
	Version(ctx context.Context, loanID uuid.UUID) (int64, error)
	Set(ctx context.Context, details *domain.LoanDetails, version int64) (bool, error)
	Invalidate(ctx context.Context, loanID uuid.UUID) error
}

// LoanLocker serializes writers of a single loan.
type LoanLocker interface {
	Lock(ctx context.Context, loanID uuid.UUID) (cache.ReleaseFunc, error)
}

type BillingService struct {
	LoanRepo      repository.LoanRepository
	RepaymentRepo repository.RepaymentRepository
	tx            repository.Transactor
	cache         LoanCache
	locker        LoanLocker
	policy        ledger.OverpaymentPolicy
	log           *logrus.Logger
}

// NewBillingService wires the service. loanCache may be nil; a nil locker
// falls back to cache.NopLocker.
func NewBillingService(
	loanRepo repository.LoanRepository,
	repaymentRepo repository.RepaymentRepository,
	tx repository.Transactor,
	loanCache LoanCache,
	locker LoanLocker,
	policy ledger.OverpaymentPolicy,
	log *logrus.Logger,
) *BillingService {
	if locker == nil {
		locker = cache.NopLocker{}
	}
	return &BillingService{
		LoanRepo:      loanRepo,
		RepaymentRepo: repaymentRepo,
		tx:            tx,
		cache:         loanCache,
		locker:        locker,
		policy:        policy,
		log:           log,
	}
}

// CreateLoan originates a loan and persists it with its repayment schedule
func (s *BillingService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error) {
	processedAt, err := utils.ParseDate(request.ProcessedAt)
	if err != nil {
		return nil, nil, customError.WrapInvalidArgument("processed_at must be a YYYY-MM-DD date, got %q", request.ProcessedAt)
	}

	// 1. Generate loan and schedule
	loan, schedule, err := ledger.GenerateSchedule(request.UserID, request.Amount, request.Terms, request.CurrencyCode, processedAt)
	if err != nil {
		return nil, nil, err
	}

	// 2. Save loan and schedule as one unit
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.LoanRepo.Create(ctx, loan); err != nil {
			return err
		}
		return s.RepaymentRepo.CreateSchedule(ctx, schedule)
	})
	if err != nil {
		return nil, nil, customError.WrapDatabaseError(err)
	}

	s.log.WithFields(logrus.Fields{
		"loan_id":  loan.ID,
		"user_id":  loan.UserID,
		"amount":   loan.Amount,
		"currency": loan.CurrencyCode,
		"terms":    loan.Terms,
	}).Info("loan created")

	return loan, schedule, nil
}

// GetLoan returns the loan with its full schedule, served from cache when possible
func (s *BillingService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, error) {
	cacheable := false
	var version int64
	if s.cache != nil {
		details, hit, err := s.cache.Get(ctx, loanID)
		if err != nil {
			s.log.WithError(err).WithField("loan_id", loanID).Warn("loan cache read failed")
		}
		if hit {
			return details, nil
		}

		// the version must be read before the database so a repayment
		// committed in between is detected by Set
		version, err = s.cache.Version(ctx, loanID)
		if err != nil {
			s.log.WithError(err).WithField("loan_id", loanID).Warn("loan cache version read failed")
		} else {
			cacheable = true
		}
	}

	loan, err := s.getLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.RepaymentRepo.GetScheduleByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	details := &domain.LoanDetails{Loan: loan, Schedule: schedule}

	if cacheable {
		stored, err := s.cache.Set(ctx, details, version)
		if err != nil {
			s.log.WithError(err).WithField("loan_id", loanID).Warn("loan cache write failed")
		} else if !stored {
			s.log.WithField("loan_id", loanID).Debug("loan changed during read, snapshot not cached")
		}
	}

	return details, nil
}

// GetSchedule returns the payment schedule for a loan
func (s *BillingService) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	if _, err := s.getLoan(ctx, loanID); err != nil {
		return nil, err
	}

	schedule, err := s.RepaymentRepo.GetScheduleByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return schedule, nil
}

// ListRepayments returns every payment received for a loan
func (s *BillingService) ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	if _, err := s.getLoan(ctx, loanID); err != nil {
		return nil, err
	}

	repayments, err := s.RepaymentRepo.GetReceivedByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return repayments, nil
}

// RepayLoan records a received payment and allocates it across the loan's
// open installments, oldest due date first. The loan row, the payment record
// and every touched installment are written in one transaction.
func (s *BillingService) RepayLoan(ctx context.Context, loanID uuid.UUID, amount int64, currencyCode string, receivedAt time.Time) (*domain.RepaymentResult, error) {
	// 1. Validate before taking any lock
	if amount <= 0 {
		return nil, customError.WrapInvalidArgument("payment amount must be positive, got %d", amount)
	}

	// 2. Serialize writers of this loan
	release, err := s.locker.Lock(ctx, loanID)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, customError.WrapLoanBusy(loanID.String())
	}
	if err != nil {
		return nil, customError.WrapCacheError(err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).WithField("loan_id", loanID).Warn("failed to release loan lock")
		}
	}()

	var result *domain.RepaymentResult

	// 3. Allocate and persist atomically
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		loan, err := s.LoanRepo.GetByIDForUpdate(ctx, loanID)
		if errors.Is(err, sql.ErrNoRows) {
			return customError.WrapLoanNotFound(loanID.String())
		}
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		installments, err := s.RepaymentRepo.GetOutstandingInstallments(ctx, loanID)
		if err != nil {
			return customError.WrapDatabaseError(err)
		}

		allocation, err := ledger.Allocate(loan, installments, amount, currencyCode, receivedAt, s.policy)
		if err != nil {
			return err
		}

		if err := s.RepaymentRepo.CreateReceived(ctx, allocation.Received); err != nil {
			return customError.WrapDatabaseError(err)
		}

		if err := s.LoanRepo.Update(ctx, loan); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return customError.WrapLoanNotFound(loanID.String())
			}
			return customError.WrapDatabaseError(err)
		}

		for _, installment := range allocation.Touched {
			if err := s.RepaymentRepo.UpdateInstallment(ctx, installment); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return customError.WrapInstallmentNotFound(installment.ID.String())
				}
				return customError.WrapDatabaseError(err)
			}
		}

		result = &domain.RepaymentResult{
			Received:    allocation.Received,
			Loan:        loan,
			Lines:       allocation.Lines,
			Unallocated: allocation.Unallocated,
		}
		return nil
	})
	if err != nil {
		var be *customError.BusinessError
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, customError.WrapDatabaseError(err)
	}

	// 4. Drop the stale snapshot
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, loanID); err != nil {
			s.log.WithError(err).WithField("loan_id", loanID).Warn("loan cache invalidation failed")
		}
	}

	entry := s.log.WithFields(logrus.Fields{
		"loan_id":      loanID,
		"repayment_id": result.Received.ID,
		"amount":       amount,
		"currency":     result.Received.CurrencyCode,
		"installments": len(result.Lines),
		"outstanding":  result.Loan.OutstandingAmount,
		"loan_status":  result.Loan.Status,
	})
	if result.Loan.OutstandingAmount < 0 {
		entry.Warn("repayment exceeded outstanding balance")
	} else {
		entry.Info("repayment allocated")
	}

	return result, nil
}

func (s *BillingService) getLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.LoanRepo.GetByID(ctx, loanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}
