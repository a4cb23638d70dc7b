// Package ledger holds the loan-repayment engine: schedule generation and
// waterfall allocation of received payments. It performs no I/O; callers
// persist its results inside a single transaction.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/lending-ledger/internal/domain"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
	"github.com/segyhp/lending-ledger/pkg/utils"
)

// GenerateSchedule originates a loan and splits its principal into terms
// monthly installments. The first installment is due one calendar month after
// startDate. Integer division leaves a remainder which the last installment
// absorbs, so installment amounts always sum to the principal.
func GenerateSchedule(userID string, principal int64, terms int, currencyCode string, startDate time.Time) (*domain.Loan, []*domain.ScheduledRepayment, error) {
	if principal <= 0 {
		return nil, nil, customError.WrapInvalidArgument("principal must be positive, got %d", principal)
	}
	if terms <= 0 {
		return nil, nil, customError.WrapInvalidArgument("terms must be positive, got %d", terms)
	}
	currencyCode = strings.ToUpper(strings.TrimSpace(currencyCode))
	if currencyCode == "" {
		return nil, nil, customError.WrapInvalidArgument("currency code is required")
	}

	processedAt := utils.TruncateToDate(startDate)

	loan := &domain.Loan{
		ID:                uuid.New(),
		UserID:            userID,
		Amount:            principal,
		CurrencyCode:      currencyCode,
		Terms:             terms,
		OutstandingAmount: principal,
		ProcessedAt:       processedAt,
		Status:            domain.LoanStatusDue,
	}

	base := principal / int64(terms)
	remainder := principal % int64(terms)

	schedule := make([]*domain.ScheduledRepayment, 0, terms)
	for n := 1; n <= terms; n++ {
		amount := base
		if n == terms {
			amount += remainder
		}

		schedule = append(schedule, &domain.ScheduledRepayment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			InstallmentNumber: n,
			Amount:            amount,
			OutstandingAmount: amount,
			CurrencyCode:      currencyCode,
			DueDate:           utils.CalculateDueDate(processedAt, n),
			Status:            domain.RepaymentStatusDue,
		})
	}

	return loan, schedule, nil
}
