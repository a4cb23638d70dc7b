package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-ledger/internal/domain"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
)

var startDate = time.Date(2020, 1, 20, 0, 0, 0, 0, time.UTC)

func TestGenerateSchedule(t *testing.T) {
	t.Run("last installment absorbs the remainder", func(t *testing.T) {
		loan, schedule, err := GenerateSchedule("user-1", 1000, 3, "VND", startDate)
		require.NoError(t, err)

		assert.Equal(t, int64(1000), loan.Amount)
		assert.Equal(t, int64(1000), loan.OutstandingAmount)
		assert.Equal(t, domain.LoanStatusDue, loan.Status)
		assert.Equal(t, startDate, loan.ProcessedAt)
		assert.Equal(t, 3, loan.Terms)

		require.Len(t, schedule, 3)
		expectedAmounts := []int64{333, 333, 334}
		expectedDueDates := []time.Time{
			time.Date(2020, 2, 20, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC),
			time.Date(2020, 4, 20, 0, 0, 0, 0, time.UTC),
		}
		for i, s := range schedule {
			assert.Equal(t, i+1, s.InstallmentNumber)
			assert.Equal(t, loan.ID, s.LoanID)
			assert.Equal(t, expectedAmounts[i], s.Amount)
			assert.Equal(t, expectedAmounts[i], s.OutstandingAmount)
			assert.Equal(t, expectedDueDates[i], s.DueDate)
			assert.Equal(t, domain.RepaymentStatusDue, s.Status)
			assert.Equal(t, "VND", s.CurrencyCode)
		}
	})

	t.Run("single term is the full principal one month out", func(t *testing.T) {
		_, schedule, err := GenerateSchedule("user-1", 100, 1, "SGD", startDate)
		require.NoError(t, err)

		require.Len(t, schedule, 1)
		assert.Equal(t, int64(100), schedule[0].Amount)
		assert.Equal(t, time.Date(2020, 2, 20, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
	})

	t.Run("installments always sum to the principal", func(t *testing.T) {
		principals := []int64{1, 7, 99, 1000, 5000000, 123456789}
		for _, principal := range principals {
			for terms := 1; terms <= 36; terms++ {
				_, schedule, err := GenerateSchedule("user-1", principal, terms, "USD", startDate)
				require.NoError(t, err)
				require.Len(t, schedule, terms)

				var sum int64
				for _, s := range schedule {
					sum += s.Amount
					assert.GreaterOrEqual(t, s.Amount, int64(0))
				}
				assert.Equal(t, principal, sum, "principal %d, terms %d", principal, terms)
			}
		}
	})

	t.Run("more terms than minor units", func(t *testing.T) {
		_, schedule, err := GenerateSchedule("user-1", 2, 3, "USD", startDate)
		require.NoError(t, err)

		assert.Equal(t, int64(0), schedule[0].Amount)
		assert.Equal(t, int64(0), schedule[1].Amount)
		assert.Equal(t, int64(2), schedule[2].Amount)
		for _, s := range schedule {
			assert.NoError(t, s.Validate())
		}
	})

	t.Run("end of month start date overflows like calendar addition", func(t *testing.T) {
		_, schedule, err := GenerateSchedule("user-1", 300, 3, "USD", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		require.Len(t, schedule, 3)
		assert.Equal(t, time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
		assert.Equal(t, time.Date(2020, 4, 2, 0, 0, 0, 0, time.UTC), schedule[1].DueDate)
		assert.Equal(t, time.Date(2020, 5, 2, 0, 0, 0, 0, time.UTC), schedule[2].DueDate)
	})

	t.Run("currency code is normalized", func(t *testing.T) {
		loan, _, err := GenerateSchedule("user-1", 100, 1, " usd ", startDate)
		require.NoError(t, err)
		assert.Equal(t, "USD", loan.CurrencyCode)
	})

	t.Run("invalid arguments create nothing", func(t *testing.T) {
		tests := []struct {
			name      string
			principal int64
			terms     int
			currency  string
		}{
			{name: "zero principal", principal: 0, terms: 3, currency: "USD"},
			{name: "negative principal", principal: -100, terms: 3, currency: "USD"},
			{name: "zero terms", principal: 100, terms: 0, currency: "USD"},
			{name: "negative terms", principal: 100, terms: -1, currency: "USD"},
			{name: "missing currency", principal: 100, terms: 1, currency: ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				loan, schedule, err := GenerateSchedule("user-1", tt.principal, tt.terms, tt.currency, startDate)

				require.Error(t, err)
				assert.True(t, errors.Is(err, customError.ErrInvalidArgument))
				assert.Equal(t, customError.ErrCodeInvalidArgument, customError.CodeOf(err))
				assert.Nil(t, loan)
				assert.Nil(t, schedule)
			})
		}
	})
}
