package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/lending-ledger/internal/domain"
)

const scheduleColumns = `id, loan_id, installment_number, amount, outstanding_amount, currency_code, due_date, status, created_at, updated_at`

type repaymentRepository struct {
	db *sqlx.DB
}

func NewRepaymentRepository(db *sqlx.DB) RepaymentRepository {
	return &repaymentRepository{db: db}
}

func (r *repaymentRepository) CreateSchedule(ctx context.Context, schedules []*domain.ScheduledRepayment) error {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		INSERT INTO scheduled_repayments (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	now := time.Now().UTC()
	for _, schedule := range schedules {
		schedule.CreatedAt = now
		schedule.UpdatedAt = now

		_, err := q.ExecContext(ctx, query,
			schedule.ID,
			schedule.LoanID,
			schedule.InstallmentNumber,
			schedule.Amount,
			schedule.OutstandingAmount,
			schedule.CurrencyCode,
			schedule.DueDate,
			schedule.Status,
			schedule.CreatedAt,
			schedule.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", schedule.InstallmentNumber, err)
		}
	}

	return nil
}

func (r *repaymentRepository) GetScheduleByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		SELECT ` + scheduleColumns + `
		FROM scheduled_repayments
		WHERE loan_id = ?
		ORDER BY installment_number
	`)

	var schedules []*domain.ScheduledRepayment
	if err := sqlx.SelectContext(ctx, q, &schedules, query, loanID); err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedules, nil
}

func (r *repaymentRepository) GetOutstandingInstallments(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		SELECT ` + scheduleColumns + `
		FROM scheduled_repayments
		WHERE loan_id = ? AND status <> ?
		ORDER BY due_date, installment_number
	`)

	var schedules []*domain.ScheduledRepayment
	if err := sqlx.SelectContext(ctx, q, &schedules, query, loanID, domain.RepaymentStatusRepaid); err != nil {
		return nil, fmt.Errorf("failed to get outstanding installments: %w", err)
	}
	return schedules, nil
}

func (r *repaymentRepository) UpdateInstallment(ctx context.Context, schedule *domain.ScheduledRepayment) error {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		UPDATE scheduled_repayments
		SET outstanding_amount = ?, status = ?, updated_at = ?
		WHERE id = ?
	`)

	schedule.UpdatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, query,
		schedule.OutstandingAmount,
		schedule.Status,
		schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment %s: %w", schedule.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("failed to update installment %s: %w", schedule.ID, err)
	}
	return nil
}

func (r *repaymentRepository) CreateReceived(ctx context.Context, repayment *domain.ReceivedRepayment) error {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		INSERT INTO received_repayments (id, loan_id, amount, currency_code, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	repayment.CreatedAt = time.Now().UTC()

	_, err := q.ExecContext(ctx, query,
		repayment.ID,
		repayment.LoanID,
		repayment.Amount,
		repayment.CurrencyCode,
		repayment.ReceivedAt,
		repayment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create received repayment: %w", err)
	}
	return nil
}

func (r *repaymentRepository) GetReceivedByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		SELECT id, loan_id, amount, currency_code, received_at, created_at
		FROM received_repayments
		WHERE loan_id = ?
		ORDER BY received_at, created_at, id
	`)

	var repayments []*domain.ReceivedRepayment
	if err := sqlx.SelectContext(ctx, q, &repayments, query, loanID); err != nil {
		return nil, fmt.Errorf("failed to get received repayments: %w", err)
	}
	return repayments, nil
}
