package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/lending-ledger/internal/domain"
)

const loanColumns = `id, user_id, amount, currency_code, terms, outstanding_amount, processed_at, status, created_at, updated_at`

type loanRepository struct {
	db *sqlx.DB
}

func NewLoanRepository(db *sqlx.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		INSERT INTO loans (` + loanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	now := time.Now().UTC()
	loan.CreatedAt = now
	loan.UpdatedAt = now

	_, err := q.ExecContext(ctx, query,
		loan.ID,
		loan.UserID,
		loan.Amount,
		loan.CurrencyCode,
		loan.Terms,
		loan.OutstandingAmount,
		loan.ProcessedAt,
		loan.Status,
		loan.CreatedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return r.get(ctx, id, false)
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return r.get(ctx, id, true)
}

func (r *loanRepository) get(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.Loan, error) {
	q := executor(ctx, r.db)
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = ?
	`
	// SQLite has no row locks; its single writer serializes the transaction instead.
	if forUpdate && r.db.DriverName() != driverSQLite {
		query += ` FOR UPDATE`
	}

	var loan domain.Loan
	if err := sqlx.GetContext(ctx, q, &loan, q.Rebind(query), id); err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) Update(ctx context.Context, loan *domain.Loan) error {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		UPDATE loans
		SET outstanding_amount = ?, status = ?, updated_at = ?
		WHERE id = ?
	`)

	loan.UpdatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, query,
		loan.OutstandingAmount,
		loan.Status,
		loan.UpdatedAt,
		loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return fmt.Errorf("failed to update loan %s: %w", loan.ID, err)
	}
	return nil
}

func (r *loanRepository) ListByStatus(ctx context.Context, status string) ([]*domain.Loan, error) {
	q := executor(ctx, r.db)
	query := q.Rebind(`
		SELECT ` + loanColumns + `
		FROM loans
		WHERE status = ?
		ORDER BY processed_at, id
	`)

	var loans []*domain.Loan
	if err := sqlx.SelectContext(ctx, q, &loans, query, status); err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}
