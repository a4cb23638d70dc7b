package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/lending-ledger/internal/domain"
	"github.com/segyhp/lending-ledger/internal/repository"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
)

const (
	DiscrepancyOutstandingMismatch = "outstanding_mismatch"
	DiscrepancyNegativeOutstanding = "negative_outstanding"
	DiscrepancyInstallmentStatus   = "installment_status"
)

// Discrepancy is a single broken balance invariant found on a loan.
type Discrepancy struct {
	LoanID            uuid.UUID `json:"loan_id"`
	Kind              string    `json:"kind"`
	InstallmentNumber int       `json:"installment_number,omitempty"`
	Expected          int64     `json:"expected"`
	Actual            int64     `json:"actual"`
	Detail            string    `json:"detail,omitempty"`
}

type ReconciliationReport struct {
	LoansChecked  int           `json:"loans_checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

func (r *ReconciliationReport) Clean() bool {
	return len(r.Discrepancies) == 0
}

// Reconciler checks that every open loan's outstanding balance agrees with
// its installments. It only reads.
type Reconciler struct {
	LoanRepo      repository.LoanRepository
	RepaymentRepo repository.RepaymentRepository
	log           *logrus.Logger
}

func NewReconciler(loanRepo repository.LoanRepository, repaymentRepo repository.RepaymentRepository, log *logrus.Logger) *Reconciler {
	return &Reconciler{
		LoanRepo:      loanRepo,
		RepaymentRepo: repaymentRepo,
		log:           log,
	}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconciliationReport, error) {
	loans, err := r.LoanRepo.ListByStatus(ctx, domain.LoanStatusDue)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	report := &ReconciliationReport{Discrepancies: []Discrepancy{}}

	for _, loan := range loans {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		schedule, err := r.RepaymentRepo.GetScheduleByLoanID(ctx, loan.ID)
		if err != nil {
			return report, customError.WrapDatabaseError(err)
		}
		report.LoansChecked++

		for _, d := range checkLoan(loan, schedule) {
			r.log.WithFields(logrus.Fields{
				"loan_id":     d.LoanID,
				"kind":        d.Kind,
				"installment": d.InstallmentNumber,
				"expected":    d.Expected,
				"actual":      d.Actual,
			}).Warn("ledger discrepancy")
			report.Discrepancies = append(report.Discrepancies, d)
		}
	}

	r.log.WithFields(logrus.Fields{
		"loans_checked": report.LoansChecked,
		"discrepancies": len(report.Discrepancies),
	}).Info("reconciliation finished")

	return report, nil
}

func checkLoan(loan *domain.Loan, schedule []*domain.ScheduledRepayment) []Discrepancy {
	var found []Discrepancy

	var sum int64
	for _, s := range schedule {
		sum += s.OutstandingAmount
		if err := s.Validate(); err != nil {
			found = append(found, Discrepancy{
				LoanID:            loan.ID,
				Kind:              DiscrepancyInstallmentStatus,
				InstallmentNumber: s.InstallmentNumber,
				Expected:          s.Amount,
				Actual:            s.OutstandingAmount,
				Detail:            err.Error(),
			})
		}
	}

	if loan.OutstandingAmount < 0 {
		found = append(found, Discrepancy{
			LoanID:   loan.ID,
			Kind:     DiscrepancyNegativeOutstanding,
			Expected: 0,
			Actual:   loan.OutstandingAmount,
		})
	}

	if loan.OutstandingAmount != sum {
		found = append(found, Discrepancy{
			LoanID:   loan.ID,
			Kind:     DiscrepancyOutstandingMismatch,
			Expected: sum,
			Actual:   loan.OutstandingAmount,
		})
	}

	return found
}
