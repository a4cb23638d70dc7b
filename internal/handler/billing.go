package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/lending-ledger/internal/domain"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
	"github.com/segyhp/lending-ledger/pkg/money"
	"github.com/segyhp/lending-ledger/pkg/response"
	"github.com/segyhp/lending-ledger/pkg/utils"
)

// LoanService is what the HTTP layer needs from the billing service.
type LoanService interface {
	CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.LoanDetails, error)
	GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error)
	RepayLoan(ctx context.Context, loanID uuid.UUID, amount int64, currencyCode string, receivedAt time.Time) (*domain.RepaymentResult, error)
	ListRepayments(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error)
}

type BillingHandler struct {
	service   LoanService
	validator *validator.Validate
	log       logrus.FieldLogger
}

func NewBillingHandler(service LoanService, log logrus.FieldLogger) *BillingHandler {
	return &BillingHandler{
		service:   service,
		validator: validator.New(),
		log:       log,
	}
}

// RegisterRoutes mounts the loan endpoints on r, usually the /api/v1 subrouter.
func (h *BillingHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/loans", h.CreateLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{loanId}", h.GetLoan).Methods(http.MethodGet)
	r.HandleFunc("/loans/{loanId}/schedule", h.GetSchedule).Methods(http.MethodGet)
	r.HandleFunc("/loans/{loanId}/repayments", h.RepayLoan).Methods(http.MethodPost)
	r.HandleFunc("/loans/{loanId}/repayments", h.ListRepayments).Methods(http.MethodGet)
}

// CreateLoan handles POST /loans
func (h *BillingHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreateLoanRequest
	if !h.decode(w, r, &request) {
		return
	}

	loan, schedule, err := h.service.CreateLoan(r.Context(), &request)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Created(w, domain.LoanResponse{
		Loan:     loanView(loan),
		Schedule: schedule,
	})
}

// GetLoan handles GET /loans/{loanId}
func (h *BillingHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Success(w, domain.LoanResponse{
		Loan:     loanView(details.Loan),
		Schedule: details.Schedule,
	})
}

// GetSchedule handles GET /loans/{loanId}/schedule
func (h *BillingHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Success(w, domain.ScheduleResponse{
		LoanID:   loanID,
		Schedule: schedule,
	})
}

// RepayLoan handles POST /loans/{loanId}/repayments
func (h *BillingHandler) RepayLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	var request domain.RepayLoanRequest
	if !h.decode(w, r, &request) {
		return
	}

	receivedAt, err := utils.ParseDate(request.ReceivedAt)
	if err != nil {
		response.BadRequest(w, customError.ErrCodeInvalidArgument, "received_at must be a YYYY-MM-DD date", err)
		return
	}

	result, err := h.service.RepayLoan(r.Context(), loanID, request.Amount, request.CurrencyCode, receivedAt)
	if err != nil {
		h.handleError(w, err)
		return
	}

	response.Created(w, domain.RepayLoanResponse{
		ReceivedRepayment: result.Received,
		AmountDisplay:     money.Format(result.Received.Amount, result.Received.CurrencyCode),
		Loan:              loanView(result.Loan),
		Allocations:       result.Lines,
		Unallocated:       result.Unallocated,
	})
}

// ListRepayments handles GET /loans/{loanId}/repayments
func (h *BillingHandler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	loanID, ok := h.loanID(w, r)
	if !ok {
		return
	}

	repayments, err := h.service.ListRepayments(r.Context(), loanID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	if repayments == nil {
		repayments = []*domain.ReceivedRepayment{}
	}
	response.Success(w, repayments)
}

func (h *BillingHandler) loanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := mux.Vars(r)["loanId"]
	loanID, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(w, customError.ErrCodeInvalidArgument, "loanId must be a UUID", err)
		return uuid.Nil, false
	}
	return loanID, true
}

// decode reads the JSON body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func (h *BillingHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, customError.ErrCodeInvalidArgument, "Invalid request body", err)
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, fe := range validationErrors {
				fields[fe.Field()] = fe.Tag()
			}
			response.ErrorWithDetails(w, http.StatusBadRequest, customError.ErrCodeInvalidArgument, "Validation failed", nil, fields)
			return false
		}
		response.BadRequest(w, customError.ErrCodeInvalidArgument, "Validation failed", err)
		return false
	}

	return true
}

func (h *BillingHandler) handleError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	message := "Internal server error"
	if errors.As(err, &be) {
		message = be.Message
	}

	switch {
	case errors.Is(err, customError.ErrInvalidArgument):
		response.BadRequest(w, customError.ErrCodeInvalidArgument, message, nil)
	case errors.Is(err, customError.ErrLoanNotFound):
		response.NotFound(w, customError.ErrCodeLoanNotFound, message)
	case errors.Is(err, customError.ErrInstallmentNotFound):
		response.NotFound(w, customError.ErrCodeInstallmentNotFound, message)
	case errors.Is(err, customError.ErrLoanBusy):
		response.Conflict(w, customError.ErrCodeLoanBusy, message)
	default:
		h.log.WithError(err).Error("request failed")
		code := customError.CodeOf(err)
		if code == "" {
			code = "INTERNAL_ERROR"
		}
		response.InternalServerError(w, code, message, nil)
	}
}

func loanView(loan *domain.Loan) *domain.LoanView {
	return &domain.LoanView{
		Loan:                     loan,
		AmountDisplay:            money.Format(loan.Amount, loan.CurrencyCode),
		OutstandingAmountDisplay: money.Format(loan.OutstandingAmount, loan.CurrencyCode),
	}
}
