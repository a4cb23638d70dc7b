package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/lending-ledger/internal/domain"
	"github.com/segyhp/lending-ledger/internal/handler"
	"github.com/segyhp/lending-ledger/internal/mocks"
	customError "github.com/segyhp/lending-ledger/pkg/errors"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

func setupRouter(svc *mocks.MockBillingService) *mux.Router {
	logger, _ := test.NewNullLogger()
	router := mux.NewRouter()
	handler.NewBillingHandler(svc, logger).RegisterRoutes(router.PathPrefix("/api/v1").Subrouter())
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func sampleLoan() (*domain.Loan, []*domain.ScheduledRepayment) {
	loan := &domain.Loan{
		ID:                uuid.New(),
		UserID:            "user-1",
		Amount:            100000,
		CurrencyCode:      "USD",
		Terms:             2,
		OutstandingAmount: 100000,
		ProcessedAt:       time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:            domain.LoanStatusDue,
	}
	schedule := []*domain.ScheduledRepayment{
		{ID: uuid.New(), LoanID: loan.ID, InstallmentNumber: 1, Amount: 50000, OutstandingAmount: 50000, CurrencyCode: "USD", DueDate: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Status: domain.RepaymentStatusDue},
		{ID: uuid.New(), LoanID: loan.ID, InstallmentNumber: 2, Amount: 50000, OutstandingAmount: 50000, CurrencyCode: "USD", DueDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Status: domain.RepaymentStatusDue},
	}
	return loan, schedule
}

func TestBillingHandler_CreateLoan(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMock      func(*mocks.MockBillingService)
		expectedStatus int
		expectedCode   string
		checkResponse  func(*testing.T, envelope)
	}{
		{
			name: "successful loan creation",
			requestBody: domain.CreateLoanRequest{
				UserID: "user-1", Amount: 100000, CurrencyCode: "USD", Terms: 2, ProcessedAt: "2024-01-31",
			},
			setupMock: func(svc *mocks.MockBillingService) {
				loan, schedule := sampleLoan()
				svc.On("CreateLoan", mock.Anything, mock.MatchedBy(func(req *domain.CreateLoanRequest) bool {
					return req.UserID == "user-1" && req.Amount == 100000 && req.Terms == 2
				})).Return(loan, schedule, nil).Once()
			},
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, env envelope) {
				var body struct {
					Loan struct {
						Amount        int64  `json:"amount"`
						AmountDisplay string `json:"amount_display"`
						Status        string `json:"status"`
					} `json:"loan"`
					Schedule []domain.ScheduledRepayment `json:"schedule"`
				}
				require.NoError(t, json.Unmarshal(env.Data, &body))
				assert.Equal(t, int64(100000), body.Loan.Amount)
				assert.Equal(t, "1000.00", body.Loan.AmountDisplay)
				assert.Equal(t, domain.LoanStatusDue, body.Loan.Status)
				assert.Len(t, body.Schedule, 2)
			},
		},
		{
			name:           "malformed JSON",
			requestBody:    `{"user_id":`,
			setupMock:      func(*mocks.MockBillingService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeInvalidArgument,
		},
		{
			name: "validation failure",
			requestBody: domain.CreateLoanRequest{
				UserID: "user-1", Amount: -5, CurrencyCode: "XXQ", Terms: 2, ProcessedAt: "2024-01-31",
			},
			setupMock:      func(*mocks.MockBillingService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeInvalidArgument,
			checkResponse: func(t *testing.T, env envelope) {
				var fields map[string]string
				require.NoError(t, json.Unmarshal(env.Details, &fields))
				assert.Equal(t, "gt", fields["Amount"])
				assert.Equal(t, "iso4217", fields["CurrencyCode"])
			},
		},
		{
			name: "storage failure",
			requestBody: domain.CreateLoanRequest{
				UserID: "user-1", Amount: 100000, CurrencyCode: "USD", Terms: 2, ProcessedAt: "2024-01-31",
			},
			setupMock: func(svc *mocks.MockBillingService) {
				svc.On("CreateLoan", mock.Anything, mock.Anything).
					Return(nil, nil, customError.WrapDatabaseError(errors.New("disk full"))).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   customError.ErrCodeDatabaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.MockBillingService{}
			tt.setupMock(svc)

			w, env := do(t, setupRouter(svc), http.MethodPost, "/api/v1/loans", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.False(t, env.Success)
				assert.Equal(t, tt.expectedCode, env.Code)
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, env)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestBillingHandler_RepayLoan(t *testing.T) {
	loan, schedule := sampleLoan()

	tests := []struct {
		name           string
		loanID         string
		requestBody    interface{}
		setupMock      func(*mocks.MockBillingService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name:        "payment allocated",
			loanID:      loan.ID.String(),
			requestBody: domain.RepayLoanRequest{Amount: 60000, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock: func(svc *mocks.MockBillingService) {
				paid := *loan
				paid.OutstandingAmount = 40000
				svc.On("RepayLoan", mock.Anything, loan.ID, int64(60000), "USD", time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)).
					Return(&domain.RepaymentResult{
						Received: &domain.ReceivedRepayment{ID: uuid.New(), LoanID: loan.ID, Amount: 60000, CurrencyCode: "USD"},
						Loan:     &paid,
						Lines: []domain.AllocationLine{
							{InstallmentID: schedule[0].ID, InstallmentNumber: 1, Applied: 50000, OutstandingBefore: 50000, Status: domain.RepaymentStatusRepaid},
							{InstallmentID: schedule[1].ID, InstallmentNumber: 2, Applied: 10000, OutstandingBefore: 50000, OutstandingAfter: 40000, Status: domain.RepaymentStatusPartial},
						},
					}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "loan id is not a uuid",
			loanID:         "loan-123",
			requestBody:    domain.RepayLoanRequest{Amount: 100, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock:      func(*mocks.MockBillingService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeInvalidArgument,
		},
		{
			name:           "received_at in the wrong format",
			loanID:         loan.ID.String(),
			requestBody:    domain.RepayLoanRequest{Amount: 100, CurrencyCode: "USD", ReceivedAt: "20/02/2024"},
			setupMock:      func(*mocks.MockBillingService) {},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeInvalidArgument,
		},
		{
			name:        "unknown loan",
			loanID:      loan.ID.String(),
			requestBody: domain.RepayLoanRequest{Amount: 100, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock: func(svc *mocks.MockBillingService) {
				svc.On("RepayLoan", mock.Anything, loan.ID, int64(100), "USD", mock.Anything).
					Return(nil, customError.WrapLoanNotFound(loan.ID.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   customError.ErrCodeLoanNotFound,
		},
		{
			name:        "installment removed underneath the repayment",
			loanID:      loan.ID.String(),
			requestBody: domain.RepayLoanRequest{Amount: 100, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock: func(svc *mocks.MockBillingService) {
				svc.On("RepayLoan", mock.Anything, loan.ID, int64(100), "USD", mock.Anything).
					Return(nil, customError.WrapInstallmentNotFound(schedule[0].ID.String())).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedCode:   customError.ErrCodeInstallmentNotFound,
		},
		{
			name:        "concurrent repayment in flight",
			loanID:      loan.ID.String(),
			requestBody: domain.RepayLoanRequest{Amount: 100, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock: func(svc *mocks.MockBillingService) {
				svc.On("RepayLoan", mock.Anything, loan.ID, int64(100), "USD", mock.Anything).
					Return(nil, customError.WrapLoanBusy(loan.ID.String())).Once()
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   customError.ErrCodeLoanBusy,
		},
		{
			name:        "overpayment rejected by policy",
			loanID:      loan.ID.String(),
			requestBody: domain.RepayLoanRequest{Amount: 999999, CurrencyCode: "USD", ReceivedAt: "2024-02-20"},
			setupMock: func(svc *mocks.MockBillingService) {
				svc.On("RepayLoan", mock.Anything, loan.ID, int64(999999), "USD", mock.Anything).
					Return(nil, customError.WrapInvalidArgument("payment amount %d exceeds outstanding balance %d", 999999, 100000)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mocks.MockBillingService{}
			tt.setupMock(svc)

			w, env := do(t, setupRouter(svc), http.MethodPost, "/api/v1/loans/"+tt.loanID+"/repayments", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, env.Code)
			} else {
				var body struct {
					AmountDisplay string                  `json:"amount_display"`
					Allocations   []domain.AllocationLine `json:"allocations"`
					Loan          struct {
						OutstandingAmountDisplay string `json:"outstanding_amount_display"`
					} `json:"loan"`
				}
				require.NoError(t, json.Unmarshal(env.Data, &body))
				assert.Equal(t, "600.00", body.AmountDisplay)
				assert.Equal(t, "400.00", body.Loan.OutstandingAmountDisplay)
				assert.Len(t, body.Allocations, 2)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestBillingHandler_Queries(t *testing.T) {
	loan, schedule := sampleLoan()

	t.Run("get loan", func(t *testing.T) {
		svc := &mocks.MockBillingService{}
		svc.On("GetLoan", mock.Anything, loan.ID).Return(&domain.LoanDetails{Loan: loan, Schedule: schedule}, nil)

		w, env := do(t, setupRouter(svc), http.MethodGet, "/api/v1/loans/"+loan.ID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, env.Success)
		assert.Contains(t, string(env.Data), `"outstanding_amount_display":"1000.00"`)
	})

	t.Run("get schedule", func(t *testing.T) {
		svc := &mocks.MockBillingService{}
		svc.On("GetSchedule", mock.Anything, loan.ID).Return(schedule, nil)

		w, env := do(t, setupRouter(svc), http.MethodGet, "/api/v1/loans/"+loan.ID.String()+"/schedule", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var body domain.ScheduleResponse
		require.NoError(t, json.Unmarshal(env.Data, &body))
		assert.Equal(t, loan.ID, body.LoanID)
		assert.Len(t, body.Schedule, 2)
	})

	t.Run("list repayments of a loan with none", func(t *testing.T) {
		svc := &mocks.MockBillingService{}
		svc.On("ListRepayments", mock.Anything, loan.ID).Return(nil, nil)

		w, env := do(t, setupRouter(svc), http.MethodGet, "/api/v1/loans/"+loan.ID.String()+"/repayments", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, string(env.Data))
	})

	t.Run("unknown loan", func(t *testing.T) {
		svc := &mocks.MockBillingService{}
		svc.On("GetLoan", mock.Anything, loan.ID).Return(nil, customError.WrapLoanNotFound(loan.ID.String()))

		w, env := do(t, setupRouter(svc), http.MethodGet, "/api/v1/loans/"+loan.ID.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, customError.ErrCodeLoanNotFound, env.Code)
	})
}
