package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrLoanBusy            = errors.New("loan is being updated by another request")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeInvalidArgument     = "INVALID_ARGUMENT"
	ErrCodeLoanNotFound        = "LOAN_NOT_FOUND"
	ErrCodeInstallmentNotFound = "INSTALLMENT_NOT_FOUND"
	ErrCodeLoanBusy            = "LOAN_BUSY"
	ErrCodeDatabaseError       = "DATABASE_ERROR"
	ErrCodeCacheError          = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or an empty string.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

func WrapInvalidArgument(format string, args ...any) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidArgument,
		fmt.Sprintf(format, args...),
		ErrInvalidArgument,
	)
}

func WrapLoanNotFound(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %s not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapInstallmentNotFound(installmentID string) *BusinessError {
	return NewBusinessError(
		ErrCodeInstallmentNotFound,
		fmt.Sprintf("Installment with ID %s not found", installmentID),
		ErrInstallmentNotFound,
	)
}

func WrapLoanBusy(loanID string) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanBusy,
		fmt.Sprintf("Loan with ID %s is locked by a concurrent repayment", loanID),
		ErrLoanBusy,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}
