package common

import "errors"

// Error codes surfaced to the order workflow.
const (
	// CodeBasketAdjusted means basket storage was corrected to the available
	// stock and the shopper must confirm the basket again.
	CodeBasketAdjusted    = "BASKET_ADJUSTED"
	CodeBasketNotFound    = "BASKET_NOT_FOUND"
	CodeBasketBusy        = "BASKET_BUSY"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	MessageBasketAdjusted = "basket adjusted, please confirm"
)

// AppError represents an error with an attached code. Retryable tells the
// queue worker whether running the task again can succeed.
type AppError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
	Details   any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, retryable bool, err error) *AppError {
	return &AppError{Code: code, Message: message, Retryable: retryable, Err: err}
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// HasCode reports whether err carries an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
