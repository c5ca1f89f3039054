package call

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory категории ошибок управления вызовом
type ErrorCategory string

const (
	ErrorCategoryTransport  ErrorCategory = "TRANSPORT"
	ErrorCategoryProtocol   ErrorCategory = "PROTOCOL"
	ErrorCategoryCapability ErrorCategory = "CAPABILITY"
	ErrorCategoryAdmission  ErrorCategory = "ADMISSION"
	ErrorCategoryTimeout    ErrorCategory = "TIMEOUT"
	ErrorCategoryState      ErrorCategory = "STATE"
)

func (ec ErrorCategory) String() string {
	return string(ec)
}

// Error ошибка операции вызова с контекстом
type Error struct {
	Code      string
	Message   string
	Category  ErrorCategory
	CallToken string
	Cause     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
	if e.CallToken != "" {
		msg += " (call " + e.CallToken + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Category: category, Cause: cause}
}

// Коды ошибок
const (
	CodeDialFailed      = "DIAL_FAILED"
	CodeWriteFailed     = "WRITE_FAILED"
	CodeDecodeFailed    = "DECODE_FAILED"
	CodeUnexpected      = "UNEXPECTED_MESSAGE"
	CodeAdmission       = "ADMISSION_REJECTED"
	CodeInvalidState    = "INVALID_STATE"
	CodeNoCapabilities  = "NO_CAPABILITIES"
	CodeBadDestination  = "BAD_DESTINATION"
	CodeMediaFailed     = "MEDIA_FAILED"
	CodeEndpointStopped = "ENDPOINT_STOPPED"
)

// IsCategory проверяет категорию ошибки вызова в цепочке
func IsCategory(err error, category ErrorCategory) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == category
}
