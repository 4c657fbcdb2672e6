package service

import "fmt"

// Error codes returned by the service and mapped to HTTP statuses by the API.
const (
	CodeValidation         = "VALIDATION"
	CodeNavigationFailed   = "NAVIGATION_FAILED"
	CodeBrowserUnavailable = "BROWSER_UNAVAILABLE"
	CodeRunNotFound        = "RUN_NOT_FOUND"
	CodeProbeBusy          = "PROBE_BUSY"
	CodeProbeFailed        = "PROBE_FAILED"
	CodeStoreFailure       = "STORE_FAILURE"
)

// CodedError carries a stable code alongside the message.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}
