// Package errors provides the standardized error type shared by the adapters
// (HTTP API, Zeebe job worker, CLI) and its conversion to BPMN errors.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeCommandRejected     ErrorCode = "COMMAND_REJECTED"
	ErrCodeMissingRequiredSlot ErrorCode = "MISSING_REQUIRED_SLOT"
	ErrCodeUnknownIntent       ErrorCode = "UNKNOWN_INTENT"
	ErrCodeWorkflowNotFound    ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrCodeInstanceNotFound    ErrorCode = "INSTANCE_NOT_FOUND"
	ErrCodeInstanceFinished    ErrorCode = "INSTANCE_FINISHED"

	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrCodeApprovalRequired ErrorCode = "APPROVAL_REQUIRED"

	ErrCodeInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrCodeCatalogInvalid         ErrorCode = "CATALOG_INVALID"
	ErrCodeWorkflowFailed         ErrorCode = "WORKFLOW_FAILED"
	ErrCodeExternalServiceError   ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                ErrorCode = "TIMEOUT"
	ErrCodeStoreUnavailable       ErrorCode = "STORE_UNAVAILABLE"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewCommandRejectedError wraps an interpreter rejection. Message is shown to the operator.
func NewCommandRejectedError(reason, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCommandRejected,
		Message:   message,
		Details:   fmt.Sprintf("reason: %s", reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewMissingRequiredSlotError(intent string, slots []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingRequiredSlot,
		Message:   fmt.Sprintf("Command '%s' is missing required parameter(s): %s", intent, strings.Join(slots, ", ")),
		Details:   fmt.Sprintf("intent: %s", intent),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnknownIntentError(intent string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownIntent,
		Message:   fmt.Sprintf("No command template registered for intent '%s'", intent),
		Details:   fmt.Sprintf("intent: %s", intent),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewWorkflowNotFoundError(name string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowNotFound,
		Message:   "Workflow template not found",
		Details:   fmt.Sprintf("workflow: %s", name),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInstanceNotFoundError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInstanceNotFound,
		Message:   "Workflow instance not found",
		Details:   fmt.Sprintf("instanceId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInstanceFinishedError(id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInstanceFinished,
		Message:   "Workflow instance has already finished",
		Details:   fmt.Sprintf("instanceId: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAccessDeniedError(userID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccessDenied,
		Message:   "You are not authorized to run this command",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"userId": userID},
		Timestamp: time.Now().UTC(),
	}
}

func NewApprovalRequiredError(intent string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApprovalRequired,
		Message:   fmt.Sprintf("Command '%s' requires approval before it can run", intent),
		Details:   fmt.Sprintf("intent: %s", intent),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCatalogInvalidError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCatalogInvalid,
		Message:   "Configuration catalog is invalid",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkflowFailedError reports a terminal Failed instance. Message carries the operator-facing text.
func NewWorkflowFailedError(workflow, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowFailed,
		Message:   message,
		Details:   fmt.Sprintf("workflow: %s", workflow),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExternalServiceError,
		Message:   fmt.Sprintf("%s service error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("%s timed out", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewStoreUnavailableError(store string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStoreUnavailable,
		Message:   fmt.Sprintf("%s unavailable", store),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many times a Zeebe job failing with code is retried.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExternalServiceError, ErrCodeStoreUnavailable, ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeCommandRejected, ErrCodeMissingRequiredSlot, ErrCodeUnknownIntent:
		return "INTERPRETATION"
	case ErrCodeAccessDenied, ErrCodeApprovalRequired:
		return "AUTHORIZATION"
	case ErrCodeWorkflowNotFound, ErrCodeInstanceNotFound, ErrCodeInstanceFinished, ErrCodeWorkflowFailed:
		return "WORKFLOW"
	case ErrCodeExternalServiceError, ErrCodeTimeout, ErrCodeNotificationSendFailed:
		return "INTEGRATION"
	case ErrCodeStoreUnavailable:
		return "STORAGE"
	case ErrCodeInvalidInput, ErrCodeCatalogInvalid:
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}
