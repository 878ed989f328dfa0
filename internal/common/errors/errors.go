package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrCodeInvalidCategory     ErrorCode = "INVALID_CATEGORY"
	ErrCodeInvalidTasteProfile ErrorCode = "INVALID_TASTE_PROFILE"
	ErrCodeInvalidSort         ErrorCode = "INVALID_SORT"

	ErrCodeSourceFetchFailed   ErrorCode = "SOURCE_FETCH_FAILED"
	ErrCodeSourceTimeout       ErrorCode = "SOURCE_TIMEOUT"
	ErrCodeSourceNotRegistered ErrorCode = "SOURCE_NOT_REGISTERED"

	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeLLMTimeout           ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMRerankFailed      ErrorCode = "LLM_RERANK_FAILED"
	ErrCodeLLMResponseMalformed ErrorCode = "LLM_RESPONSE_MALFORMED"

	ErrCodeProfileLookupFailed ErrorCode = "PROFILE_LOOKUP_FAILED"

	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

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

// --- Client errors (propagated to the caller) ---

func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid recommendation request",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidCategoryError(category string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidCategory,
		Message:   "Unsupported category",
		Details:   fmt.Sprintf("category: %q", category),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidTasteProfileError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTasteProfile,
		Message:   "Malformed taste profile payload",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidSortError(sortBy string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSort,
		Message:   "Unsupported sort order",
		Details:   fmt.Sprintf("sort_by: %q", sortBy),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// --- Backend errors (recovered locally, logged) ---

func NewSourceFetchFailedError(category string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceFetchFailed,
		Message:   "Candidate source fetch failed",
		Details:   fmt.Sprintf("category: %s, error: %s", category, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSourceTimeoutError(category string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceTimeout,
		Message:   "Candidate source timeout",
		Details:   fmt.Sprintf("category: %s", category),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSourceNotRegisteredError(category string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSourceNotRegistered,
		Message:   "No candidate source registered for category",
		Details:   fmt.Sprintf("category: %s", category),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Candidate cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewLLMTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "LLM rerank timeout",
		Details:   "LLM call exceeded timeout threshold",
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewLLMRerankFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMRerankFailed,
		Message:   "LLM rerank API error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewLLMResponseMalformedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMResponseMalformed,
		Message:   "LLM rerank response could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewProfileLookupFailedError(userID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProfileLookupFailed,
		Message:   "User profile lookup failed",
		Details:   fmt.Sprintf("userId: %s, error: %s", userID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewBrokerUnavailableError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBrokerUnavailable,
		Message:   "Workflow broker unavailable",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
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

// AsStandardError unwraps err into a *StandardError, wrapping unknown errors as INTERNAL_ERROR.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// IsClientError reports whether err is caused by caller misuse.
func IsClientError(err error) bool {
	var stdErr *StandardError
	if !stderrors.As(err, &stdErr) {
		return false
	}
	return GetErrorCategory(stdErr.Code) == "VALIDATION"
}

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInvalidRequest:       "INVALID_REQUEST",
	ErrCodeInvalidCategory:      "INVALID_CATEGORY",
	ErrCodeInvalidTasteProfile:  "INVALID_TASTE_PROFILE",
	ErrCodeInvalidSort:          "INVALID_SORT",
	ErrCodeSourceFetchFailed:    "SOURCE_FETCH_FAILED",
	ErrCodeSourceTimeout:        "SOURCE_TIMEOUT",
	ErrCodeSourceNotRegistered:  "SOURCE_NOT_REGISTERED",
	ErrCodeCacheUnavailable:     "CACHE_UNAVAILABLE",
	ErrCodeLLMTimeout:           "LLM_TIMEOUT",
	ErrCodeLLMRerankFailed:      "LLM_RERANK_FAILED",
	ErrCodeLLMResponseMalformed: "LLM_RESPONSE_MALFORMED",
	ErrCodeProfileLookupFailed:  "PROFILE_LOOKUP_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProfileLookupFailed,
		ErrCodeCacheUnavailable:
		return 2

	case ErrCodeBrokerUnavailable:
		return 3

	case ErrCodeInternal:
		return 1

	default:
		return 0 // client errors and recovered backend errors: no retry
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.HasPrefix(codeStr, "SOURCE"):
		return "SOURCE"
	case strings.HasPrefix(codeStr, "CACHE"):
		return "CACHE"
	case strings.HasPrefix(codeStr, "LLM"):
		return "AI"
	case strings.HasPrefix(codeStr, "PROFILE"):
		return "PROFILE"
	case strings.HasPrefix(codeStr, "BROKER"):
		return "BROKER"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the status returned by the HTTP API.
func HTTPStatus(code ErrorCode) int {
	switch GetErrorCategory(code) {
	case "VALIDATION":
		return http.StatusBadRequest
	case "SOURCE", "CACHE", "AI", "PROFILE":
		return http.StatusBadGateway
	case "BROKER":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
