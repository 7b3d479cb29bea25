package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Input errors
	ErrInvalidInputData  = errors.New("invalid input data")
	ErrEmptyDataset      = errors.New("dataset has no columns")
	ErrUnsupportedSource = errors.New("unsupported data source")
	ErrMissingQuery      = errors.New("sql source requires a query")
	ErrInconsistentRows  = errors.New("rows do not share the same column set")
	ErrInvalidEncoding   = errors.New("input is not valid text in the requested encoding")
	ErrColumnNotFound    = errors.New("column not found")

	// Model errors
	ErrInvalidAlgorithm    = errors.New("invalid synthesizer algorithm")
	ErrInvalidParameters   = errors.New("invalid hyperparameters")
	ErrModelNotFitted      = errors.New("model has not been fitted")
	ErrModelLoadFailed     = errors.New("failed to load model")
	ErrModelTrainingFailed = errors.New("model training failed")
	ErrSamplingFailed      = errors.New("sampling failed")
	ErrInsufficientData    = errors.New("insufficient training data")
	ErrBridgeNotConfigured = errors.New("external synthesizer bridge is not configured")

	// Metadata / privacy errors
	ErrUnknownSDType = errors.New("unknown semantic type")
	ErrInvalidRatio  = errors.New("anomaly ratio must be between 0 and 1")
	ErrInvalidKind   = errors.New("anomaly type must be fixed or null")

	// Storage errors
	ErrStorageReadFailed  = errors.New("storage read failed")
	ErrStorageWriteFailed = errors.New("storage write failed")
	ErrDataNotFound       = errors.New("data not found")

	// Evaluation errors
	ErrEvaluationFailed = errors.New("evaluation failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeInput         ErrorType = "input"
	ErrorTypeModel         ErrorType = "model"
	ErrorTypeMetadata      ErrorType = "metadata"
	ErrorTypePrivacy       ErrorType = "privacy"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeEvaluation    ErrorType = "evaluation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// NewInputError creates an input error
func NewInputError(code, message string) *AppError {
	return NewAppError(ErrorTypeInput, code, message)
}

// NewModelError creates a model error
func NewModelError(code, message string) *AppError {
	return NewAppError(ErrorTypeModel, code, message)
}

// NewMetadataError creates a metadata error
func NewMetadataError(code, message string) *AppError {
	return NewAppError(ErrorTypeMetadata, code, message)
}

// NewPrivacyError creates a privacy error
func NewPrivacyError(code, message string) *AppError {
	return NewAppError(ErrorTypePrivacy, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewEvaluationError creates an evaluation error
func NewEvaluationError(code, message string) *AppError {
	return NewAppError(ErrorTypeEvaluation, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// IsType reports whether err, or any error it wraps, is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

// TypeOf returns the type of the first AppError in the chain, or
// ErrorTypeInternal when there is none
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Error codes for different error scenarios
const (
	// Input error codes
	CodeReadFailed     = "READ_FAILED"
	CodeParseFailed    = "PARSE_FAILED"
	CodeDecodeFailed   = "DECODE_FAILED"
	CodeEmptyInput     = "EMPTY_INPUT"
	CodeInvalidSource  = "INVALID_SOURCE"
	CodeQueryFailed    = "QUERY_FAILED"
	CodeInvalidAnomaly = "INVALID_ANOMALY"

	// Model error codes
	CodeInvalidAlgorithm = "INVALID_ALGORITHM"
	CodeInvalidParams    = "INVALID_PARAMETERS"
	CodeModelLoadFailed  = "MODEL_LOAD_FAILED"
	CodeModelSaveFailed  = "MODEL_SAVE_FAILED"
	CodeTrainingFailed   = "TRAINING_FAILED"
	CodeSamplingFailed   = "SAMPLING_FAILED"
	CodeBridgeFailed     = "BRIDGE_FAILED"

	// Metadata error codes
	CodeDetectionFailed = "DETECTION_FAILED"
	CodeUnknownColumn   = "UNKNOWN_COLUMN"
	CodeUnknownSDType   = "UNKNOWN_SDTYPE"

	// Storage error codes
	CodeWriteFailed   = "WRITE_FAILED"
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidURI    = "INVALID_URI"
	CodeConnectFailed = "CONNECT_FAILED"
	CodeInvalidConfig = "INVALID_CONFIG"
	CodeCacheFailed   = "CACHE_FAILED"
	CodeSessionFailed = "SESSION_FAILED"

	// Evaluation error codes
	CodeEvaluationFailed = "EVALUATION_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
