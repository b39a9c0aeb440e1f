package types

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable kind attached to every pipeline failure.
type ErrorCode string

const (
	CodeDataLoad           ErrorCode = "DATA_LOAD_ERROR"
	CodeEmbeddings         ErrorCode = "EMBEDDINGS_ERROR"
	CodeSearch             ErrorCode = "SEARCH_ERROR"
	CodeAPIKey             ErrorCode = "API_KEY_ERROR"
	CodeDatabase           ErrorCode = "DATABASE_ERROR"
	CodeResponseGeneration ErrorCode = "RESPONSE_GENERATION_ERROR"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
)

// RAGError wraps any pipeline-internal failure with a human-readable message
// and a machine-readable code. Callers map codes to transport-level failures.
type RAGError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *RAGError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RAGError) Unwrap() error { return e.Err }

func NewDataLoadError(message string, err error) *RAGError {
	return &RAGError{Code: CodeDataLoad, Message: message, Err: err}
}

func NewEmbeddingsError(message string, err error) *RAGError {
	return &RAGError{Code: CodeEmbeddings, Message: message, Err: err}
}

func NewSearchError(message string, err error) *RAGError {
	return &RAGError{Code: CodeSearch, Message: message, Err: err}
}

func NewAPIKeyError(message string) *RAGError {
	return &RAGError{Code: CodeAPIKey, Message: message}
}

func NewDatabaseError(message string, err error) *RAGError {
	return &RAGError{Code: CodeDatabase, Message: message, Err: err}
}

func NewResponseGenerationError(message string, err error) *RAGError {
	return &RAGError{Code: CodeResponseGeneration, Message: message, Err: err}
}

func NewInvalidInputError(message string, err error) *RAGError {
	return &RAGError{Code: CodeInvalidInput, Message: message, Err: err}
}

// CodeOf extracts the error code from err, or empty when err is not a
// pipeline error.
func CodeOf(err error) ErrorCode {
	var ragErr *RAGError
	if errors.As(err, &ragErr) {
		return ragErr.Code
	}
	return ""
}
