package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeFormat represents transcript lines that match no header grammar
	ErrorTypeFormat ErrorType = "format"
	// ErrorTypeTimestamp represents header lines whose date/time tokens cannot be resolved
	ErrorTypeTimestamp ErrorType = "timestamp"
	// ErrorTypeIngest represents batch-level ingestion failures
	ErrorTypeIngest ErrorType = "ingest"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeExtractor represents topic extraction failures
	ErrorTypeExtractor ErrorType = "extractor"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the error category. Embedding types inherit it.
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Transcript Errors

// FormatError is recorded when a line matches no header grammar.
// It is never fatal: the line becomes a continuation or noise.
type FormatError struct {
	*BaseError
	Line string
}

func NewFormatError(line string) *FormatError {
	return &FormatError{
		BaseError: NewBaseError(ErrorTypeFormat, "line matches no header grammar", nil),
		Line:      line,
	}
}

// TimestampError is recorded when every date/time candidate fails for a header.
type TimestampError struct {
	*BaseError
	Grammar   string
	DateToken string
	TimeToken string
}

func NewTimestampError(grammar, dateToken, timeToken string) *TimestampError {
	return &TimestampError{
		BaseError: NewBaseError(ErrorTypeTimestamp, fmt.Sprintf("unparseable timestamp %q %q", dateToken, timeToken), nil),
		Grammar:   grammar,
		DateToken: dateToken,
		TimeToken: timeToken,
	}
}

// Ingestion Errors

// EmptyBatchError is returned when no message survives assembly.
// It is the only ingestion error surfaced to callers.
type EmptyBatchError struct {
	*BaseError
	Lines int
}

func NewEmptyBatchError(lines int) *EmptyBatchError {
	return &EmptyBatchError{
		BaseError: NewBaseError(ErrorTypeIngest, fmt.Sprintf("no valid messages found in %d lines", lines), nil),
		Lines:     lines,
	}
}

// Graph Errors

// StoreWriteError wraps a single failed node or edge write.
type StoreWriteError struct {
	*BaseError
	Operation string
	Target    string
}

func NewStoreWriteError(operation, target string, err error) *StoreWriteError {
	return &StoreWriteError{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("%s failed for %s", operation, target), err),
		Operation: operation,
		Target:    target,
	}
}

// ErrGraphConnectionFailed is returned when Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph read query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// ErrParticipantNotFound is returned when a participant is not in the graph
type ErrParticipantNotFound struct {
	*BaseError
	Name string
}

func NewParticipantNotFound(name string) *ErrParticipantNotFound {
	return &ErrParticipantNotFound{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("participant not found: %s", name), nil),
		Name:      name,
	}
}

// Extractor Errors

// ExtractorError wraps a topic extraction failure.
type ExtractorError struct {
	*BaseError
	Method string
}

func NewExtractorError(method string, err error) *ExtractorError {
	return &ExtractorError{
		BaseError: NewBaseError(ErrorTypeExtractor, fmt.Sprintf("topic extraction failed: %s", method), err),
		Method:    method,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error, or any error it wraps, is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		var kinded interface{ Kind() ErrorType }
		if !errors.As(err, &kinded) {
			return false
		}
		if kinded.Kind() == errType {
			return true
		}
		next, ok := kinded.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = next.Unwrap()
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Extractor failures already fell back once; retrying them is the caller's call
	if IsErrorType(err, ErrorTypeExtractor) {
		return false
	}
	// Upserts are idempotent, so graph writes and connections can be retried
	if IsErrorType(err, ErrorTypeGraph) {
		return true
	}
	return false
}
