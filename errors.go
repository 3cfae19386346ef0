package guardowl

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyQuery indicates a query had neither semantic text nor a filter.
	ErrEmptyQuery = errors.New("query must include either semantic search text or metadata filters")

	// ErrNoEmbedder indicates semantic search was requested without an
	// embedding function configured.
	ErrNoEmbedder = errors.New("no embedding function configured")
)

// TranslationError indicates the language model failed to produce a valid
// query structure after all retry attempts.
type TranslationError struct {
	Attempts int
	Err      error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("query translation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// SummarizationError indicates the language model failed to produce a
// history digest after all retry attempts.
type SummarizationError struct {
	Attempts int
	Err      error
}

func (e *SummarizationError) Error() string {
	return fmt.Sprintf("history summarization failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SummarizationError) Unwrap() error { return e.Err }

// FilterSyntaxError indicates a filter expression could not be parsed or
// compiled for the document store.
type FilterSyntaxError struct {
	Detail string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("invalid filter expression: %s", e.Detail)
}

// StoreFault wraps a connectivity or internal error from an external store.
type StoreFault struct {
	Op  string
	Err error
}

func (e *StoreFault) Error() string {
	return fmt.Sprintf("store fault during %s: %v", e.Op, e.Err)
}

func (e *StoreFault) Unwrap() error { return e.Err }
