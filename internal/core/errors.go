package core

import "errors"

// Failure taxonomy shared across the pipeline. Extraction errors are
// non-retryable without a different input file; ErrStorageUnavailable is
// transient and the whole process call may be retried by the caller.
var (
	// Extraction stage.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptFile       = errors.New("file is corrupt or unreadable")
	ErrEmptyDocument     = errors.New("document contains no extractable text")

	// Persistence stage.
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrConstraintViolation = errors.New("chunk constraint violation")

	// Orchestration.
	ErrProcessingInProgress = errors.New("processing already in progress for this book")

	// Book lookup collaborator.
	ErrBookNotFound = errors.New("book not found")
	ErrUnauthorized = errors.New("not authorized for this book")

	// Retrieval.
	ErrInvalidQuery = errors.New("search query is empty")
)
