// Package errcode lists the business codes carried in the response envelope.
package errcode

// Request errors.
const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
)

// Upload and ingestion errors.
const (
	ErrInvalidFile = 10001000 + iota
	ErrUnsupportedType
	ErrUploadFailed
	ErrEnqueueFailed
)

// Question answering errors.
const (
	ErrRetrievalFailed = 10002000 + iota
	ErrAIUnavailable
)
