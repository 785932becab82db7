package pipeline

import "fmt"

// NotFoundError marks a referenced project or recipe missing from the local
// catalog.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ParseError marks a malformed stored payload. A recipe whose prior snapshot
// payload fails to parse is conservatively treated as meaningfully changed.
type ParseError struct {
	Subject string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Subject, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
