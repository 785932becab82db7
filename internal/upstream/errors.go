package upstream

import "fmt"

// UpstreamError is returned when the platform API exhausted its retries or
// answered with a non-retryable status. StatusCode 0 means no response was
// received at all (network-level failure).
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream: network: %s", e.Message)
	}
	return fmt.Sprintf("upstream: HTTP %d: %s", e.StatusCode, e.Message)
}

// PaginationError guards against runaway pagination caused by an API defect:
// the configured maximum page count was exceeded before the collection was
// exhausted.
type PaginationError struct {
	Resource string
	Pages    int
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("upstream: pagination of %s exceeded %d pages", e.Resource, e.Pages)
}
