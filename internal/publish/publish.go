package publish

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/docsmith/docsync/internal/docgen"
)

// Target identifies where a generated document lands.
type Target struct {
	TenantID     int64
	ProjectSlug  string
	ProjectLevel bool
}

// Publisher writes generated documentation to its destination. Re-publishing
// the same content for the same target must be safe; the orchestrator relies
// on that to retry after a crash between publish and snapshot commit.
type Publisher interface {
	Publish(ctx context.Context, doc docgen.Document, target Target) error
}

// PublishError marks a failed destination write.
type PublishError struct {
	Target Target
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: tenant %d project %q: %v", e.Target.TenantID, e.Target.ProjectSlug, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Slug derives a stable destination key segment from a project name.
func Slug(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
