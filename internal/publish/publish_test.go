package publish_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docsmith/docsync/internal/publish"
)

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Billing", want: "billing"},
		{name: "spaces become dashes", in: "Billing Flows", want: "billing-flows"},
		{name: "punctuation collapses", in: "Q3 / Revenue -- Reports!", want: "q3-revenue-reports"},
		{name: "leading and trailing noise trimmed", in: "  [DOC] Onboarding  ", want: "doc-onboarding"},
		{name: "digits kept", in: "Ops 2026", want: "ops-2026"},
		{name: "empty", in: "", want: ""},
		{name: "only punctuation", in: "***", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, publish.Slug(tt.in))
		})
	}
}

func TestSlugStable(t *testing.T) {
	t.Parallel()

	// The slug is a destination key segment; repeated derivation must agree
	// so re-publishing overwrites rather than duplicates.
	assert.Equal(t, publish.Slug("Billing Flows"), publish.Slug("Billing Flows"))
}

func TestPublishErrorMessage(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("connection reset")
	err := &publish.PublishError{
		Target: publish.Target{TenantID: 7, ProjectSlug: "billing-flows"},
		Err:    wrapped,
	}

	assert.EqualError(t, err, `publish: tenant 7 project "billing-flows": connection reset`)
	assert.ErrorIs(t, err, wrapped)
}
