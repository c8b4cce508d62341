package templates_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicflow/clinicflow/core/email/templates"
	"github.com/clinicflow/clinicflow/core/email/templates/components"
)

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("composes and escapes", func(t *testing.T) {
		t.Parallel()

		html, err := templates.Render(context.Background(), components.Layout(
			components.Header("Appointment <cancelled>", "Severity: warning"),
			components.Text(components.String("Hello Ann & Bob,")),
			components.TextWarning(components.String("Reason: smtp down")),
			components.TextSecondary(components.String("Reference: trace-1")),
			components.Details(
				components.Row{Label: "Job ID", Value: "job-1"},
				components.Row{Label: "Empty", Value: ""},
			),
		))
		require.NoError(t, err)

		assert.Contains(t, html, "<!DOCTYPE html>")
		assert.Contains(t, html, "Appointment &lt;cancelled&gt;")
		assert.Contains(t, html, "Hello Ann &amp; Bob,")
		assert.Contains(t, html, "Reason: smtp down")
		assert.Contains(t, html, "Job ID")
		assert.Contains(t, html, "job-1")
		assert.NotContains(t, html, "Empty")
		assert.NotContains(t, html, "<cancelled>")
	})

	t.Run("nil component", func(t *testing.T) {
		t.Parallel()

		_, err := templates.Render(context.Background(), nil)
		assert.ErrorIs(t, err, templates.ErrNilComponent)
	})

	t.Run("render error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		_, err := templates.Render(context.Background(), components.Layout(
			templ.ComponentFunc(func(context.Context, io.Writer) error { return boom }),
		))
		assert.ErrorIs(t, err, templates.ErrRenderFailed)
		assert.ErrorIs(t, err, boom)
	})
}
