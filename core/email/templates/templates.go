package templates

import (
	"context"
	"errors"
	"strings"

	"github.com/a-h/templ"
)

var (
	ErrNilComponent = errors.New("template component is nil")
	ErrRenderFailed = errors.New("failed to render email template")
)

// Render renders component into an HTML string.
func Render(ctx context.Context, component templ.Component) (string, error) {
	if component == nil {
		return "", ErrNilComponent
	}

	var b strings.Builder
	if err := component.Render(ctx, &b); err != nil {
		return "", errors.Join(ErrRenderFailed, err)
	}
	return b.String(), nil
}
