package components

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const (
	layoutOpen = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body style="margin:0;padding:0;background:#f4f5f7;font-family:-apple-system,Segoe UI,Roboto,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:24px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;padding:32px;">
<tr><td>`
	layoutClose = `</td></tr></table></td></tr></table></body></html>`
)

// Row is one labelled value in a Details block.
type Row struct {
	Label string
	Value string
}

// Layout is the outer structure of an email.
func Layout(children ...templ.Component) templ.Component {
	return wrap(layoutOpen, layoutClose, children)
}

// Header renders the title and an optional subtitle.
func Header(title, subtitle string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<h1 style="margin:0 0 8px;font-size:22px;color:#111827;">`, templ.EscapeString(title), `</h1>`); err != nil {
			return err
		}
		if subtitle == "" {
			return nil
		}
		return write(w, `<p style="margin:0 0 24px;font-size:14px;color:#6b7280;">`, templ.EscapeString(subtitle), `</p>`)
	})
}

// Text is a body paragraph.
func Text(children ...templ.Component) templ.Component {
	return wrap(`<p style="margin:0 0 16px;font-size:15px;line-height:1.5;color:#111827;">`, `</p>`, children)
}

// TextWarning is a highlighted paragraph.
func TextWarning(children ...templ.Component) templ.Component {
	return wrap(`<p style="margin:0 0 16px;padding:12px;font-size:15px;background:#fef3c7;border-left:4px solid #f59e0b;color:#92400e;">`, `</p>`, children)
}

// TextSecondary is a muted paragraph.
func TextSecondary(children ...templ.Component) templ.Component {
	return wrap(`<p style="margin:0 0 16px;font-size:13px;color:#6b7280;">`, `</p>`, children)
}

// Details renders rows as a list. Rows with an empty value are skipped.
func Details(rows ...Row) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<ul style="margin:0 0 16px;padding-left:20px;font-size:14px;color:#374151;">`); err != nil {
			return err
		}
		for _, r := range rows {
			if r.Value == "" {
				continue
			}
			if err := write(w, `<li><strong>`, templ.EscapeString(r.Label), `:</strong> `, templ.EscapeString(r.Value), `</li>`); err != nil {
				return err
			}
		}
		return write(w, `</ul>`)
	})
}

// String is an escaped text node.
func String(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w, templ.EscapeString(s))
	})
}

func wrap(open, end string, children []templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, open); err != nil {
			return err
		}
		for _, c := range children {
			if c == nil {
				continue
			}
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		return write(w, end)
	})
}

func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}
	return nil
}
