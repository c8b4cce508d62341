// Package templates renders templ components into email bodies.
//
//	body, err := templates.Render(ctx, components.Layout(
//		components.Header("Notification not delivered", ""),
//		components.Text(components.String("Hello Ann,")),
//	))
//
// Components live in the components subpackage; they are plain
// templ.Component values, so hand-written templ.ComponentFunc values and
// generated .templ components compose freely.
package templates
