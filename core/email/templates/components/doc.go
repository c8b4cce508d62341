// Package components provides email-safe templ components.
//
// Layout wraps a whole email. Header, Text, TextWarning, TextSecondary and
// Details are content blocks; String is an escaped text node. Children are
// passed explicitly and rendered in order.
package components
