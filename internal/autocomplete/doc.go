// Package autocomplete binds a text control to the variable resolver.
//
// A Field tracks the text, cursor and suggestion list of one input. It is
// driven by Input, KeyDown and PointerDown events and has no rendering
// dependency, so the whole interaction can be exercised headless.
package autocomplete
