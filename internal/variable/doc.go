// Package variable resolves {{node.field}} references embedded in free-text
// node params.
//
// Cursor offsets are counted in runes. The scanner is independent of any UI
// event so it can be driven with plain (text, cursor) pairs.
package variable
