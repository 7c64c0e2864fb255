package variable

import "strings"

// Reference delimiters
const (
	OpenMarker  = "{{"
	CloseMarker = "}}"
)

// Token is the in-progress reference found before a cursor
type Token struct {
	// Active is true when the cursor sits inside an unclosed "{{"
	Active bool
	// Open is the rune offset of the "{{" that started the reference
	Open int
	// Filter is the trimmed text typed between "{{" and the cursor
	Filter string
}

type scanState int

const (
	stateOutside scanState = iota
	stateInside
)

// Scan walks text up to cursor and reports whether the cursor is inside an
// open reference. Every "{{" (re)opens a reference; a "}}" lying entirely
// before the cursor closes it.
func Scan(text string, cursor int) Token {
	runes := []rune(text)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}

	state := stateOutside
	open := -1
	for i := 0; i+1 < cursor; i++ {
		switch {
		case runes[i] == '{' && runes[i+1] == '{':
			state = stateInside
			open = i
		case state == stateInside && runes[i] == '}' && runes[i+1] == '}':
			state = stateOutside
		}
	}

	if state != stateInside {
		return Token{Open: -1}
	}
	return Token{
		Active: true,
		Open:   open,
		Filter: strings.TrimSpace(string(runes[open+2 : cursor])),
	}
}

// CurrentToken returns the in-progress filter text before cursor, or ""
// when the cursor is not inside an open reference.
func CurrentToken(text string, cursor int) string {
	return Scan(text, cursor).Filter
}
