package autocomplete

import (
	"github.com/aescanero/dago-editor/internal/variable"
)

// Insert splices cand into text at the most recent unmatched "{{" before
// cursor. Everything between the marker and the cursor is replaced with
// " {ref}.{field}}" and the returned cursor sits just past the inserted
// text. Offsets are in runes. ok is false when the cursor is not inside an
// open reference, in which case text is returned unchanged.
func Insert(text string, cursor int, cand variable.Candidate) (string, int, bool) {
	tok := variable.Scan(text, cursor)
	if !tok.Active {
		return text, cursor, false
	}

	runes := []rune(text)
	if cursor > len(runes) {
		cursor = len(runes)
	}
	varText := []rune(cand.Text() + "}")

	head := runes[:tok.Open+len(variable.OpenMarker)]
	out := make([]rune, 0, len(runes)+len(varText)+1)
	out = append(out, head...)
	out = append(out, ' ')
	out = append(out, varText...)
	out = append(out, runes[cursor:]...)

	return string(out), len(head) + 1 + len(varText), true
}
