package autocomplete

import (
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/internal/variable"
	"github.com/aescanero/dago-editor/pkg/domain"
)

// Key is a keyboard key name as reported by the UI
type Key string

const (
	KeyArrowDown Key = "ArrowDown"
	KeyArrowUp   Key = "ArrowUp"
	KeyEnter     Key = "Enter"
	KeyEscape    Key = "Escape"
	KeyOpenBrace Key = "{"
)

// Target is where a pointer-down landed relative to the field
type Target string

const (
	TargetInput   Target = "input"
	TargetPanel   Target = "panel"
	TargetOutside Target = "outside"
)

// NodeSource returns the nodes offered as suggestions
type NodeSource func() []domain.Node

// ChangeFunc receives the committed value after an insertion
type ChangeFunc func(value string)

// State is the observable state of a field
type State struct {
	Value       string               `json:"value"`
	Cursor      int                  `json:"cursor"`
	Open        bool                 `json:"open"`
	Active      int                  `json:"active"`
	Filter      string               `json:"filter"`
	Suggestions []variable.Candidate `json:"suggestions"`
}

// Field is the suggestion state machine of one text input. It is not safe
// for concurrent use; owners serialize events.
type Field struct {
	resolver *variable.Resolver
	source   NodeSource
	onChange ChangeFunc
	logger   *zap.Logger

	value  string
	cursor int
	open   bool
	active int
	filter string
	// braced is set when a typed "{{" opened the list with an empty filter
	braced bool
}

// Option configures a Field
type Option func(*Field)

// WithValue sets the initial text, with the cursor at its end
func WithValue(value string) Option {
	return func(f *Field) {
		f.value = value
		f.cursor = len([]rune(value))
	}
}

// WithOnChange registers a callback for committed insertions
func WithOnChange(fn ChangeFunc) Option {
	return func(f *Field) { f.onChange = fn }
}

// NewField creates a closed field
func NewField(resolver *variable.Resolver, source NodeSource, logger *zap.Logger, opts ...Option) *Field {
	if resolver == nil {
		resolver = variable.NewResolver(nil)
	}
	if source == nil {
		source = func() []domain.Node { return nil }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Field{resolver: resolver, source: source, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Input handles an edit. Suggestions open iff the cursor is inside an open
// reference with a non-empty filter, or an empty one just opened by a double
// brace; the highlight resets to the top.
func (f *Field) Input(value string, cursor int) State {
	f.value = value
	f.cursor = clampCursor(value, cursor)
	tok := variable.Scan(f.value, f.cursor)
	f.filter = tok.Filter
	f.open = tok.Active && (tok.Filter != "" || f.braced)
	f.braced = f.open && tok.Filter == ""
	f.active = 0
	return f.State()
}

// Sync replaces the text when value differs from it, as happens when the
// bound param changed elsewhere. The cursor moves to the end and the list
// closes.
func (f *Field) Sync(value string) {
	if value == f.value {
		return
	}
	f.value = value
	f.cursor = len([]rune(value))
	f.close()
}

// KeyDown handles a key press and reports whether the field consumed it.
// Unconsumed keys should reach the underlying control untouched.
func (f *Field) KeyDown(key Key) bool {
	if key == KeyOpenBrace {
		return f.openBrace()
	}

	if !f.open {
		return false
	}
	suggestions := f.suggestions()
	if len(suggestions) == 0 {
		return false
	}

	switch key {
	case KeyArrowDown:
		if f.active < len(suggestions)-1 {
			f.active++
		}
	case KeyArrowUp:
		if f.active > 0 {
			f.active--
		}
	case KeyEnter:
		f.commit(suggestions[f.active])
	case KeyEscape:
		f.close()
	default:
		return false
	}
	return true
}

// PointerDown closes the list when the pointer lands outside both the
// input and the suggestion panel.
func (f *Field) PointerDown(target Target) {
	if target != TargetInput && target != TargetPanel {
		f.close()
	}
}

// Select commits the suggestion at index, as a click on the panel does
func (f *Field) Select(index int) bool {
	if !f.open {
		return false
	}
	suggestions := f.suggestions()
	if index < 0 || index >= len(suggestions) {
		return false
	}
	f.commit(suggestions[index])
	return true
}

// State returns the current value, cursor and visible suggestions
func (f *Field) State() State {
	s := State{
		Value:  f.value,
		Cursor: f.cursor,
		Open:   f.open,
		Active: f.active,
		Filter: f.filter,
	}
	if f.open {
		s.Suggestions = f.suggestions()
	}
	return s
}

func (f *Field) suggestions() []variable.Candidate {
	return variable.Filter(f.resolver.Candidates(f.source()), f.filter)
}

// openBrace types a "{" right after another one and opens the full list.
// A lone "{" is left to the control.
func (f *Field) openBrace() bool {
	runes := []rune(f.value)
	if f.cursor == 0 || runes[f.cursor-1] != '{' {
		return false
	}
	f.value = string(runes[:f.cursor]) + "{" + string(runes[f.cursor:])
	f.cursor++
	f.filter = ""
	f.open = true
	f.braced = true
	f.active = 0
	if f.onChange != nil {
		f.onChange(f.value)
	}
	return true
}

func (f *Field) close() {
	f.open = false
	f.braced = false
	f.active = 0
	f.filter = ""
}

func (f *Field) commit(cand variable.Candidate) {
	value, cursor, ok := Insert(f.value, f.cursor, cand)
	f.close()
	if !ok {
		f.logger.Debug("no open reference at cursor",
			zap.Int("cursor", f.cursor),
			zap.String("candidate", cand.Text()))
		return
	}
	f.value = value
	f.cursor = cursor
	if f.onChange != nil {
		f.onChange(value)
	}
}

func clampCursor(value string, cursor int) int {
	if cursor < 0 {
		return 0
	}
	if n := len([]rune(value)); cursor > n {
		return n
	}
	return cursor
}
