package variable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentToken(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		cursor int
		want   string
	}{
		{"open reference", "Hello {{user", 12, "user"},
		{"closed reference", "Hello {{user}} bye", 14, ""},
		{"cursor past end", "Hello {{user}} bye", 19, ""},
		{"no marker", "plain text", 5, ""},
		{"just opened", "Say {{", 6, ""},
		{"whitespace trimmed", "Say {{  openai_0.re", 19, "openai_0.re"},
		{"cursor before marker", "ab {{cd", 2, ""},
		{"second reference open", "{{a.b}} and {{c", 15, "c"},
		{"triple brace", "{{{x", 4, "x"},
		{"cursor inside closed reference", "{{abc}}", 4, "ab"},
		{"negative cursor", "{{abc", -3, ""},
		{"multibyte text", "héllo {{wörld", 13, "wörld"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentToken(tt.text, tt.cursor))
		})
	}
}

func TestScanReportsOpenOffset(t *testing.T) {
	tok := Scan("Say {{ n", 8)
	assert.True(t, tok.Active)
	assert.Equal(t, 4, tok.Open)
	assert.Equal(t, "n", tok.Filter)

	tok = Scan("Say {{", 6)
	assert.True(t, tok.Active)
	assert.Equal(t, "", tok.Filter)

	tok = Scan("done {{a}}", 10)
	assert.False(t, tok.Active)
	assert.Equal(t, -1, tok.Open)
}
