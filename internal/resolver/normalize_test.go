package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Hello", "hello"},
		{"diacritics stripped", "café", "cafe"},
		{"compat ligatures", "Encyclopædia", "encyclopaedia"},
		{"eszett", "Straße", "strasse"},
		{"slashed o", "smørrebrød", "smorrebrod"},
		{"mojibake repaired", "cafÃ©", "cafe"},
		{"smart quotes to apostrophe", "don’t", "do not"},
		{"whitespace collapsed", "  ice \t cream  ", "ice cream"},
		{"punctuation stripped", "hello, world!", "hello world"},
		{"hyphen kept", "well-being", "well-being"},
		{"apostrophe kept", "o'clock", "o'clock"},
		{"contraction cant", "can't", "cannot"},
		{"contraction wont", "won't", "will not"},
		{"contraction suffix nt", "shouldn't", "should not"},
		{"contraction suffix ll", "they'll", "they will"},
		{"contraction suffix ve", "could've", "could have"},
		{"possessive untouched", "dog's", "dog's"},
		{"digits kept", "catch-22", "catch-22"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, n.Normalize(tc.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := NewNormalizer()
	inputs := []string{
		"Hello, World!", "café", "don’t", "won't", "  spaced   out  ",
		"Straße", "naïve approach", "they'll've", "qwzzyx",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		assert.Equal(t, once, n.Normalize(once), "normalize must be idempotent for %q", in)
	}
}

func TestNormalize_OutputCharset(t *testing.T) {
	n := NewNormalizer()
	inputs := []string{
		"Crème brûlée!", "ÄÖÜ  ß", "  mixed\tUP   Case ", "façade… (really)",
		"cafÃ© au lait", "½ measure", "emoji 🎉 party",
	}
	for _, in := range inputs {
		out := n.Normalize(in)
		for i, r := range out {
			valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') ||
				r == '\'' || r == '-' || r == ' '
			assert.True(t, valid, "invalid rune %q at %d in %q (from %q)", r, i, out, in)
			if r == ' ' && i > 0 {
				assert.NotEqual(t, byte(' '), out[i-1], "double space in %q", out)
			}
		}
	}
}

func TestNormalize_Memoized(t *testing.T) {
	n := NewNormalizer()
	first := n.Normalize("Memoize ME")
	second := n.Normalize("Memoize ME")
	assert.Equal(t, first, second)
}
