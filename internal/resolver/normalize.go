// Package resolver matches raw queries against a normalized vocabulary
// using a cascade of exact, fuzzy and semantic methods.
package resolver

import (
	"strings"
	"time"
	"unicode"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/text/unicode/norm"
)

// mojibake maps the common UTF-8-read-as-Latin-1 sequences back to the
// characters they encode. Applied before Unicode normalization.
var mojibake = strings.NewReplacer(
	"Ã©", "é", "Ã¨", "è", "Ãª", "ê", "Ã«", "ë",
	"Ã¡", "á", "Ã ", "à", "Ã¢", "â", "Ã¤", "ä",
	"Ã­", "í", "Ã¬", "ì", "Ã®", "î", "Ã¯", "ï",
	"Ã³", "ó", "Ã²", "ò", "Ã´", "ô", "Ã¶", "ö",
	"Ãº", "ú", "Ã¹", "ù", "Ã»", "û", "Ã¼", "ü",
	"Ã±", "ñ", "Ã§", "ç", "ÃŸ", "ß",
	"â€™", "'", "â€˜", "'", "â€œ", "\"", "â€", "\"",
	"â€“", "-", "â€”", "-",
)

// compat translates characters NFD decomposition does not reduce to
// ASCII on its own.
var compat = map[rune]string{
	'æ': "ae", 'Æ': "ae",
	'œ': "oe", 'Œ': "oe",
	'ß': "ss",
	'ø': "o", 'Ø': "o",
	'đ': "d", 'Đ': "d",
	'ð': "d", 'Ð': "d",
	'þ': "th", 'Þ': "th",
	'ł': "l", 'Ł': "l",
	'’': "'", '‘': "'",
	'‐': "-", '‑': "-", '–': "-", '—': "-",
}

// contractions expands the common English forms. Expansions contain no
// apostrophes so expansion is idempotent. Possessive 's is left alone.
var contractions = map[string]string{
	"can't":  "cannot",
	"won't":  "will not",
	"shan't": "shall not",
	"ain't":  "am not",
	"i'm":    "i am",
	"let's":  "let us",
}

// contractionSuffixes handles the productive endings after the exact
// table misses. Order matters: n't before 't.
var contractionSuffixes = []struct{ suffix, expansion string }{
	{"n't", " not"},
	{"'re", " are"},
	{"'ve", " have"},
	{"'ll", " will"},
	{"'d", " would"},
}

// Normalizer converts raw queries to canonical form. Normalization is
// pure; results are memoized.
type Normalizer struct {
	memo *gocache.Cache
}

// NewNormalizer creates a normalizer with a bounded-TTL memo cache.
func NewNormalizer() *Normalizer {
	return &Normalizer{memo: gocache.New(30*time.Minute, time.Hour)}
}

// Normalize returns the canonical form of raw: lowercase ASCII letters,
// digits, apostrophes and hyphens separated by single spaces.
// Normalize is idempotent.
func (n *Normalizer) Normalize(raw string) string {
	if v, ok := n.memo.Get(raw); ok {
		return v.(string)
	}
	out := normalize(raw)
	n.memo.Set(raw, out, gocache.DefaultExpiration)
	return out
}

func normalize(raw string) string {
	s := mojibake.Replace(raw)

	// Single pass over the NFD form: drop combining marks, translate
	// the compatibility table, lowercase, reduce punctuation and
	// whitespace in one sweep.
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if rep, ok := compat[r]; ok {
			for _, rr := range rep {
				writeCanonicalRune(&b, rr, &pendingSpace)
			}
			continue
		}
		writeCanonicalRune(&b, unicode.ToLower(r), &pendingSpace)
	}

	words := strings.Fields(b.String())
	expanded := make([]string, 0, len(words))
	for _, w := range words {
		expanded = append(expanded, expandContraction(w)...)
	}
	return strings.Join(expanded, " ")
}

func writeCanonicalRune(b *strings.Builder, r rune, pendingSpace *bool) {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'', r == '-':
		if *pendingSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		*pendingSpace = false
		b.WriteRune(r)
	case unicode.IsSpace(r):
		*pendingSpace = true
	default:
		// Dropped punctuation acts as a separator.
		*pendingSpace = true
	}
}

// expandContraction expands recursively so stacked forms like
// "they'll've" reduce fully in one normalize pass.
func expandContraction(word string) []string {
	if exp, ok := contractions[word]; ok {
		return strings.Fields(exp)
	}
	for _, c := range contractionSuffixes {
		if strings.HasSuffix(word, c.suffix) && len(word) > len(c.suffix) {
			stem := strings.TrimSuffix(word, c.suffix)
			// A bare apostrophe stem ("'re" alone) is not a contraction.
			if strings.Trim(stem, "'") == "" {
				break
			}
			return append(expandContraction(stem), strings.Fields(c.expansion)...)
		}
	}
	return []string{word}
}
