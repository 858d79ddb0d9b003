package fields

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s and strips diacritics rune by rune, so that the result
// has exactly as many runes as s. Keyword and month matching runs on the
// folded form while values are cut from the original text.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out := make([]rune, 0, len(s))
	for _, r := range s {
		out = append(out, foldRune(t, r))
	}
	return string(out)
}

func foldRune(t transform.Transformer, r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	stripped, _, err := transform.String(t, string(r))
	if err != nil || utf8.RuneCountInString(stripped) != 1 {
		return unicode.ToLower(r)
	}
	folded, _ := utf8.DecodeRuneInString(stripped)
	return unicode.ToLower(folded)
}

// originalOffset maps a byte offset in fold(orig) back to orig.
func originalOffset(orig, folded string, offset int) int {
	n := utf8.RuneCountInString(folded[:offset])
	for i := range orig {
		if n == 0 {
			return i
		}
		n--
	}
	return len(orig)
}
