package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// translit maps lower-case Cyrillic letters to their Latin renditions
// following the Ukrainian national transliteration table. Russian-only
// letters are folded too so mixed-script spellings of the same toponym
// normalize to one key.
var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "h", 'ґ': "g", 'д': "d",
	'е': "e", 'є': "ie", 'ж': "zh", 'з': "z", 'и': "y", 'і': "i",
	'ї': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ь': "", 'ю': "iu", 'я': "ia",
	// Russian variants.
	'ы': "y", 'э': "e", 'ё': "e", 'ъ': "",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', 'ʼ', '`':
		return true
	}
	return false
}

// Normalize produces the canonical matching key for a piece of text:
// lower-cased, apostrophes dropped, Cyrillic transliterated to Latin, and
// remaining diacritics stripped. The same toponym written in either script
// or any case normalizes to the same key.
func Normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isApostrophe(r) {
			continue
		}
		if lat, ok := translit[r]; ok {
			b.WriteString(lat)
			continue
		}
		b.WriteRune(r)
	}
	out, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		return b.String()
	}
	return out
}

// token is a word with its byte span in the original text. norm holds the
// canonical key used for matching.
type token struct {
	norm  string
	start int
	end   int
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || isApostrophe(r)
}

// tokenize splits text into word tokens, preserving byte offsets so that
// matched candidates can report the original substring.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			tokens = append(tokens, token{norm: Normalize(text[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{norm: Normalize(text[start:]), start: start, end: len(text)})
	}
	return tokens
}

// boundaryBetween reports whether the gap between two byte offsets contains
// sentence or clause punctuation. ignoreDot permits an abbreviation dot, as
// in "вул. Хрещатик".
func boundaryBetween(text string, from, to int, ignoreDot bool) bool {
	for _, r := range text[from:to] {
		switch r {
		case '!', '?', ',', ';', ':', '\n':
			return true
		case '.':
			if !ignoreDot {
				return true
			}
		}
	}
	return false
}

// commaOnlyBetween reports whether the gap contains a comma and no other
// boundary punctuation. Used to let a street candidate absorb a trailing
// ", <city>" qualifier.
func commaOnlyBetween(text string, from, to int) bool {
	seen := false
	for _, r := range text[from:to] {
		switch r {
		case ',':
			seen = true
		case '.', '!', '?', ';', ':', '\n':
			return false
		}
	}
	return seen
}
