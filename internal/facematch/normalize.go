package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var fold = cases.Fold()

// NormalizePersonName returns the comparison key of a person name. Case and
// diacritics are folded, and dashes, underscores and runs of whitespace
// become single spaces, so "Jan_Novák", "jan-novak" and " JAN  NOVAK " share
// the key "jan novak".
func NormalizePersonName(name string) string {
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}
	plain = fold.String(plain)
	words := strings.FieldsFunc(plain, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	return strings.Join(words, " ")
}
