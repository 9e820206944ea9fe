package match

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var digitRunRe = regexp.MustCompile(`\d+`)

// ExtractStudentID scans the given texts in order and returns the first
// run of exactly eight digits. Longer runs do not count; a nine-digit
// invoice number must not pass as a student ID. Underscores and letters
// around the run are fine, filenames glue parts together freely.
func ExtractStudentID(texts ...string) (string, bool) {
	for _, s := range texts {
		for _, run := range digitRunRe.FindAllString(s, -1) {
			if len(run) == 8 {
				return run, true
			}
		}
	}
	return "", false
}

// germanFold maps umlauts and sharp s to the digraphs students type when
// their keyboard has none, so Müller and Mueller normalize identically.
var germanFold = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
)

func fold(s string) string {
	s = germanFold.Replace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) { // mark nonspacing
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeName lowercases, folds umlauts and strips remaining diacritics,
// keeping only letters and digits.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// tokens splits free text on everything that is not a letter or digit after
// folding, so "Mueller_Mike-Abgabe.pdf" yields its name parts intact.
func tokens(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NameKeys returns the normalized orderings a filename or sender may use
// for an enrollment, last-first and first-last.
func NameKeys(lastName, firstName string) []string {
	last := NormalizeName(lastName)
	first := NormalizeName(firstName)
	switch {
	case last == "" && first == "":
		return nil
	case last == "" || first == "":
		return []string{last + first}
	default:
		return []string{last + first, first + last}
	}
}
