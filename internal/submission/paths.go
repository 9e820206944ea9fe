package submission

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NamePart folds a personal name into the form used in upload folders:
// umlauts as digraphs, diacritics stripped, letters and digits only.
// "Müller" becomes "Mueller".
func NamePart(s string) string {
	s = umlauts.Replace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Folder is the per-student directory name, LastnameFirstname.
func Folder(lastName, firstName string) string {
	return NamePart(lastName) + NamePart(firstName)
}

// UploadKey builds the blob key for a stored document:
// {university}/{semester}/{course}/{LastnameFirstname}/{filename}.
func UploadKey(universitySlug, semester, courseSlug, lastName, firstName, filename string) string {
	return path.Join(universitySlug, semester, courseSlug, Folder(lastName, firstName), filename)
}

// Dedup appends _1, _2, ... to the stem until exists rejects the key, so
// a second hand-in never overwrites the first.
func Dedup(key string, exists func(string) bool) string {
	if !exists(key) {
		return key
	}
	ext := path.Ext(key)
	stem := strings.TrimSuffix(key, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}
