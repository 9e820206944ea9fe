package submission

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// AllowedExtensions are the document types the office accepts.
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".odt":  true,
	".rtf":  true,
}

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
)

// SanitizeFilename reduces an untrusted upload name to a safe flat name:
// any directory part is dropped, whitespace becomes underscores, umlauts
// fold to digraphs, and everything outside [A-Za-z0-9._-] is removed. The
// extension must be on the allow list.
func SanitizeFilename(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Join(strings.Fields(name), "_")
	name = umlauts.Replace(name)

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r): // mark from the NFD pass
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "", fmt.Errorf("filename %q: nothing left after sanitizing: %w", name, ErrInvalid)
	}
	ext := strings.ToLower(path.Ext(out))
	if !AllowedExtensions[ext] {
		return "", fmt.Errorf("file type %q not allowed: %w", ext, ErrInvalid)
	}
	return out, nil
}
