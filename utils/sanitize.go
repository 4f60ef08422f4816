package utils

import (
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeFilename reduces an uploaded filename to a filesystem-safe form:
// base name only, unsafe runes replaced, length capped.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == ".." || name == "" {
		return "file"
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	out = strings.Trim(out, ".")
	if out == "" {
		return "file"
	}
	if len(out) > 200 {
		ext := filepath.Ext(out)
		out = out[:200-len(ext)] + ext
	}
	return out
}
