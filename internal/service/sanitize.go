package service

import (
	"strings"
	"unicode"
)

const (
	maxFilenameRunes = 200
	unnamedFile      = "unnamed_file"
)

// SanitizeFilename makes a client supplied name safe to echo back in headers.
// It is display metadata only and never names anything on disk.
func SanitizeFilename(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			// Whitespace, separators and control characters all collapse to one '_'.
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := b.String()
	if out == "" {
		return unnamedFile
	}

	runes := []rune(out)
	if len(runes) <= maxFilenameRunes {
		return out
	}
	ext := []rune("")
	if i := strings.LastIndex(out, "."); i > 0 {
		ext = []rune(out[i:])
	}
	if len(ext) >= maxFilenameRunes {
		return string(runes[:maxFilenameRunes])
	}
	stem := []rune(strings.TrimSuffix(out, string(ext)))
	return string(stem[:maxFilenameRunes-len(ext)]) + string(ext)
}
