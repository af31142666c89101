package submission

import (
	"strings"
	"unicode"

	"github.com/swecha/corpus-contrib/catalog"
	"github.com/swecha/corpus-contrib/media"
)

const (
	maxFilenameStemLength = 50
	fallbackStem          = "content"
	textExtension         = "txt"
	fallbackExtension     = "bin"
)

// DeriveFilename builds the upload filename from the title: letters, digits, marks, spaces, '-' and '_' are kept,
// the rest is dropped, and the result is trimmed and cut to 50 characters. An empty result becomes "content".
// Text bodies get the "txt" extension, payloads keep their own ("bin" if they have none).
func DeriveFilename(title string, mediaType catalog.MediaType, payload *media.Payload) string {
	stem := sanitizeTitle(title)

	ext := textExtension
	if payload != nil && mediaType != catalog.MediaText {
		ext = catalog.Extension(payload.Filename)
		if ext == "" {
			ext = fallbackExtension
		}
	}

	return stem + "." + ext
}

func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	stem := strings.TrimSpace(b.String())
	if stem == "" {
		return fallbackStem
	}

	runes := []rune(stem)
	if len(runes) > maxFilenameStemLength {
		stem = string(runes[:maxFilenameStemLength])
	}
	return stem
}
