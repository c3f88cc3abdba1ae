package jobs

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/concertview/concertview/internal/catalog"
)

const maxFilenameRunes = 200

// SanitizeOutputFilename reduces name to a safe single path element. Runes
// outside a small allowed set become '_', and ".mp4" is appended unless the
// name already carries a video extension.
func SanitizeOutputFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: output_filename is required", catalog.ErrValidation)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: output_filename must be a file name, not a path", catalog.ErrValidation)
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimLeft(strings.TrimSpace(b.String()), ".")
	if runes := []rune(cleaned); len(runes) > maxFilenameRunes {
		cleaned = string(runes[:maxFilenameRunes])
	}
	if strings.Trim(cleaned, "._ ") == "" {
		return "", fmt.Errorf("%w: output_filename %q has no usable characters", catalog.ErrValidation, name)
	}

	if !catalog.IsVideoFile(cleaned) {
		cleaned += ".mp4"
	}
	return cleaned, nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// validateInputPath checks that path names an existing regular file and
// returns it cleaned.
func validateInputPath(path string) (string, error) {
	return catalog.CheckMediaFile("input_path", path)
}
