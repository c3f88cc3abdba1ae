package jobs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/concertview/concertview/internal/catalog"
)

func TestSanitizeOutputFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"final", "final.mp4"},
		{"final.mp4", "final.mp4"},
		{"Encore.MOV", "Encore.MOV"},
		{"  show night 1  ", "show night 1.mp4"},
		{"mix:v2*", "mix_v2_.mp4"},
		{"live.final", "live.final.mp4"},
		{".hidden", "hidden.mp4"},
		{"tab\there", "tabhere.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := SanitizeOutputFilename(tt.input)
			if err != nil {
				t.Fatalf("SanitizeOutputFilename(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("SanitizeOutputFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutputFilename_Rejects(t *testing.T) {
	for _, input := range []string{"", "   ", "../escape.mp4", "out/file.mp4", `dir\file`, "...", "._"} {
		t.Run(input, func(t *testing.T) {
			if _, err := SanitizeOutputFilename(input); !errors.Is(err, catalog.ErrValidation) {
				t.Errorf("SanitizeOutputFilename(%q) error = %v, want ErrValidation", input, err)
			}
		})
	}
}

func TestSanitizeOutputFilename_TruncatesLongNames(t *testing.T) {
	got, err := SanitizeOutputFilename(strings.Repeat("a", 500))
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	if len(got) != maxFilenameRunes+len(".mp4") {
		t.Errorf("len = %d", len(got))
	}
}

func TestValidateInputPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	os.WriteFile(file, []byte("x"), 0o644)

	if got, err := validateInputPath(file); err != nil || got != file {
		t.Errorf("validateInputPath(file) = %q, %v", got, err)
	}
	for _, p := range []string{"", dir, filepath.Join(dir, "missing.mp4")} {
		if _, err := validateInputPath(p); !errors.Is(err, catalog.ErrValidation) {
			t.Errorf("validateInputPath(%q) error = %v, want ErrValidation", p, err)
		}
	}
}
