package media

import (
	"errors"
	"testing"
)

func TestParseByteRange(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		size      int64
		wantFirst int64
		wantLast  int64
		wantNil   bool
		wantErr   error
	}{
		{"no header", "", 1000, 0, 0, true, nil},
		{"whole file", "bytes=0-999", 1000, 0, 999, false, nil},
		{"open ended", "bytes=500-", 1000, 500, 999, false, nil},
		{"suffix", "bytes=-500", 1000, 500, 999, false, nil},
		{"one byte", "bytes=0-0", 1000, 0, 0, false, nil},
		{"end clamped", "bytes=0-2000", 1000, 0, 999, false, nil},
		{"suffix longer than file", "bytes=-2000", 500, 0, 499, false, nil},
		{"first of several", "bytes=0-99, 200-299", 1000, 0, 99, false, nil},

		{"start at size", "bytes=1000-", 1000, 0, 0, false, ErrUnsatisfiable},
		{"start past size", "bytes=1500-2000", 1000, 0, 0, false, ErrUnsatisfiable},
		{"reversed", "bytes=500-100", 1000, 0, 0, false, ErrUnsatisfiable},
		{"not bytes", "items=0-100", 1000, 0, 0, false, ErrMalformedRange},
		{"garbage", "bytes=abc-100", 1000, 0, 0, false, ErrMalformedRange},
		{"bad end", "bytes=0-abc", 1000, 0, 0, false, ErrMalformedRange},
		{"zero suffix", "bytes=-0", 1000, 0, 0, false, ErrMalformedRange},
		{"too many dashes", "bytes=1-2-3", 1000, 0, 0, false, ErrMalformedRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteRange(tt.header, tt.size)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ParseByteRange() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseByteRange() unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseByteRange() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.First != tt.wantFirst || got.Last != tt.wantLast {
				t.Errorf("ParseByteRange() = %+v, want %d-%d", got, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestByteRange_Headers(t *testing.T) {
	br := ByteRange{First: 100, Last: 199}
	if br.Length() != 100 {
		t.Errorf("Length() = %d", br.Length())
	}
	if got := br.Header(1000); got != "bytes 100-199/1000" {
		t.Errorf("Header() = %q", got)
	}
}
