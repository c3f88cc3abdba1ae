// Package media streams stored uploads and rendered outputs over HTTP with
// single byte-range support, so players can seek without downloading the
// whole file.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrMalformedRange = errors.New("malformed range header")
	ErrUnsatisfiable  = errors.New("range not satisfiable")
)

// ByteRange is an inclusive span of a file.
type ByteRange struct {
	First int64
	Last  int64
}

func (b ByteRange) Length() int64 {
	return b.Last - b.First + 1
}

func (b ByteRange) Header(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.First, b.Last, size)
}

// ParseByteRange reads the first span of a Range header against a file of
// size bytes. An empty header yields nil. Ends past the file are clamped.
func ParseByteRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	ranges, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrMalformedRange
	}
	if first, _, multi := strings.Cut(ranges, ","); multi {
		ranges = strings.TrimSpace(first)
	}

	from, to, ok := strings.Cut(ranges, "-")
	if !ok || strings.Contains(to, "-") {
		return nil, ErrMalformedRange
	}

	var br ByteRange
	switch {
	case from == "":
		// suffix form: the last n bytes
		n, err := strconv.ParseInt(to, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrMalformedRange
		}
		br = ByteRange{First: max(0, size-n), Last: size - 1}
	default:
		first, err := strconv.ParseInt(from, 10, 64)
		if err != nil || first < 0 {
			return nil, ErrMalformedRange
		}
		last := size - 1
		if to != "" {
			if last, err = strconv.ParseInt(to, 10, 64); err != nil {
				return nil, ErrMalformedRange
			}
		}
		br = ByteRange{First: first, Last: last}
	}

	if br.First > br.Last || br.First >= size {
		return nil, ErrUnsatisfiable
	}
	br.Last = min(br.Last, size-1)
	return &br, nil
}
