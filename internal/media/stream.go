package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
)

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mts":  "video/mp2t",
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

type Streamer struct {
	logger *slog.Logger
}

func NewStreamer(logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Streamer{logger: logging.WithComponent(logger, "media")}
}

// Serve writes the file at path, honouring a Range request header. A
// non-empty downloadName is sent as an attachment filename. A missing file
// returns catalog.ErrNotFound before anything is written.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, path, downloadName string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: media file is gone", catalog.ErrNotFound)
		}
		return fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: media is not a file", catalog.ErrNotFound)
	}
	size := info.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(path))
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))
	if downloadName != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": downloadName}))
	}

	br, err := ParseByteRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrMalformedRange):
		// malformed ranges are ignored and the whole file is sent
		br = nil
	case err != nil:
		return err
	}

	if br == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		s.copy(w, f, size)
		return nil
	}

	if _, err := f.Seek(br.First, io.SeekStart); err != nil {
		return fmt.Errorf("seek media: %w", err)
	}
	h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	h.Set("Content-Range", br.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	s.copy(w, f, br.Length())
	return nil
}

func (s *Streamer) copy(w io.Writer, f *os.File, n int64) {
	if _, err := io.CopyN(w, f, n); err != nil {
		// client went away; headers are already sent
		s.logger.Debug("media stream ended early", "path", logging.SanitizePath(f.Name()), "error", err)
	}
}
