// Package feeds owns feed records and their attached media.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
	"github.com/concertview/concertview/internal/render"
)

// OptionalFloat distinguishes a field that is absent from a JSON document
// from one that is explicitly null.
type OptionalFloat struct {
	Set   bool
	Value *float64
}

func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Value returns an OptionalFloat set to v.
func Value(v float64) OptionalFloat {
	return OptionalFloat{Set: true, Value: &v}
}

// Null returns an OptionalFloat that clears the field.
func Null() OptionalFloat {
	return OptionalFloat{Set: true}
}

// Update is a partial feed update. Nil pointers and unset optionals leave
// the stored value untouched; a null trim clears it.
type Update struct {
	Name          *string       `json:"name"`
	TrimStart     OptionalFloat `json:"trim_start"`
	TrimEnd       OptionalFloat `json:"trim_end"`
	OffsetSeconds *float64      `json:"offset_seconds"`
	Volume        *float64      `json:"volume"`
}

// Service manages feeds. Writes to one feed are serialized; writes to
// different feeds run independently.
type Service struct {
	repo           catalog.Repository
	prober         render.Prober
	uploadDir      string
	maxUploadBytes int64
	locks          *catalog.KeyedMutex
	logger         *slog.Logger
}

func NewService(repo catalog.Repository, prober render.Prober, uploadDir string, maxUploadBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:           repo,
		prober:         prober,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
		locks:          catalog.NewKeyedMutex(),
		logger:         logging.WithComponent(logger, "feeds"),
	}
}

// Create registers a feed with no media. It starts inactive.
func (s *Service) Create(ctx context.Context, name, sourceURL string) (*catalog.Feed, error) {
	now := time.Now().UTC()
	feed := &catalog.Feed{
		ID:        catalog.NewID(),
		Name:      strings.TrimSpace(name),
		SourceURL: strings.TrimSpace(sourceURL),
		Volume:    1.0,
		Status:    catalog.FeedStatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := feed.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateFeed(ctx, feed); err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}

	s.logger.Info("feed created", "feed_id", feed.ID, "name", feed.Name)
	return feed, nil
}

func (s *Service) Get(ctx context.Context, id string) (*catalog.Feed, error) {
	feed, err := s.repo.GetFeed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	if feed == nil {
		return nil, fmt.Errorf("%w: feed %s", catalog.ErrNotFound, id)
	}
	return feed, nil
}

func (s *Service) List(ctx context.Context) ([]*catalog.Feed, error) {
	return s.repo.ListFeeds(ctx)
}

// Update applies a partial update. The merged feed is validated before it
// is written, so a rejected update leaves the stored feed as it was.
func (s *Service) Update(ctx context.Context, id string, u Update) (*catalog.Feed, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	feed, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate := *feed
	if u.Name != nil {
		candidate.Name = strings.TrimSpace(*u.Name)
	}
	if u.TrimStart.Set {
		candidate.TrimStart = u.TrimStart.Value
	}
	if u.TrimEnd.Set {
		candidate.TrimEnd = u.TrimEnd.Value
	}
	if u.OffsetSeconds != nil {
		candidate.OffsetSeconds = *u.OffsetSeconds
	}
	if u.Volume != nil {
		candidate.Volume = *u.Volume
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	candidate.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateFeed(ctx, &candidate); err != nil {
		return nil, fmt.Errorf("update feed: %w", err)
	}
	return &candidate, nil
}

// Delete removes the feed and its uploaded media. Layouts that reference
// it are left alone; the dangling reference is caught at render time.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	feed, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.repo.DeleteFeed(ctx, id)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}
	if !deleted {
		return fmt.Errorf("%w: feed %s", catalog.ErrNotFound, id)
	}

	if feed.FilePath != "" && s.ownsPath(feed.FilePath) {
		if err := os.Remove(feed.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cannot remove feed media", "feed_id", id, "error", err)
		}
	}
	s.logger.Info("feed deleted", "feed_id", id)
	return nil
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// AttachMedia stores an upload as the feed's media, replacing any earlier
// file. The duration comes from durationHint when given and from probing
// the file otherwise. Trims that no longer fit the new duration are
// cleared. Nothing changes when the upload is rejected or the feed cannot
// be saved: the previous file is only removed after the new row commits.
func (s *Service) AttachMedia(ctx context.Context, id, filename string, r io.Reader, durationHint *float64) (*catalog.Feed, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	logger := logging.WithFeedID(s.logger, id)

	feed, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if durationHint != nil {
		if d := *durationHint; math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return nil, fmt.Errorf("%w: duration_seconds must be a positive number", catalog.ErrValidation)
		}
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		ext = ".bin"
	}
	finalPath := filepath.Join(s.uploadDir, id+ext)

	tmp, err := os.CreateTemp(s.uploadDir, "."+id+"-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath)
		}
	}()

	src := r
	if s.maxUploadBytes > 0 {
		src = io.LimitReader(r, s.maxUploadBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: upload exceeds the %s limit",
			catalog.ErrValidation, humanize.Bytes(uint64(s.maxUploadBytes)))
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: upload is empty", catalog.ErrValidation)
	}

	duration := durationHint
	if duration == nil {
		info, err := s.prober.Probe(ctx, tmpPath)
		if err != nil {
			return nil, fmt.Errorf("%w: probe media: %v", catalog.ErrUpstream, err)
		}
		d := info.DurationSeconds
		duration = &d
	}

	candidate := *feed
	candidate.FilePath = finalPath
	candidate.SizeBytes = size
	candidate.DurationSeconds = duration
	candidate.Status = catalog.FeedStatusReady
	candidate.UpdatedAt = time.Now().UTC()
	if cleared := clearStaleTrims(&candidate, *duration); len(cleared) > 0 {
		logger.Info("cleared trims beyond new media duration", "trims", cleared, "duration_seconds", *duration)
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	// a same-named previous file is set aside so a failed save can put it back
	old := feed.FilePath
	backup := ""
	if old == finalPath {
		backup = filepath.Join(s.uploadDir, "."+id+"-"+catalog.NewID()+".prev")
		if err := os.Rename(old, backup); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("set aside previous media: %w", err)
			}
			backup = ""
		}
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		s.restore(logger, backup, old)
		return nil, fmt.Errorf("store upload: %w", err)
	}
	keep = true

	if err := s.repo.UpdateFeed(ctx, &candidate); err != nil {
		if rerr := os.Remove(finalPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			logger.Warn("cannot remove unsaved upload", "path", logging.SanitizePath(finalPath), "error", rerr)
		}
		s.restore(logger, backup, old)
		return nil, fmt.Errorf("update feed: %w", err)
	}

	superseded := old
	if backup != "" {
		superseded = backup
	}
	if superseded != "" && superseded != finalPath && s.ownsPath(superseded) {
		if err := os.Remove(superseded); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot remove superseded media", "path", logging.SanitizePath(superseded), "error", err)
		}
	}

	logger.Info("media attached",
		"size", humanize.Bytes(uint64(size)),
		"duration_seconds", *duration,
		"probed", durationHint == nil,
	)
	return &candidate, nil
}

// restore moves a set-aside file back to its original path.
func (s *Service) restore(logger *slog.Logger, backup, original string) {
	if backup == "" {
		return
	}
	if err := os.Rename(backup, original); err != nil {
		logger.Error("cannot restore previous media", "path", logging.SanitizePath(original), "error", err)
	}
}

// clearStaleTrims drops trim points that fall outside media of the given
// duration and returns the names of the cleared fields.
func clearStaleTrims(f *catalog.Feed, duration float64) []string {
	var cleared []string
	if f.TrimEnd != nil && *f.TrimEnd > duration {
		f.TrimEnd = nil
		cleared = append(cleared, "trim_end")
	}
	if f.TrimStart != nil && *f.TrimStart >= duration {
		f.TrimStart = nil
		cleared = append(cleared, "trim_start")
	}
	return cleared
}

// ownsPath reports whether path lives in the upload directory.
func (s *Service) ownsPath(path string) bool {
	rel, err := filepath.Rel(s.uploadDir, path)
	return err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
