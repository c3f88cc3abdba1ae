package catalog

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	FeedStatusInactive = "inactive"
	FeedStatusReady    = "ready"
)

// Feed is one input clip with its timing and level adjustments.
type Feed struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	SourceURL       string    `json:"source_url,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds"`
	TrimStart       *float64  `json:"trim_start"`
	TrimEnd         *float64  `json:"trim_end"`
	OffsetSeconds   float64   `json:"offset_seconds"`
	Volume          float64   `json:"volume"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasMedia reports whether media has been attached to the feed.
func (f *Feed) HasMedia() bool {
	return f.FilePath != ""
}

// Validate checks the feed's trim window, offset and volume.
func (f *Feed) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !finite(f.OffsetSeconds) {
		return fmt.Errorf("%w: offset_seconds must be a finite number", ErrValidation)
	}
	if !finite(f.Volume) || f.Volume < 0 || f.Volume > 1 {
		return fmt.Errorf("%w: volume must be between 0 and 1", ErrValidation)
	}
	for _, t := range []struct {
		name string
		v    *float64
	}{{"trim_start", f.TrimStart}, {"trim_end", f.TrimEnd}} {
		if t.v == nil {
			continue
		}
		if !finite(*t.v) || *t.v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrValidation, t.name)
		}
		if f.DurationSeconds != nil && *t.v > *f.DurationSeconds {
			return fmt.Errorf("%w: %s %.3f exceeds media duration %.3f", ErrValidation, t.name, *t.v, *f.DurationSeconds)
		}
	}
	if f.TrimStart != nil && f.TrimEnd != nil && *f.TrimEnd <= *f.TrimStart {
		return fmt.Errorf("%w: trim_end must be greater than trim_start", ErrValidation)
	}
	return nil
}

// Slot is one rectangle of a layout in normalized canvas coordinates.
// FeedID is a weak reference resolved at render time.
type Slot struct {
	FeedID string  `json:"feed_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	ZIndex int     `json:"z_index"`
}

// Validate checks that the slot lies in the unit square. Slots extending
// past the right or bottom edge and overlapping slots are allowed.
func (s Slot) Validate() error {
	if strings.TrimSpace(s.FeedID) == "" {
		return fmt.Errorf("%w: slot feed_id is required", ErrValidation)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{{"x", s.X}, {"y", s.Y}, {"width", s.Width}, {"height", s.Height}} {
		if !finite(c.v) || c.v < 0 || c.v > 1 {
			return fmt.Errorf("%w: slot %s must be between 0 and 1", ErrValidation, c.name)
		}
	}
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("%w: slot width and height must be greater than 0", ErrValidation)
	}
	return nil
}

// Layout is a named arrangement of slots over the unit canvas.
type Layout struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slots     []Slot    `json:"slots"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateSlots rejects empty and malformed slot lists.
func ValidateSlots(slots []Slot) error {
	if len(slots) == 0 {
		return fmt.Errorf("%w: a layout needs at least one slot", ErrValidation)
	}
	for i, s := range slots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
	}
	return nil
}

// AudioSettings selects how the composed soundtrack is built.
type AudioSettings struct {
	MasterFeedID   string `json:"master_feed_id,omitempty"`
	Normalize      bool   `json:"normalize"`
	NoiseReduction bool   `json:"noise_reduction"`
}

// Project groups feeds, a layout and audio settings into one renderable unit.
type Project struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	FeedIDs   []string       `json:"feed_ids"`
	LayoutID  string         `json:"layout_id"`
	Audio     AudioSettings  `json:"audio_settings"`
	Format    string         `json:"format"`
	Clips     []TimelineClip `json:"clips"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Validate checks the project's own fields. Feed and layout references are
// resolved later, at render time.
func (p *Project) Validate() error {
	if len(p.FeedIDs) == 0 {
		return fmt.Errorf("%w: a project needs at least one feed", ErrValidation)
	}
	seen := make(map[string]bool, len(p.FeedIDs))
	for _, id := range p.FeedIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: feed_ids must not contain empty ids", ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: feed %s is listed twice", ErrValidation, id)
		}
		seen[id] = true
	}
	if strings.TrimSpace(p.LayoutID) == "" {
		return fmt.Errorf("%w: layout_id is required", ErrValidation)
	}
	if m := p.Audio.MasterFeedID; m != "" && !seen[m] {
		return fmt.Errorf("%w: master feed %s is not part of the project", ErrValidation, m)
	}
	if _, err := LookupPreset(p.Format); err != nil {
		return err
	}
	for i, c := range p.Clips {
		if err := c.Validate(i); err != nil {
			return err
		}
		if !seen[c.FeedID] {
			return fmt.Errorf("%w: clip %d uses feed %s, which is not part of the project", ErrValidation, i, c.FeedID)
		}
	}
	return nil
}

// HasFeed reports whether id is in the project's feed set.
func (p *Project) HasFeed(id string) bool {
	for _, f := range p.FeedIDs {
		if f == id {
			return true
		}
	}
	return false
}

const (
	JobKindExport  = "export"
	JobKindCompose = "compose"

	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is an asynchronous render. Only the job manager's workers change its
// status; completed and failed are final.
type Job struct {
	ID             string        `json:"job_id"`
	Kind           string        `json:"kind"`
	Status         string        `json:"status"`
	Format         string        `json:"format"`
	InputPath      string        `json:"input_path,omitempty"`
	OutputFilename string        `json:"output_filename"`
	Result         string        `json:"result,omitempty"`
	Error          string        `json:"error,omitempty"`
	ProjectID      string        `json:"project_id,omitempty"`
	Plan           *RenderPlan   `json:"plan,omitempty"`
	Timeline       *TimelinePlan `json:"timeline,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".m4v":  true,
	".mts":  true,
}

// NewID returns a time-ordered unique record id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CheckMediaFile reports a validation error, attributed to field, unless
// path names an existing regular file. It returns the cleaned path.
func CheckMediaFile(field, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	cleaned := filepath.Clean(path)

	info, err := os.Stat(cleaned)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s %s does not exist", ErrValidation, field, cleaned)
		}
		return "", fmt.Errorf("%w: invalid %s: %v", ErrValidation, field, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s %s is not a regular file", ErrValidation, field, cleaned)
	}
	return cleaned, nil
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
