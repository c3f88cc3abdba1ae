// Package render drives ffmpeg and ffprobe as subprocesses: preset
// re-encodes, layout compositions, timeline cuts, media probing and PCM
// extraction for audio analysis.
package render

import (
	"context"
	"io"
	"time"

	"github.com/concertview/concertview/internal/catalog"
)

// Renderer produces output video files. A non-nil error means the render
// could not be started; a started render reports failure through RunResult.
type Renderer interface {
	Export(ctx context.Context, inputPath, outputPath string, preset catalog.Preset) (RunResult, error)
	Compose(ctx context.Context, plan *catalog.RenderPlan, outputPath string) (RunResult, error)
	Timeline(ctx context.Context, plan *catalog.TimelinePlan, outputPath string) (RunResult, error)
}

// Prober reads container metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// AudioExtractor decodes a file's audio as mono signed 16-bit little-endian
// PCM at sampleRate and streams it to w.
type AudioExtractor interface {
	ExtractPCM(ctx context.Context, path string, sampleRate int, w io.Writer) error
}

// RunResult is the outcome of one ffmpeg invocation.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// MediaInfo is the subset of ffprobe output the server uses.
type MediaInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	VideoCodec      string  `json:"video_codec,omitempty"`
	AudioCodec      string  `json:"audio_codec,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	FormatName      string  `json:"format_name,omitempty"`
}

// HasAudio reports whether the probed file carries an audio stream.
func (m *MediaInfo) HasAudio() bool { return m.AudioCodec != "" }

// Capabilities describes the installed ffmpeg toolchain.
type Capabilities struct {
	FFmpegVersion  string    `json:"ffmpeg_version,omitempty"`
	FFprobeVersion string    `json:"ffprobe_version,omitempty"`
	HasFFmpeg      bool      `json:"has_ffmpeg"`
	HasFFprobe     bool      `json:"has_ffprobe"`
	HasLibx264     bool      `json:"has_libx264"`
	HasLoudnorm    bool      `json:"has_loudnorm"`
	HasAfftdn      bool      `json:"has_afftdn"`
	ProbedAt       time.Time `json:"probed_at"`
}

// Ready reports whether every render the server issues can run.
func (c *Capabilities) Ready() bool {
	return c.HasFFmpeg && c.HasFFprobe && c.HasLibx264
}
