package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/concertview/concertview/internal/catalog"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics

	// MaxErrorBytes bounds the stderr excerpt carried in job errors.
	MaxErrorBytes = 512
)

// Config holds the ffmpeg toolchain settings.
type Config struct {
	FFmpegPath    string
	FFprobePath   string
	RenderTimeout time.Duration // bounds one export or composition
	ProbeTimeout  time.Duration // bounds ffprobe and doctor commands
	Logger        *slog.Logger
}

// DefaultConfig returns production defaults using binaries on PATH.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		RenderTimeout: 2 * time.Hour,
		ProbeTimeout:  30 * time.Second,
		Logger:        logger,
	}
}

// FFmpeg implements Renderer, Prober and AudioExtractor with the ffmpeg
// and ffprobe command line tools.
type FFmpeg struct {
	cfg Config
}

func New(cfg Config) *FFmpeg {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &FFmpeg{cfg: cfg}
}

// Export re-encodes inputPath to the preset's resolution.
func (f *FFmpeg) Export(ctx context.Context, inputPath, outputPath string, preset catalog.Preset) (RunResult, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return RunResult{}, fmt.Errorf("cannot create output dir: %w", err)
	}
	return f.render(ctx, outputPath, ExportArgs(inputPath, outputPath, preset)), nil
}

// Compose renders a resolved layout plan.
func (f *FFmpeg) Compose(ctx context.Context, plan *catalog.RenderPlan, outputPath string) (RunResult, error) {
	args, err := ComposeArgs(plan, outputPath)
	if err != nil {
		return RunResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return RunResult{}, fmt.Errorf("cannot create output dir: %w", err)
	}
	return f.render(ctx, outputPath, args), nil
}

// render runs ffmpeg and removes the partial output when it fails.
func (f *FFmpeg) render(ctx context.Context, outputPath string, args []string) RunResult {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RenderTimeout)
	defer cancel()

	result := f.exec(ctx, f.cfg.FFmpegPath, args, io.Discard)
	result.OutputPath = outputPath
	if !result.IsSuccess() {
		if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.cfg.Logger.Warn("cannot remove partial output", "path", outputPath, "error", err)
		}
	}
	return result
}

// Probe reads duration and stream metadata with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	result := f.exec(ctx, f.cfg.FFprobePath, ProbeArgs(path), &stdout)
	if !result.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", result.ExitCode, Truncate(result.StderrTail, MaxErrorBytes))
	}
	return parseProbe(stdout.Bytes())
}

// ExtractPCM streams mono s16le samples of path to w.
func (f *FFmpeg) ExtractPCM(ctx context.Context, path string, sampleRate int, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RenderTimeout)
	defer cancel()

	result := f.exec(ctx, f.cfg.FFmpegPath, PCMArgs(path, sampleRate), w)
	if !result.IsSuccess() {
		return fmt.Errorf("audio extraction exited %d: %s", result.ExitCode, Truncate(result.StderrTail, MaxErrorBytes))
	}
	return nil
}

// Doctor probes the installed toolchain. It fails only when ffmpeg itself
// cannot be run.
func (f *FFmpeg) Doctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	caps := &Capabilities{ProbedAt: time.Now()}

	var out bytes.Buffer
	res := f.exec(ctx, f.cfg.FFmpegPath, []string{"-hide_banner", "-version"}, &out)
	if !res.IsSuccess() {
		return nil, fmt.Errorf("ffmpeg unavailable (exit %d): %s", res.ExitCode, Truncate(res.StderrTail, MaxErrorBytes))
	}
	caps.HasFFmpeg = true
	caps.FFmpegVersion = firstLine(out.String())

	out.Reset()
	if res := f.exec(ctx, f.cfg.FFprobePath, []string{"-hide_banner", "-version"}, &out); res.IsSuccess() {
		caps.HasFFprobe = true
		caps.FFprobeVersion = firstLine(out.String())
	}

	out.Reset()
	if res := f.exec(ctx, f.cfg.FFmpegPath, []string{"-hide_banner", "-encoders"}, &out); res.IsSuccess() {
		caps.HasLibx264 = hasListEntry(out.String(), "libx264")
	}

	out.Reset()
	if res := f.exec(ctx, f.cfg.FFmpegPath, []string{"-hide_banner", "-filters"}, &out); res.IsSuccess() {
		caps.HasLoudnorm = hasListEntry(out.String(), "loudnorm")
		caps.HasAfftdn = hasListEntry(out.String(), "afftdn")
	}

	f.cfg.Logger.Info("renderer probe complete",
		"ffmpeg", caps.FFmpegVersion,
		"ffprobe", caps.HasFFprobe,
		"libx264", caps.HasLibx264,
		"loudnorm", caps.HasLoudnorm,
		"afftdn", caps.HasAfftdn,
	)
	return caps, nil
}

// exec is the core subprocess execution helper.
func (f *FFmpeg) exec(ctx context.Context, bin string, args []string, stdout io.Writer) RunResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	cmd.Stdout = stdout

	f.cfg.Logger.Debug("executing command", "bin", bin, "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stderrTail := stderrBuf.String()
	if err != nil && stderrTail == "" {
		stderrTail = err.Error()
	}
	if ctx.Err() != nil && exitCode != 0 {
		stderrTail = strings.TrimSpace(stderrTail + "\n" + ctx.Err().Error())
	}

	if exitCode != 0 {
		f.cfg.Logger.Warn("command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", Truncate(stderrTail, MaxErrorBytes),
		)
	} else {
		f.cfg.Logger.Debug("command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

type probeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		SampleRate string `json:"sample_rate"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}

	info := &MediaInfo{FormatName: out.Format.FormatName}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
				info.SampleRate, _ = strconv.Atoi(s.SampleRate)
			}
		}
		// some containers only report duration per stream
		if d, err := strconv.ParseFloat(s.Duration, 64); err == nil && d > info.DurationSeconds {
			info.DurationSeconds = d
		}
	}

	if info.VideoCodec == "" && info.AudioCodec == "" {
		return nil, fmt.Errorf("no audio or video streams found")
	}
	if info.DurationSeconds <= 0 {
		return nil, fmt.Errorf("media duration unknown")
	}
	return info, nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

// hasListEntry reports whether name appears as the second column of an
// `ffmpeg -encoders` or `-filters` listing.
func hasListEntry(listing, name string) bool {
	sc := bufio.NewScanner(strings.NewReader(listing))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// Truncate keeps the last maxLen bytes of s.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
