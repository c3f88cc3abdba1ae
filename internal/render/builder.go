package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/concertview/concertview/internal/catalog"
)

const (
	// LoudnormFilter is the EBU R128 loudness target applied when audio
	// normalization is requested.
	LoudnormFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"

	// DenoiseFilter is the FFT denoiser applied when noise reduction is
	// requested.
	DenoiseFilter = "afftdn=nf=-25"

	canvasFrameRate = 30
)

// preamble is shared by every ffmpeg invocation.
func preamble() []string {
	return []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error"}
}

// encodeArgs are the H.264/AAC output settings for every rendered file.
func encodeArgs() []string {
	return []string{
		"-c:v", "libx264", "-preset", "fast", "-crf", "23", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "192k",
	}
}

// ExportArgs re-encodes one file to a preset, scaling to fit and padding
// the remainder with black.
func ExportArgs(inputPath, outputPath string, p catalog.Preset) []string {
	vf := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		p.Width, p.Height, p.Width, p.Height)

	args := make([]string, 0, 32)
	args = append(args, preamble()...)
	args = append(args, "-i", inputPath, "-vf", vf)
	args = append(args, encodeArgs()...)
	args = append(args, "-movflags", "+faststart", outputPath)
	return args
}

// ComposeArgs renders a plan: each input is trimmed with input seeking,
// shifted on the timeline, scaled into its slot and overlaid on a black
// canvas in slot order.
func ComposeArgs(plan *catalog.RenderPlan, outputPath string) ([]string, error) {
	if plan == nil || len(plan.Slots) == 0 {
		return nil, fmt.Errorf("render plan has no slots")
	}
	if plan.Width <= 0 || plan.Height <= 0 {
		return nil, fmt.Errorf("render plan has invalid canvas %dx%d", plan.Width, plan.Height)
	}

	args := make([]string, 0, 32+6*len(plan.Inputs))
	args = append(args, preamble()...)

	for _, in := range plan.Inputs {
		start, length, _ := in.Window()
		if length != nil && *length <= 0 {
			return nil, fmt.Errorf("feed %s has nothing left to play after trim and offset", in.FeedID)
		}
		if start > 0 {
			args = append(args, "-ss", seconds(start))
		}
		if length != nil {
			args = append(args, "-t", seconds(*length))
		}
		args = append(args, "-i", in.Path)
	}

	video, err := videoGraph(plan)
	if err != nil {
		return nil, err
	}
	audio, err := audioGraph(plan)
	if err != nil {
		return nil, err
	}

	args = append(args, "-filter_complex", video+";"+audio, "-map", "[vout]", "-map", "[aout]")
	args = append(args, encodeArgs()...)
	if l := plan.Length(); l != nil {
		args = append(args, "-t", seconds(*l))
	} else {
		// the canvas is endless; stop with the soundtrack
		args = append(args, "-shortest")
	}
	args = append(args, "-movflags", "+faststart", outputPath)
	return args, nil
}

func videoGraph(plan *catalog.RenderPlan) (string, error) {
	uses := make(map[int]int)
	for _, s := range plan.Slots {
		if s.Input < 0 || s.Input >= len(plan.Inputs) {
			return "", fmt.Errorf("slot for feed %s references missing input %d", s.FeedID, s.Input)
		}
		if s.Width <= 0 || s.Height <= 0 {
			return "", fmt.Errorf("slot for feed %s has empty size %dx%d", s.FeedID, s.Width, s.Height)
		}
		uses[s.Input]++
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("color=c=black:s=%dx%d:r=%d[base]", plan.Width, plan.Height, canvasFrameRate))

	// one timeline-shifted stream per input, split when several slots show it
	for i, in := range plan.Inputs {
		n := uses[i]
		if n == 0 {
			continue
		}
		_, _, delay := in.Window()
		chain := fmt.Sprintf("[%d:v]setpts=PTS-STARTPTS+%s/TB", i, seconds(delay))
		if n == 1 {
			parts = append(parts, chain+fmt.Sprintf("[in%d_0]", i))
			continue
		}
		labels := make([]string, n)
		for k := range labels {
			labels[k] = fmt.Sprintf("[in%d_%d]", i, k)
		}
		parts = append(parts, chain+fmt.Sprintf(",split=%d", n)+strings.Join(labels, ""))
	}

	next := make(map[int]int)
	prev := "base"
	for si, s := range plan.Slots {
		src := fmt.Sprintf("in%d_%d", s.Input, next[s.Input])
		next[s.Input]++
		parts = append(parts, fmt.Sprintf("[%s]scale=%d:%d[s%d]", src, s.Width, s.Height, si))

		out := fmt.Sprintf("o%d", si)
		if si == len(plan.Slots)-1 {
			out = "vout"
		}
		parts = append(parts, fmt.Sprintf("[%s][s%d]overlay=x=%d:y=%d:eof_action=pass[%s]", prev, si, s.X, s.Y, out))
		prev = out
	}
	return strings.Join(parts, ";"), nil
}

// audioGraph takes the master feed's audio alone when one is set and mixes
// every input otherwise.
func audioGraph(plan *catalog.RenderPlan) (string, error) {
	var sources []int
	if m := plan.Audio.MasterFeedID; m != "" {
		idx := plan.InputIndex(m)
		if idx < 0 {
			return "", fmt.Errorf("master feed %s is not an input of the plan", m)
		}
		sources = []int{idx}
	} else {
		for i := range plan.Inputs {
			sources = append(sources, i)
		}
	}
	if len(sources) == 0 {
		return "", fmt.Errorf("render plan has no audio inputs")
	}

	var parts []string
	labels := make([]string, 0, len(sources))
	for _, i := range sources {
		in := plan.Inputs[i]
		_, _, delay := in.Window()
		label := fmt.Sprintf("a%d", i)
		parts = append(parts, fmt.Sprintf("[%d:a]asetpts=PTS-STARTPTS,adelay=%d:all=1,volume=%s[%s]",
			i, int(math.Round(delay*1000)), strconv.FormatFloat(in.Volume, 'f', -1, 64), label))
		labels = append(labels, "["+label+"]")
	}

	var post []string
	if len(labels) > 1 {
		post = append(post, fmt.Sprintf("amix=inputs=%d:duration=longest:normalize=0", len(labels)))
	}
	if plan.Audio.Normalize {
		post = append(post, LoudnormFilter)
	}
	if plan.Audio.NoiseReduction {
		post = append(post, DenoiseFilter)
	}
	if len(post) == 0 {
		post = append(post, "anull")
	}
	parts = append(parts, strings.Join(labels, "")+strings.Join(post, ",")+"[aout]")
	return strings.Join(parts, ";"), nil
}

// PCMArgs decodes a file's first audio stream to mono s16le on stdout.
func PCMArgs(path string, sampleRate int) []string {
	args := preamble()
	return append(args,
		"-i", path,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "s16le", "-acodec", "pcm_s16le",
		"pipe:1",
	)
}

// ProbeArgs asks ffprobe for container and stream metadata as JSON.
func ProbeArgs(path string) []string {
	return []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
