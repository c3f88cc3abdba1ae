package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/concertview/concertview/internal/catalog"
)

const (
	timelineSampleRate = 48000

	// gaps shorter than this are treated as touching cuts
	minGapSeconds = 0.001
)

// TimelineArgs renders a cut timeline: every segment is read with input
// seeking, fitted to the canvas and concatenated in order, with black
// video and silence standing in for any gap between segments.
func TimelineArgs(plan *catalog.TimelinePlan, outputPath string) ([]string, error) {
	if plan == nil || len(plan.Segments) == 0 {
		return nil, fmt.Errorf("timeline plan has no segments")
	}
	if plan.Width <= 0 || plan.Height <= 0 {
		return nil, fmt.Errorf("timeline plan has invalid canvas %dx%d", plan.Width, plan.Height)
	}

	args := make([]string, 0, 32+6*len(plan.Segments))
	args = append(args, preamble()...)
	for _, seg := range plan.Segments {
		if seg.Length <= 0 {
			return nil, fmt.Errorf("segment of feed %s is empty", seg.FeedID)
		}
		if seg.SourceStart > 0 {
			args = append(args, "-ss", seconds(seg.SourceStart))
		}
		args = append(args, "-t", seconds(seg.Length), "-i", seg.Path)
	}

	fit := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,fps=%d,setsar=1,format=yuv420p",
		plan.Width, plan.Height, plan.Width, plan.Height, canvasFrameRate)
	audioFormat := fmt.Sprintf("aresample=%d,aformat=sample_fmts=fltp:channel_layouts=stereo", timelineSampleRate)

	var parts, pairs []string
	cursor := 0.0
	for i, seg := range plan.Segments {
		if gap := seg.TimelineStart - cursor; gap > minGapSeconds {
			parts = append(parts,
				fmt.Sprintf("color=c=black:s=%dx%d:r=%d:d=%s,setsar=1,format=yuv420p[gv%d]",
					plan.Width, plan.Height, canvasFrameRate, seconds(gap), i),
				fmt.Sprintf("anullsrc=r=%d:cl=stereo,atrim=duration=%s,%s[ga%d]",
					timelineSampleRate, seconds(gap), audioFormat, i),
			)
			pairs = append(pairs, fmt.Sprintf("[gv%d][ga%d]", i, i))
		}
		parts = append(parts,
			fmt.Sprintf("[%d:v]setpts=PTS-STARTPTS,%s[v%d]", i, fit, i),
			fmt.Sprintf("[%d:a]asetpts=PTS-STARTPTS,%s,volume=%s[a%d]",
				i, audioFormat, strconv.FormatFloat(seg.Volume, 'f', -1, 64), i),
		)
		pairs = append(pairs, fmt.Sprintf("[v%d][a%d]", i, i))
		cursor = seg.End()
	}
	parts = append(parts, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[vout][acat]", strings.Join(pairs, ""), len(pairs)))

	var post []string
	if plan.Audio.Normalize {
		post = append(post, LoudnormFilter)
	}
	if plan.Audio.NoiseReduction {
		post = append(post, DenoiseFilter)
	}
	if len(post) == 0 {
		post = append(post, "anull")
	}
	parts = append(parts, "[acat]"+strings.Join(post, ",")+"[aout]")

	args = append(args, "-filter_complex", strings.Join(parts, ";"), "-map", "[vout]", "-map", "[aout]")
	args = append(args, encodeArgs()...)
	args = append(args, "-movflags", "+faststart", outputPath)
	return args, nil
}

// Timeline renders a resolved cut timeline.
func (f *FFmpeg) Timeline(ctx context.Context, plan *catalog.TimelinePlan, outputPath string) (RunResult, error) {
	args, err := TimelineArgs(plan, outputPath)
	if err != nil {
		return RunResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return RunResult{}, fmt.Errorf("cannot create output dir: %w", err)
	}
	return f.render(ctx, outputPath, args), nil
}
