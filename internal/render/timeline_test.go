package render

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/concertview/concertview/internal/catalog"
)

func gappedTimeline() *catalog.TimelinePlan {
	return &catalog.TimelinePlan{
		Format: catalog.FormatLandscape1080p,
		Width:  1920,
		Height: 1080,
		Segments: []catalog.TimelineSegment{
			{FeedID: "stage", Path: "/m/stage.mp4", SourceStart: 5, Length: 10, TimelineStart: 2, Volume: 1},
			{FeedID: "crowd", Path: "/m/crowd.mp4", Length: 4, TimelineStart: 12, Volume: 0.5},
			{FeedID: "stage", Path: "/m/stage.mp4", SourceStart: 40, Length: 3, TimelineStart: 20, Volume: 1},
		},
	}
}

func TestTimelineArgs_SegmentsAndGaps(t *testing.T) {
	args, err := TimelineArgs(gappedTimeline(), "/out/cut.mp4")
	if err != nil {
		t.Fatalf("TimelineArgs() error = %v", err)
	}

	// one seeked, length-limited input per segment
	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	if !slices.Equal(inputs, []string{"/m/stage.mp4", "/m/crowd.mp4", "/m/stage.mp4"}) {
		t.Errorf("inputs = %v", inputs)
	}
	if got := argAfter(args, "-ss"); got != "5.000" {
		t.Errorf("first -ss = %q, want 5.000", got)
	}
	if got := argAfter(args, "-t"); got != "10.000" {
		t.Errorf("first -t = %q, want 10.000", got)
	}

	graph := argAfter(args, "-filter_complex")
	for _, want := range []string{
		"color=c=black:s=1920x1080:r=30:d=2.000,setsar=1,format=yuv420p[gv0]",
		"anullsrc=r=48000:cl=stereo,atrim=duration=2.000",
		"[0:v]setpts=PTS-STARTPTS,scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080",
		"[1:a]asetpts=PTS-STARTPTS,aresample=48000",
		"volume=0.5[a1]",
		"d=4.000,setsar=1,format=yuv420p[gv2]",
		"[gv0][ga0][v0][a0][v1][a1][gv2][ga2][v2][a2]concat=n=5:v=1:a=1[vout][acat]",
		"[acat]anull[aout]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("filter graph missing %q:\n%s", want, graph)
		}
	}
	// crowd ends exactly where the gap before the last clip starts
	if strings.Contains(graph, "[gv1]") {
		t.Errorf("touching cut should not get a gap:\n%s", graph)
	}
	if args[len(args)-1] != "/out/cut.mp4" || argAfter(args, "-movflags") != "+faststart" {
		t.Errorf("output args = %v", args[len(args)-4:])
	}
}

func TestTimelineArgs_AudioFilters(t *testing.T) {
	plan := gappedTimeline()
	plan.Segments[0].TimelineStart = 0
	plan.Audio = catalog.AudioSettings{Normalize: true, NoiseReduction: true}

	args, err := TimelineArgs(plan, "/out/cut.mp4")
	if err != nil {
		t.Fatalf("TimelineArgs() error = %v", err)
	}
	graph := argAfter(args, "-filter_complex")
	if !strings.Contains(graph, "[acat]"+LoudnormFilter+","+DenoiseFilter+"[aout]") {
		t.Errorf("filter graph = %s", graph)
	}
	if strings.Contains(graph, "[gv0]") {
		t.Errorf("timeline starting at zero should not lead with a gap:\n%s", graph)
	}
}

func TestTimelineArgs_Errors(t *testing.T) {
	if _, err := TimelineArgs(nil, "/o.mp4"); err == nil {
		t.Error("nil plan should fail")
	}
	if _, err := TimelineArgs(&catalog.TimelinePlan{Width: 1920, Height: 1080}, "/o.mp4"); err == nil {
		t.Error("empty plan should fail")
	}
	bad := gappedTimeline()
	bad.Width = 0
	if _, err := TimelineArgs(bad, "/o.mp4"); err == nil {
		t.Error("zero canvas should fail")
	}
	empty := gappedTimeline()
	empty.Segments[1].Length = 0
	if _, err := TimelineArgs(empty, "/o.mp4"); err == nil {
		t.Error("empty segment should fail")
	}
}

func TestTimeline_RendersToNestedDir(t *testing.T) {
	script := writeScript(t, `for last; do :; done
echo rendered > "$last"`)
	f := newTestFFmpeg(script, script)

	out := filepath.Join(t.TempDir(), "job", "cut.mp4")
	result, err := f.Timeline(context.Background(), gappedTimeline(), out)
	if err != nil || !result.IsSuccess() {
		t.Fatalf("Timeline() = %+v, %v", result, err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
}
