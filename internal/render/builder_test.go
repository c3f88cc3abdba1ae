package render

import (
	"slices"
	"strings"
	"testing"

	"github.com/concertview/concertview/internal/catalog"
)

func f64(v float64) *float64 { return &v }

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestExportArgs_PortraitPreset(t *testing.T) {
	preset, _ := catalog.LookupPreset(catalog.FormatPortrait1080p)
	args := ExportArgs("/in/cam1.mov", "/out/cam1.mp4", preset)

	wantVF := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2:black"
	if got := argAfter(args, "-vf"); got != wantVF {
		t.Errorf("-vf = %q, want %q", got, wantVF)
	}
	if got := argAfter(args, "-i"); got != "/in/cam1.mov" {
		t.Errorf("-i = %q", got)
	}
	if got := argAfter(args, "-crf"); got != "23" {
		t.Errorf("-crf = %q, want 23", got)
	}
	if got := argAfter(args, "-b:a"); got != "192k" {
		t.Errorf("-b:a = %q, want 192k", got)
	}
	if got := argAfter(args, "-movflags"); got != "+faststart" {
		t.Errorf("-movflags = %q", got)
	}
	if args[len(args)-1] != "/out/cam1.mp4" {
		t.Errorf("output = %q, want last argument", args[len(args)-1])
	}
}

func twoFeedPlan() *catalog.RenderPlan {
	return &catalog.RenderPlan{
		Format: catalog.FormatLandscape1080p,
		Width:  1920,
		Height: 1080,
		Inputs: []catalog.PlanInput{
			{FeedID: "main", Path: "/m/main.mp4", DurationSeconds: f64(60), TrimStart: f64(2), TrimEnd: f64(50), Volume: 1},
			{FeedID: "side", Path: "/m/side.mp4", DurationSeconds: f64(40), OffsetSeconds: 1.5, Volume: 0.5},
		},
		Slots: []catalog.PlanSlot{
			{FeedID: "main", Input: 0, Width: 1920, Height: 1080},
			{FeedID: "side", Input: 1, X: 1392, Y: 21, Width: 480, Height: 270, ZIndex: 1},
		},
	}
}

func TestComposeArgs_TrimOffsetAndOverlay(t *testing.T) {
	args, err := ComposeArgs(twoFeedPlan(), "/out/show.mp4")
	if err != nil {
		t.Fatalf("ComposeArgs() error = %v", err)
	}

	// input seeking happens before the first -i
	firstInput := slices.Index(args, "-i")
	head := args[:firstInput]
	if argAfter(head, "-ss") != "2.000" || argAfter(head, "-t") != "48.000" {
		t.Errorf("input window args = %v", head)
	}

	graph := argAfter(args, "-filter_complex")
	for _, want := range []string{
		"color=c=black:s=1920x1080:r=30[base]",
		"[1:v]setpts=PTS-STARTPTS+1.500/TB[in1_0]",
		"[base][s0]overlay=x=0:y=0:eof_action=pass[o0]",
		"[o0][s1]overlay=x=1392:y=21:eof_action=pass[vout]",
		"[in1_0]scale=480:270[s1]",
		"adelay=1500:all=1,volume=0.5[a1]",
		"amix=inputs=2:duration=longest:normalize=0[aout]",
	} {
		if !strings.Contains(graph, want) {
			t.Errorf("filter graph missing %q\ngraph: %s", want, graph)
		}
	}

	// side runs 1.5 + 40 seconds, the longest input
	if got := argAfter(args[slices.Index(args, "-filter_complex"):], "-t"); got != "41.500" {
		t.Errorf("output -t = %q, want 41.500", got)
	}
	if args[len(args)-1] != "/out/show.mp4" {
		t.Errorf("output path not last: %v", args)
	}
}

func TestComposeArgs_MasterAudioWithFilters(t *testing.T) {
	plan := twoFeedPlan()
	plan.Audio = catalog.AudioSettings{MasterFeedID: "side", Normalize: true, NoiseReduction: true}

	args, err := ComposeArgs(plan, "/out/show.mp4")
	if err != nil {
		t.Fatalf("ComposeArgs() error = %v", err)
	}
	graph := argAfter(args, "-filter_complex")

	if strings.Contains(graph, "[0:a]") {
		t.Errorf("non-master audio mixed in: %s", graph)
	}
	if strings.Contains(graph, "amix") {
		t.Errorf("single master track should not be mixed: %s", graph)
	}
	want := "[a1]" + LoudnormFilter + "," + DenoiseFilter + "[aout]"
	if !strings.Contains(graph, want) {
		t.Errorf("graph missing %q\ngraph: %s", want, graph)
	}
}

func TestComposeArgs_SplitsInputShownTwice(t *testing.T) {
	plan := twoFeedPlan()
	plan.Slots = append(plan.Slots, catalog.PlanSlot{FeedID: "main", Input: 0, X: 10, Y: 10, Width: 320, Height: 180, ZIndex: 2})

	args, err := ComposeArgs(plan, "/out/show.mp4")
	if err != nil {
		t.Fatalf("ComposeArgs() error = %v", err)
	}
	graph := argAfter(args, "-filter_complex")
	if !strings.Contains(graph, "split=2[in0_0][in0_1]") {
		t.Errorf("graph should split input 0: %s", graph)
	}
	if !strings.Contains(graph, "[in0_1]scale=320:180[s2]") {
		t.Errorf("second use of input 0 not scaled: %s", graph)
	}
}

func TestComposeArgs_UnknownLengthUsesShortest(t *testing.T) {
	plan := twoFeedPlan()
	plan.Inputs[1].DurationSeconds = nil

	args, err := ComposeArgs(plan, "/out/show.mp4")
	if err != nil {
		t.Fatalf("ComposeArgs() error = %v", err)
	}
	if !slices.Contains(args, "-shortest") {
		t.Errorf("expected -shortest when the timeline length is unknown: %v", args)
	}
}

func TestComposeArgs_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *catalog.RenderPlan)
	}{
		{"no slots", func(p *catalog.RenderPlan) { p.Slots = nil }},
		{"bad input index", func(p *catalog.RenderPlan) { p.Slots[1].Input = 7 }},
		{"empty slot", func(p *catalog.RenderPlan) { p.Slots[0].Width = 0 }},
		{"offset eats whole clip", func(p *catalog.RenderPlan) { p.Inputs[0].OffsetSeconds = -100 }},
		{"master not an input", func(p *catalog.RenderPlan) { p.Audio.MasterFeedID = "ghost" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := twoFeedPlan()
			tt.mutate(plan)
			if _, err := ComposeArgs(plan, "/out/x.mp4"); err == nil {
				t.Error("ComposeArgs() should fail")
			}
		})
	}
}

func TestPCMArgs(t *testing.T) {
	args := PCMArgs("/m/a.mp4", 16000)
	if argAfter(args, "-ar") != "16000" || argAfter(args, "-ac") != "1" || argAfter(args, "-f") != "s16le" {
		t.Errorf("PCMArgs = %v", args)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("PCM should go to stdout, got %q", args[len(args)-1])
	}
}
