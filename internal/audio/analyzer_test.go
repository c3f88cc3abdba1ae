package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/concertview/concertview/internal/catalog"
)

type fakeFeeds map[string]*catalog.Feed

func (f fakeFeeds) Get(ctx context.Context, id string) (*catalog.Feed, error) {
	feed, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("%w: feed %s", catalog.ErrNotFound, id)
	}
	return feed, nil
}

// fakeExtractor serves PCM built from per-frame amplitudes, keyed by path.
type fakeExtractor struct {
	frames map[string][]float64
	err    error
	calls  atomic.Int32
}

func (x *fakeExtractor) ExtractPCM(ctx context.Context, path string, sampleRate int, w io.Writer) error {
	x.calls.Add(1)
	if x.err != nil {
		return x.err
	}
	amps, ok := x.frames[path]
	if !ok {
		return fmt.Errorf("no audio stream in %s", path)
	}
	pcm := synthesize(amps, sampleRate/EnvelopeRate)
	// odd chunk size splits samples across writes
	for len(pcm) > 0 {
		n := min(333, len(pcm))
		if _, err := w.Write(pcm[:n]); err != nil {
			return err
		}
		pcm = pcm[n:]
	}
	return nil
}

// synthesize emits a square wave whose RMS per frame equals amps[i].
func synthesize(amps []float64, frameSize int) []byte {
	out := make([]byte, 0, len(amps)*frameSize*2)
	for _, a := range amps {
		v := int16(a * 32767)
		for i := 0; i < frameSize; i++ {
			s := v
			if i%2 == 1 {
				s = -v
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(s))
		}
	}
	return out
}

func pattern(seed int64, n int) []float64 {
	r := rand.New(rand.NewSource(seed))
	p := make([]float64, n)
	for i := range p {
		p[i] = 0.05 + 0.75*r.Float64()
	}
	return p
}

func constant(v float64, n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = v
	}
	return p
}

func feed(id string) *catalog.Feed {
	return &catalog.Feed{ID: id, Name: id, FilePath: "/media/" + id + ".mp4", Volume: 0.8, Status: catalog.FeedStatusReady}
}

func newTestAnalyzer(extractor *fakeExtractor, feeds ...*catalog.Feed) *Analyzer {
	src := fakeFeeds{}
	for _, f := range feeds {
		src[f.ID] = f
	}
	return NewAnalyzer(src, extractor, 5*time.Second, nil)
}

func TestSyncAnalysis_DetectsOffsets(t *testing.T) {
	base := pattern(7, 2000)
	late := append(constant(0, 150), base[:1850]...) // camera B heard everything 1.5s later
	early := base[120:]                               // camera C started 1.2s into the show

	x := &fakeExtractor{frames: map[string][]float64{
		"/media/a.mp4": base,
		"/media/b.mp4": late,
		"/media/c.mp4": early,
	}}
	a := newTestAnalyzer(x, feed("a"), feed("b"), feed("c"))

	report, err := a.SyncAnalysis(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("SyncAnalysis() error = %v", err)
	}

	if report.ReferenceFeedID != "a" || report.Offsets["a"] != 0 {
		t.Errorf("reference = %s offset %v", report.ReferenceFeedID, report.Offsets["a"])
	}
	if got := report.Offsets["b"]; math.Abs(got-(-1.5)) > 1e-9 {
		t.Errorf("offset b = %v, want -1.5", got)
	}
	if got := report.Offsets["c"]; math.Abs(got-1.2) > 1e-9 {
		t.Errorf("offset c = %v, want 1.2", got)
	}
	if report.Confidence < 0.99 || report.Confidence > 1 {
		t.Errorf("confidence = %v, want close to 1", report.Confidence)
	}
	if len(report.Results) != 3 || report.Results[1].FeedID != "b" {
		t.Errorf("results = %+v", report.Results)
	}
}

func TestSyncAnalysis_ConfidenceIsWeakestMatch(t *testing.T) {
	x := &fakeExtractor{frames: map[string][]float64{
		"/media/a.mp4": pattern(1, 1000),
		"/media/b.mp4": pattern(1, 1000),
		"/media/c.mp4": pattern(99, 1000), // unrelated recording
	}}
	a := newTestAnalyzer(x, feed("a"), feed("b"), feed("c"))

	report, err := a.SyncAnalysis(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("SyncAnalysis() error = %v", err)
	}
	var cConf float64
	for _, r := range report.Results {
		if r.FeedID == "c" {
			cConf = r.Confidence
		}
	}
	if report.Confidence != cConf {
		t.Errorf("report confidence = %v, want weakest %v", report.Confidence, cConf)
	}
	if cConf >= 0.9 {
		t.Errorf("unrelated feed confidence = %v, want low", cConf)
	}
}

func TestSyncAnalysis_SingleFeed(t *testing.T) {
	x := &fakeExtractor{frames: map[string][]float64{"/media/a.mp4": pattern(3, 200)}}
	a := newTestAnalyzer(x, feed("a"))

	report, err := a.SyncAnalysis(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("SyncAnalysis() error = %v", err)
	}
	if report.Confidence != 1 || len(report.Offsets) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestSyncAnalysis_DoesNotTouchFeeds(t *testing.T) {
	base := pattern(5, 600)
	b := feed("b")
	b.OffsetSeconds = 0.25
	x := &fakeExtractor{frames: map[string][]float64{
		"/media/a.mp4": base,
		"/media/b.mp4": base[50:],
	}}
	a := newTestAnalyzer(x, feed("a"), b)

	if _, err := a.SyncAnalysis(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("SyncAnalysis() error = %v", err)
	}
	if b.OffsetSeconds != 0.25 {
		t.Errorf("offset_seconds changed to %v", b.OffsetSeconds)
	}
}

func TestAnalyzer_Errors(t *testing.T) {
	noMedia := &catalog.Feed{ID: "bare", Name: "bare", Volume: 1}
	x := &fakeExtractor{frames: map[string][]float64{"/media/a.mp4": pattern(1, 100)}}
	a := newTestAnalyzer(x, feed("a"), feed("silent"), noMedia)

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"empty", nil, catalog.ErrValidation},
		{"duplicate", []string{"a", "a"}, catalog.ErrValidation},
		{"unknown", []string{"a", "ghost"}, catalog.ErrNotFound},
		{"no media", []string{"a", "bare"}, catalog.ErrValidation},
		{"extraction fails", []string{"a", "silent"}, catalog.ErrUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.SyncAnalysis(context.Background(), tt.ids); !errors.Is(err, tt.want) {
				t.Errorf("SyncAnalysis() error = %v, want %v", err, tt.want)
			}
			if _, err := a.Optimize(context.Background(), tt.ids, "", true, false); !errors.Is(err, tt.want) {
				t.Errorf("Optimize() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOptimize_NormalizeMatchesMasterLevel(t *testing.T) {
	x := &fakeExtractor{frames: map[string][]float64{
		"/media/loud.mp4":  constant(0.5, 300),
		"/media/quiet.mp4": constant(0.25, 300),
	}}
	a := newTestAnalyzer(x, feed("loud"), feed("quiet"))

	rec, err := a.Optimize(context.Background(), []string{"loud", "quiet"}, "quiet", true, true)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if rec.MasterFeedID != "quiet" || rec.Settings.MasterFeedID != "quiet" {
		t.Errorf("master = %s", rec.MasterFeedID)
	}
	if g := rec.Gains["loud"]; math.Abs(g-0.5) > 0.01 {
		t.Errorf("gain loud = %v, want 0.5", g)
	}
	if g := rec.Gains["quiet"]; g != 1 {
		t.Errorf("gain quiet = %v, want 1", g)
	}
	if len(rec.Filters) != 2 || rec.Filters[0] != "loudnorm=I=-16:TP=-1.5:LRA=11" || rec.Filters[1] != "afftdn=nf=-25" {
		t.Errorf("filters = %v", rec.Filters)
	}
	if l := rec.LevelsDBFS["loud"]; math.Abs(l-(-6.02)) > 0.05 {
		t.Errorf("loud level = %v dBFS, want about -6", l)
	}
}

func TestOptimize_GainsNeverExceedOne(t *testing.T) {
	x := &fakeExtractor{frames: map[string][]float64{
		"/media/loud.mp4":  constant(0.8, 100),
		"/media/quiet.mp4": constant(0.1, 100),
	}}
	a := newTestAnalyzer(x, feed("loud"), feed("quiet"))

	rec, err := a.Optimize(context.Background(), []string{"quiet", "loud"}, "loud", true, false)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	for id, g := range rec.Gains {
		if g < 0 || g > 1 {
			t.Errorf("gain %s = %v outside [0,1]", id, g)
		}
	}
}

func TestOptimize_WithoutNormalizeSkipsExtraction(t *testing.T) {
	x := &fakeExtractor{err: errors.New("should not run")}
	a := newTestAnalyzer(x, feed("a"), feed("b"))

	rec, err := a.Optimize(context.Background(), []string{"a", "b"}, "", false, false)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}
	if rec.MasterFeedID != "a" {
		t.Errorf("default master = %s, want first feed", rec.MasterFeedID)
	}
	if rec.Gains["b"] != 0.8 || len(rec.Filters) != 0 || x.calls.Load() != 0 {
		t.Errorf("rec = %+v, extractor calls = %d", rec, x.calls.Load())
	}

	if _, err := a.Optimize(context.Background(), []string{"a"}, "b", false, false); !errors.Is(err, catalog.ErrValidation) {
		t.Errorf("master outside feed set error = %v, want ErrValidation", err)
	}
}
