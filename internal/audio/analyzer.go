// Package audio measures feeds' soundtracks for sync offsets and level
// recommendations. Nothing here writes to the feed registry; results are
// advisory and applied by the caller with a feed update.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/logging"
	"github.com/concertview/concertview/internal/render"
)

// DefaultMaxLag bounds the offsets SyncAnalysis searches.
const DefaultMaxLag = 30 * time.Second

// FeedSource looks up feeds by id, failing with catalog.ErrNotFound.
type FeedSource interface {
	Get(ctx context.Context, id string) (*catalog.Feed, error)
}

type SyncResult struct {
	FeedID                string  `json:"feed_id"`
	DetectedOffsetSeconds float64 `json:"detected_offset_seconds"`
	Confidence            float64 `json:"confidence"`
}

// SyncReport gives, per feed, the offset_seconds that lines its audio up
// with the reference feed's.
type SyncReport struct {
	ReferenceFeedID string             `json:"reference_feed_id"`
	Offsets         map[string]float64 `json:"offsets"`
	Results         []SyncResult       `json:"results"`
	Confidence      float64            `json:"confidence"`
}

// Recommendation is a suggested mix. Gains are volumes in [0,1].
type Recommendation struct {
	MasterFeedID string                `json:"master_feed_id"`
	Gains        map[string]float64    `json:"gains"`
	LevelsDBFS   map[string]float64    `json:"levels_dbfs,omitempty"`
	Filters      []string              `json:"filters"`
	Settings     catalog.AudioSettings `json:"settings"`
}

type Analyzer struct {
	feeds     FeedSource
	extractor render.AudioExtractor
	maxLag    time.Duration
	logger    *slog.Logger
}

func NewAnalyzer(feeds FeedSource, extractor render.AudioExtractor, maxLag time.Duration, logger *slog.Logger) *Analyzer {
	if maxLag <= 0 {
		maxLag = DefaultMaxLag
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Analyzer{
		feeds:     feeds,
		extractor: extractor,
		maxLag:    maxLag,
		logger:    logging.WithComponent(logger, "audio"),
	}
}

// SyncAnalysis cross-correlates each feed's loudness envelope against the
// first feed's. The report confidence is the weakest match.
func (a *Analyzer) SyncAnalysis(ctx context.Context, feedIDs []string) (*SyncReport, error) {
	feeds, err := a.resolve(ctx, feedIDs)
	if err != nil {
		return nil, err
	}

	envs := make([]*envelope, len(feeds))
	for i, f := range feeds {
		if envs[i], err = a.measure(ctx, f); err != nil {
			return nil, err
		}
	}

	ref := envs[0].Frames()
	maxLag := int(a.maxLag.Seconds() * EnvelopeRate)
	report := &SyncReport{
		ReferenceFeedID: feeds[0].ID,
		Offsets:         map[string]float64{feeds[0].ID: 0},
		Results:         []SyncResult{{FeedID: feeds[0].ID, Confidence: 1}},
		Confidence:      1,
	}
	for i := 1; i < len(feeds); i++ {
		lag, score := align(ref, envs[i].Frames(), maxLag)
		offset := float64(lag) / EnvelopeRate
		score = math.Round(score*10000) / 10000

		report.Offsets[feeds[i].ID] = offset
		report.Results = append(report.Results, SyncResult{
			FeedID:                feeds[i].ID,
			DetectedOffsetSeconds: offset,
			Confidence:            score,
		})
		report.Confidence = min(report.Confidence, score)
	}

	a.logger.Info("sync analysis complete",
		"feeds", len(feeds),
		"reference_feed_id", report.ReferenceFeedID,
		"confidence", report.Confidence,
	)
	return report, nil
}

// Optimize recommends a master feed, per-feed volumes and post filters.
// With normalize set, each feed's volume is chosen so its level matches
// the master's. An empty masterFeedID selects the first feed.
func (a *Analyzer) Optimize(ctx context.Context, feedIDs []string, masterFeedID string, normalize, noiseReduction bool) (*Recommendation, error) {
	feeds, err := a.resolve(ctx, feedIDs)
	if err != nil {
		return nil, err
	}

	master := -1
	if masterFeedID == "" {
		master = 0
	}
	for i, f := range feeds {
		if f.ID == masterFeedID {
			master = i
		}
	}
	if master < 0 {
		return nil, fmt.Errorf("%w: master feed %s is not in feed_ids", catalog.ErrValidation, masterFeedID)
	}

	rec := &Recommendation{
		MasterFeedID: feeds[master].ID,
		Gains:        make(map[string]float64, len(feeds)),
		Filters:      []string{},
		Settings: catalog.AudioSettings{
			MasterFeedID:   feeds[master].ID,
			Normalize:      normalize,
			NoiseReduction: noiseReduction,
		},
	}

	if normalize {
		levels := make([]float64, len(feeds))
		for i, f := range feeds {
			env, err := a.measure(ctx, f)
			if err != nil {
				return nil, err
			}
			levels[i] = env.RMS()
		}

		rec.LevelsDBFS = make(map[string]float64, len(feeds))
		for i, f := range feeds {
			rec.Gains[f.ID] = matchGain(levels[master], levels[i])
			if levels[i] > 0 {
				rec.LevelsDBFS[f.ID] = math.Round(20*math.Log10(levels[i])*100) / 100
			}
		}
		rec.Filters = append(rec.Filters, render.LoudnormFilter)
	} else {
		for _, f := range feeds {
			rec.Gains[f.ID] = f.Volume
		}
	}
	if noiseReduction {
		rec.Filters = append(rec.Filters, render.DenoiseFilter)
	}
	return rec, nil
}

// matchGain is the volume that brings level to target, within [0,1].
// Silent feeds keep full volume.
func matchGain(target, level float64) float64 {
	if level <= 0 {
		return 1
	}
	g := target / level
	g = math.Max(0, math.Min(1, g))
	return math.Round(g*1000) / 1000
}

func (a *Analyzer) resolve(ctx context.Context, feedIDs []string) ([]*catalog.Feed, error) {
	if len(feedIDs) == 0 {
		return nil, fmt.Errorf("%w: feed_ids must not be empty", catalog.ErrValidation)
	}
	seen := make(map[string]bool, len(feedIDs))
	feeds := make([]*catalog.Feed, 0, len(feedIDs))
	for _, id := range feedIDs {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: feed_ids must not contain empty ids", catalog.ErrValidation)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: feed %s is listed twice", catalog.ErrValidation, id)
		}
		seen[id] = true

		f, err := a.feeds.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !f.HasMedia() {
			return nil, fmt.Errorf("%w: feed %s has no media attached", catalog.ErrValidation, id)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func (a *Analyzer) measure(ctx context.Context, f *catalog.Feed) (*envelope, error) {
	start := time.Now()
	env := newEnvelope()
	if err := a.extractor.ExtractPCM(ctx, f.FilePath, SampleRate, env); err != nil {
		return nil, fmt.Errorf("%w: extract audio for feed %s: %v", catalog.ErrUpstream, f.ID, err)
	}
	logging.WithFeedID(a.logger, f.ID).Debug("audio extracted",
		"frames", len(env.Frames()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return env, nil
}
