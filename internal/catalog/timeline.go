package catalog

import "fmt"

const JobKindTimeline = "timeline"

// TimelineClip places one feed on a project's cut timeline. TrimStart and
// TrimEnd select the part of the feed's media to play; unset means the
// start and the end of the media.
type TimelineClip struct {
	FeedID        string   `json:"feed_id"`
	TimelineStart float64  `json:"timeline_start"`
	TrimStart     *float64 `json:"trim_start"`
	TrimEnd       *float64 `json:"trim_end"`
}

// Validate checks the clip's own fields. i is its position in the project,
// used in messages.
func (c TimelineClip) Validate(i int) error {
	if c.FeedID == "" {
		return fmt.Errorf("%w: clip %d has no feed_id", ErrValidation, i)
	}
	if !finite(c.TimelineStart) || c.TimelineStart < 0 {
		return fmt.Errorf("%w: clip %d timeline_start must be a non-negative number", ErrValidation, i)
	}
	for _, t := range []struct {
		name string
		v    *float64
	}{{"trim_start", c.TrimStart}, {"trim_end", c.TrimEnd}} {
		if t.v != nil && (!finite(*t.v) || *t.v < 0) {
			return fmt.Errorf("%w: clip %d %s must be a non-negative number", ErrValidation, i, t.name)
		}
	}
	if c.TrimStart != nil && c.TrimEnd != nil && *c.TrimEnd <= *c.TrimStart {
		return fmt.Errorf("%w: clip %d trim_end must be greater than trim_start", ErrValidation, i)
	}
	return nil
}

// TimelinePlan is a resolved cut timeline: segments in playback order, each
// scaled to the canvas, with black and silence filling any gap between
// them.
type TimelinePlan struct {
	Format   string            `json:"format"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Segments []TimelineSegment `json:"segments"`
	Audio    AudioSettings     `json:"audio"`
}

// TimelineSegment plays Length seconds of Path from SourceStart, starting
// at TimelineStart on the output.
type TimelineSegment struct {
	FeedID        string  `json:"feed_id"`
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SourceStart   float64 `json:"source_start"`
	Length        float64 `json:"length"`
	TimelineStart float64 `json:"timeline_start"`
	Volume        float64 `json:"volume"`
}

// End is where the segment stops on the output timeline.
func (s TimelineSegment) End() float64 {
	return s.TimelineStart + s.Length
}

// Length is the duration of the whole timeline.
func (p *TimelinePlan) Length() float64 {
	if len(p.Segments) == 0 {
		return 0
	}
	return p.Segments[len(p.Segments)-1].End()
}
