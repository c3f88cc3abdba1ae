package compose

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/edl"
)

// clipOverlapTolerance absorbs float noise where one clip ends and the
// next begins.
const clipOverlapTolerance = 0.001

// ResolveTimeline turns a project's clips into a timeline plan, ordered by
// timeline_start. Clips may leave gaps but must not overlap. feedPaths
// follows the same rules as in Resolve.
func (s *Service) ResolveTimeline(ctx context.Context, project *catalog.Project, feedPaths []string) (*catalog.TimelinePlan, error) {
	p := *project
	if p.Format == "" {
		p.Format = catalog.DefaultFormat
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Clips) == 0 {
		return nil, fmt.Errorf("%w: project has no clips on its timeline", catalog.ErrValidation)
	}
	preset, err := catalog.LookupPreset(p.Format)
	if err != nil {
		return nil, err
	}
	if len(feedPaths) > 0 && len(feedPaths) != len(p.FeedIDs) {
		return nil, fmt.Errorf("%w: got %d feed paths for %d feeds", catalog.ErrValidation, len(feedPaths), len(p.FeedIDs))
	}

	feeds := make(map[string]*catalog.Feed)
	paths := make(map[string]string)
	var missing []string
	for _, c := range p.Clips {
		if _, done := feeds[c.FeedID]; done || slices.Contains(missing, c.FeedID) {
			continue
		}
		f, err := s.repo.GetFeed(ctx, c.FeedID)
		if err != nil {
			return nil, fmt.Errorf("get feed: %w", err)
		}
		if f == nil {
			missing = append(missing, c.FeedID)
			continue
		}
		feeds[c.FeedID] = f
		paths[c.FeedID] = f.FilePath
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: clips use feeds missing from the registry: %s", catalog.ErrReference, strings.Join(missing, ", "))
	}
	for i, id := range p.FeedIDs {
		if _, used := feeds[id]; !used || len(feedPaths) == 0 {
			continue
		}
		checked, err := catalog.CheckMediaFile(fmt.Sprintf("feed path for %s", id), feedPaths[i])
		if err != nil {
			return nil, err
		}
		paths[id] = checked
	}

	clips := make([]catalog.TimelineClip, len(p.Clips))
	copy(clips, p.Clips)
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].TimelineStart < clips[j].TimelineStart })

	plan := &catalog.TimelinePlan{
		Format: preset.Name,
		Width:  preset.Width,
		Height: preset.Height,
		Audio:  p.Audio,
	}
	for i, c := range clips {
		f := feeds[c.FeedID]
		if paths[c.FeedID] == "" {
			return nil, fmt.Errorf("%w: feed %s has no media attached", catalog.ErrValidation, c.FeedID)
		}
		start, length, err := clipSpan(c, f)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			if prev := plan.Segments[i-1]; c.TimelineStart < prev.End()-clipOverlapTolerance {
				return nil, fmt.Errorf("%w: clip of feed %s at %.3fs overlaps the clip of feed %s ending at %.3fs",
					catalog.ErrValidation, c.FeedID, c.TimelineStart, prev.FeedID, prev.End())
			}
		}
		plan.Segments = append(plan.Segments, catalog.TimelineSegment{
			FeedID:        c.FeedID,
			Name:          f.Name,
			Path:          paths[c.FeedID],
			SourceStart:   start,
			Length:        length,
			TimelineStart: c.TimelineStart,
			Volume:        f.Volume,
		})
	}
	return plan, nil
}

// clipSpan picks the part of the feed's media a clip plays. An open trim
// end runs to the end of the media, which needs a known duration.
func clipSpan(c catalog.TimelineClip, f *catalog.Feed) (start, length float64, err error) {
	if c.TrimStart != nil {
		start = *c.TrimStart
	}
	var end float64
	switch {
	case c.TrimEnd != nil:
		end = *c.TrimEnd
		if f.DurationSeconds != nil {
			end = min(end, *f.DurationSeconds)
		}
	case f.DurationSeconds != nil:
		end = *f.DurationSeconds
	default:
		return 0, 0, fmt.Errorf("%w: clip of feed %s needs trim_end because the media duration is unknown", catalog.ErrValidation, c.FeedID)
	}
	if end-start <= 0 {
		return 0, 0, fmt.Errorf("%w: clip of feed %s starts at %.3fs, past the end of its media", catalog.ErrValidation, c.FeedID, start)
	}
	return start, end - start, nil
}

// TimelinePlan loads a stored project and resolves its clips.
func (s *Service) TimelinePlan(ctx context.Context, projectID string, feedPaths []string) (*catalog.Project, *catalog.TimelinePlan, error) {
	p, err := s.Get(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	plan, err := s.ResolveTimeline(ctx, p, feedPaths)
	if err != nil {
		return nil, nil, err
	}
	return p, plan, nil
}

// EDL exports a stored project's timeline as a CMX 3600 edit decision
// list at the given frame rate.
func (s *Service) EDL(ctx context.Context, projectID string, frameRate float64) (string, error) {
	p, plan, err := s.TimelinePlan(ctx, projectID, nil)
	if err != nil {
		return "", err
	}
	events := make([]edl.Event, 0, len(plan.Segments))
	for _, seg := range plan.Segments {
		events = append(events, edl.Event{
			Name:      seg.Name,
			Path:      seg.Path,
			SourceIn:  seg.SourceStart,
			SourceOut: seg.SourceStart + seg.Length,
			RecordIn:  seg.TimelineStart,
		})
	}
	return edl.Generate(p.Name, events, frameRate), nil
}
