package compose

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/concertview/concertview/internal/catalog"
)

// Resolve turns a project into a render plan. Every slot must name a feed
// that is both in the project and in the registry; otherwise it fails with
// catalog.ErrReference naming the dangling ids. feedPaths, when given, is
// aligned with project.FeedIDs and overrides each feed's stored media path.
func (s *Service) Resolve(ctx context.Context, project *catalog.Project, feedPaths []string) (*catalog.RenderPlan, error) {
	p := *project
	if p.Format == "" {
		p.Format = catalog.DefaultFormat
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	preset, err := catalog.LookupPreset(p.Format)
	if err != nil {
		return nil, err
	}
	if len(feedPaths) > 0 && len(feedPaths) != len(p.FeedIDs) {
		return nil, fmt.Errorf("%w: got %d feed paths for %d feeds", catalog.ErrValidation, len(feedPaths), len(p.FeedIDs))
	}

	layout, err := s.repo.GetLayout(ctx, p.LayoutID)
	if err != nil {
		return nil, fmt.Errorf("get layout: %w", err)
	}
	if layout == nil {
		return nil, fmt.Errorf("%w: layout %s does not exist", catalog.ErrReference, p.LayoutID)
	}

	used := make(map[string]bool)
	for _, slot := range layout.Slots {
		used[slot.FeedID] = true
	}
	if m := p.Audio.MasterFeedID; m != "" {
		used[m] = true
	}

	feeds := make(map[string]*catalog.Feed, len(used))
	var outside, missing []string
	seen := make(map[string]bool)
	check := func(id string) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		if !p.HasFeed(id) {
			outside = append(outside, id)
			return nil
		}
		f, err := s.repo.GetFeed(ctx, id)
		if err != nil {
			return fmt.Errorf("get feed: %w", err)
		}
		if f == nil {
			missing = append(missing, id)
			return nil
		}
		feeds[id] = f
		return nil
	}
	for _, slot := range layout.Slots {
		if err := check(slot.FeedID); err != nil {
			return nil, err
		}
	}
	if m := p.Audio.MasterFeedID; m != "" {
		if err := check(m); err != nil {
			return nil, err
		}
	}
	if len(outside) > 0 || len(missing) > 0 {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, "missing from the registry: "+strings.Join(missing, ", "))
		}
		if len(outside) > 0 {
			parts = append(parts, "not in the project: "+strings.Join(outside, ", "))
		}
		return nil, fmt.Errorf("%w: layout %s has dangling feeds (%s)", catalog.ErrReference, layout.ID, strings.Join(parts, "; "))
	}

	plan := &catalog.RenderPlan{
		Format: preset.Name,
		Width:  preset.Width,
		Height: preset.Height,
		Audio:  p.Audio,
	}
	for i, id := range p.FeedIDs {
		f, ok := feeds[id]
		if !ok {
			continue
		}
		path := f.FilePath
		if len(feedPaths) > 0 {
			checked, err := catalog.CheckMediaFile(fmt.Sprintf("feed path for %s", id), feedPaths[i])
			if err != nil {
				return nil, err
			}
			path = checked
		}
		if path == "" {
			return nil, fmt.Errorf("%w: feed %s has no media attached", catalog.ErrValidation, id)
		}

		in := catalog.PlanInput{
			FeedID:          id,
			Path:            path,
			DurationSeconds: f.DurationSeconds,
			TrimStart:       f.TrimStart,
			TrimEnd:         f.TrimEnd,
			OffsetSeconds:   f.OffsetSeconds,
			Volume:          f.Volume,
		}
		if _, l, _ := in.Window(); l != nil && *l <= 0 {
			return nil, fmt.Errorf("%w: feed %s has nothing left to play after trim and offset", catalog.ErrValidation, id)
		}
		plan.Inputs = append(plan.Inputs, in)
	}

	slots := make([]catalog.Slot, len(layout.Slots))
	copy(slots, layout.Slots)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].ZIndex < slots[j].ZIndex })

	for _, slot := range slots {
		plan.Slots = append(plan.Slots, catalog.PlanSlot{
			FeedID: slot.FeedID,
			Input:  plan.InputIndex(slot.FeedID),
			X:      int(math.Round(slot.X * float64(preset.Width))),
			Y:      int(math.Round(slot.Y * float64(preset.Height))),
			Width:  evenPixels(slot.Width, preset.Width),
			Height: evenPixels(slot.Height, preset.Height),
			ZIndex: slot.ZIndex,
		})
	}
	return plan, nil
}

// evenPixels scales a normalized length to the canvas, rounded to an even
// size of at least 2 as yuv420p requires.
func evenPixels(v float64, size int) int {
	return max(2, 2*int(math.Round(v*float64(size)/2)))
}
