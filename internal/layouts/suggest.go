package layouts

import (
	"fmt"
	"math"

	"github.com/concertview/concertview/internal/catalog"
)

const (
	StyleGrid = "grid"
	StylePIP  = "pip"

	MaxSuggestFeeds = 64

	pipInsetSize   = 0.25
	pipInsetMargin = 0.02
)

// Styles lists the recognized suggestion styles.
var Styles = []string{StyleGrid, StylePIP}

// Suggest builds a candidate layout for feedCount feeds. It stores nothing;
// the caller decides whether to persist the result. Slots reference feedIDs
// in order when given, otherwise placeholder ids feed_0..feed_{n-1}.
func Suggest(feedCount int, style string, feedIDs []string) (*catalog.Layout, string, error) {
	if feedCount < 1 || feedCount > MaxSuggestFeeds {
		return nil, "", fmt.Errorf("%w: feed_count must be between 1 and %d", catalog.ErrValidation, MaxSuggestFeeds)
	}
	if len(feedIDs) > 0 && len(feedIDs) != feedCount {
		return nil, "", fmt.Errorf("%w: got %d feed_ids for feed_count %d", catalog.ErrValidation, len(feedIDs), feedCount)
	}

	ids := feedIDs
	if len(ids) == 0 {
		ids = make([]string, feedCount)
		for i := range ids {
			ids[i] = fmt.Sprintf("feed_%d", i)
		}
	}

	var (
		slots []catalog.Slot
		desc  string
	)
	switch style {
	case StyleGrid:
		slots, desc = grid(ids)
	case StylePIP:
		slots, desc = pip(ids)
	default:
		return nil, "", fmt.Errorf("%w: unknown style %q (expected grid or pip)", catalog.ErrValidation, style)
	}

	return &catalog.Layout{
		Name:  fmt.Sprintf("%s (%d feeds)", style, feedCount),
		Slots: slots,
	}, desc, nil
}

// grid fills the smallest near-square grid left to right, top to bottom.
func grid(ids []string) ([]catalog.Slot, string) {
	n := len(ids)
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols

	w := 1.0 / float64(cols)
	h := 1.0 / float64(rows)
	slots := make([]catalog.Slot, n)
	for i, id := range ids {
		slots[i] = catalog.Slot{
			FeedID: id,
			X:      float64(i%cols) / float64(cols),
			Y:      float64(i/cols) / float64(rows),
			Width:  w,
			Height: h,
		}
	}
	return slots, fmt.Sprintf("%dx%d grid with equal cells for %d feeds", cols, rows, n)
}

// pip puts the first feed on the full canvas and stacks the rest as small
// insets down the right edge, as many as fit.
func pip(ids []string) ([]catalog.Slot, string) {
	slots := []catalog.Slot{{FeedID: ids[0], Width: 1, Height: 1}}

	fit := (1 - pipInsetMargin) / (pipInsetSize + pipInsetMargin)
	maxInsets := int(fit)
	for i, id := range ids[1:] {
		if i >= maxInsets {
			break
		}
		slots = append(slots, catalog.Slot{
			FeedID: id,
			X:      1 - pipInsetSize - pipInsetMargin,
			Y:      pipInsetMargin + float64(i)*(pipInsetSize+pipInsetMargin),
			Width:  pipInsetSize,
			Height: pipInsetSize,
			ZIndex: i + 1,
		})
	}

	desc := fmt.Sprintf("%s full screen with %d picture-in-picture insets", ids[0], len(slots)-1)
	if dropped := len(ids) - len(slots); dropped > 0 {
		desc += fmt.Sprintf("; %d feeds do not fit", dropped)
	}
	return slots, desc
}
