package catalog

import (
	"fmt"
	"sort"
	"strings"
)

const (
	FormatLandscape1080p = "landscape_1080p"
	FormatPortrait1080p  = "portrait_1080p"
	FormatSquare1080     = "square_1080"

	DefaultFormat = FormatLandscape1080p
)

// Preset is a fixed output resolution.
type Preset struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AspectRatio string `json:"aspect_ratio"`
}

var presets = map[string]Preset{
	FormatLandscape1080p: {Name: FormatLandscape1080p, Width: 1920, Height: 1080, AspectRatio: "16:9"},
	FormatPortrait1080p:  {Name: FormatPortrait1080p, Width: 1080, Height: 1920, AspectRatio: "9:16"},
	FormatSquare1080:     {Name: FormatSquare1080, Width: 1080, Height: 1080, AspectRatio: "1:1"},
}

// LookupPreset returns the preset called name, or a validation error
// listing the recognized ones.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: unknown format %q (expected one of %s)",
			ErrValidation, name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames returns the recognized format names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RenderPlan is a fully resolved composition: every path, trim window and
// pixel rectangle the renderer needs, with no further lookups.
type RenderPlan struct {
	Format string        `json:"format"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Inputs []PlanInput   `json:"inputs"`
	Slots  []PlanSlot    `json:"slots"`
	Audio  AudioSettings `json:"audio"`
}

// PlanInput is one feed's media, in project feed order.
type PlanInput struct {
	FeedID          string   `json:"feed_id"`
	Path            string   `json:"path"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	TrimStart       *float64 `json:"trim_start,omitempty"`
	TrimEnd         *float64 `json:"trim_end,omitempty"`
	OffsetSeconds   float64  `json:"offset_seconds"`
	Volume          float64  `json:"volume"`
}

// Window returns where to start reading the input, how much of it to read
// (nil when it runs to the end of unknown-length media) and how long to
// delay it on the composed timeline. A positive offset delays the feed; a
// negative offset drops its head instead.
func (in PlanInput) Window() (start float64, length *float64, delay float64) {
	if in.TrimStart != nil {
		start = *in.TrimStart
	}
	end := in.TrimEnd
	if end == nil {
		end = in.DurationSeconds
	}
	if in.OffsetSeconds >= 0 {
		delay = in.OffsetSeconds
	} else {
		start -= in.OffsetSeconds
	}
	if end != nil {
		l := *end - start
		length = &l
	}
	return start, length, delay
}

// PlanSlot places Inputs[Input] on the canvas. Slots are ordered bottom to
// top.
type PlanSlot struct {
	FeedID string `json:"feed_id"`
	Input  int    `json:"input"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	ZIndex int    `json:"z_index"`
}

// Length returns the duration of the composed timeline, or nil when some
// input has an unknown length.
func (p *RenderPlan) Length() *float64 {
	var total float64
	for _, in := range p.Inputs {
		_, l, delay := in.Window()
		if l == nil {
			return nil
		}
		if t := delay + *l; t > total {
			total = t
		}
	}
	return &total
}

// InputIndex returns the index of feedID in Inputs, or -1.
func (p *RenderPlan) InputIndex(feedID string) int {
	for i, in := range p.Inputs {
		if in.FeedID == feedID {
			return i
		}
	}
	return -1
}
