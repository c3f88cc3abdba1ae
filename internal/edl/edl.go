// Package edl writes CMX 3600 edit decision lists for project timelines.
package edl

import (
	"fmt"
	"math"
	"strings"
)

// DefaultFrameRate is used when a caller passes no usable rate.
const DefaultFrameRate = 30.0

// Event is one cut on the record timeline. Times are in seconds.
type Event struct {
	Name      string
	Path      string
	SourceIn  float64
	SourceOut float64
	RecordIn  float64
}

func (e Event) recordOut() float64 {
	return e.RecordIn + e.SourceOut - e.SourceIn
}

// Generate renders events in order. Each event carries both picture and
// sound, and keeps its own record in point so gaps survive the export.
func Generate(title string, events []Event, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}
	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, e := range events {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V",
				Timecode(e.SourceIn, fps), Timecode(e.SourceOut, fps),
				Timecode(e.RecordIn, fps), Timecode(e.recordOut(), fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", e.Name),
			fmt.Sprintf("* MEDIA PATH:  %s", e.Path),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// Timecode formats seconds as HH:MM:SS:FF at a whole frame rate.
func Timecode(seconds float64, fps int) string {
	if seconds < 0 {
		seconds = 0
	}
	totalFrames := int(math.Round(seconds * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", totalMinutes/60, totalMinutes%60, secs, frames)
}
