package transform

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	MinQuality = 1
	MaxQuality = 100
	// DefaultQuality applies when a caller does not choose a quality.
	DefaultQuality = 80
)

// ClampQuality pins q into [MinQuality, MaxQuality]. Out of range values are
// never rejected.
func ClampQuality(q int) int {
	return clamp(q, MinQuality, MaxQuality)
}

// Fit selects how an image is scaled into a target box.
type Fit int

const (
	// FitContain scales the image to the largest size that fits inside the
	// box while preserving aspect ratio. Nothing is cropped.
	FitContain Fit = iota
	// FitFill stretches the image to exactly the box dimensions.
	FitFill
)

// FitFromAspectLock maps the maintainAspectRatio flag onto a Fit.
func FitFromAspectLock(maintainAspectRatio bool) Fit {
	if maintainAspectRatio {
		return FitContain
	}
	return FitFill
}

func (f Fit) String() string {
	switch f {
	case FitContain:
		return "contain"
	case FitFill:
		return "fill"
	default:
		return fmt.Sprintf("fit(%d)", int(f))
	}
}

// PageRange is a 1-based inclusive page interval.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ValidFor reports whether the range lies inside a document of pageCount
// pages as supplied, without clamping.
func (r PageRange) ValidFor(pageCount int) bool {
	return r.Start >= 1 && r.Start <= r.End && r.End <= pageCount
}

func (r PageRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParsePageRange reads "N" or "N-M". The result is not checked against any
// document.
func ParsePageRange(s string) (PageRange, error) {
	startText, endText, isRange := strings.Cut(strings.TrimSpace(s), "-")
	start, err := strconv.Atoi(strings.TrimSpace(startText))
	if err != nil {
		return PageRange{}, fmt.Errorf("%w: page range %q", ErrInvalidParams, s)
	}
	if !isRange {
		return PageRange{Start: start, End: start}, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(endText))
	if err != nil {
		return PageRange{}, fmt.Errorf("%w: page range %q", ErrInvalidParams, s)
	}
	return PageRange{Start: start, End: end}, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
