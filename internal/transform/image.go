package transform

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Action is the kind of work an image backend performs before re-encoding.
type Action string

const (
	ActionCompress Action = "compress"
	ActionResize   Action = "resize"
	ActionConvert  Action = "convert"
)

// Step describes one image transformation.
type Step struct {
	Action  Action
	Width   int
	Height  int
	Fit     Fit
	Format  Format // output format, empty keeps the source format
	Quality int    // 0 selects the encoder default
	// MaxPixels bounds width*height of the decoded source; 0 means no bound.
	MaxPixels int64
}

// Output is an encoded image produced by a backend.
type Output struct {
	Data   []byte
	Format Format
	Width  int
	Height int
}

type imageTransformer interface {
	Transform(ctx context.Context, input []byte, step Step) (Output, error)
}

// checkPixelLimit rejects sources larger than limit before their pixels are
// decoded. Backends call it with the dimensions read from the image header.
func checkPixelLimit(width, height int, limit int64) error {
	if limit > 0 && int64(width)*int64(height) > limit {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// outputFormat picks the encoder for a step: the requested format if any,
// otherwise the detected source format.
func outputFormat(requested Format, detected string) (Format, error) {
	if requested != "" {
		return requested, nil
	}
	f, err := ParseFormat(strings.ToLower(detected))
	if err != nil || f == FormatPDF {
		return "", ErrUnsupportedFormat
	}
	return f, nil
}

// targetDimensions computes output pixel dimensions for a resize.
func targetDimensions(srcW, srcH, boxW, boxH int, fit Fit) (int, int) {
	if fit == FitFill || srcW <= 0 || srcH <= 0 {
		return boxW, boxH
	}

	scale := math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
	w := clamp(int(math.Round(float64(srcW)*scale)), 1, boxW)
	h := clamp(int(math.Round(float64(srcH)*scale)), 1, boxH)
	return w, h
}

func defaultQuality(format Format, quality int) int {
	if quality > 0 {
		return ClampQuality(quality)
	}
	switch format {
	case FormatWebP:
		return 75
	case FormatAVIF:
		return 60
	default:
		return 80
	}
}
