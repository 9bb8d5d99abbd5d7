//go:build govips && cgo

package transform

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, step Step) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return Output{}, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if err := checkPixelLimit(img.Width(), img.Height(), step.MaxPixels); err != nil {
		return Output{}, err
	}

	format, err := outputFormat(step.Format, govipsFormatName(img.Format()))
	if err != nil {
		return Output{}, err
	}

	switch step.Action {
	case ActionResize:
		err = applyGovipsResize(img, step.Width, step.Height, step.Fit)
	case ActionCompress, ActionConvert:
	default:
		return Output{}, fmt.Errorf("%w: %q", ErrInvalidAction, step.Action)
	}
	if err != nil {
		return Output{}, err
	}

	data, err := exportGovipsImage(img, format, step)
	if err != nil {
		return Output{}, err
	}

	return Output{Data: data, Format: format, Width: img.Width(), Height: img.Height()}, nil
}

func applyGovipsResize(img *vips.ImageRef, width, height int, fit Fit) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resize requires width and height > 0")
	}
	if img.Width() <= 0 || img.Height() <= 0 {
		return fmt.Errorf("source image has invalid dimensions")
	}

	w, h := targetDimensions(img.Width(), img.Height(), width, height, fit)
	hScale := float64(w) / float64(img.Width())
	vScale := float64(h) / float64(img.Height())

	if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func govipsFormatName(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeAVIF:
		return "avif"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypePNG:
		return "png"
	default:
		return "png"
	}
}

func exportGovipsImage(img *vips.ImageRef, format Format, step Step) ([]byte, error) {
	quality := defaultQuality(format, step.Quality)
	compress := step.Action == ActionCompress

	switch format {
	case FormatJPEG:
		if img.HasAlpha() {
			if err := img.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, fmt.Errorf("flatten alpha: %w", err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		if compress {
			params.OptimizeCoding = true
			params.TrellisQuant = true
			params.OvershootDeringing = true
			params.OptimizeScans = true
			params.Interlace = true
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case FormatPNG:
		params := vips.NewPngExportParams()
		if compress {
			params.Compression = 9
		}
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case FormatWebP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	case FormatAVIF:
		params := vips.NewAvifExportParams()
		params.Quality = quality
		data, _, err := img.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
		return data, nil
	case FormatGIF:
		data, _, err := img.ExportGIF(vips.NewGifExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
