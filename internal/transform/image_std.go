package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(ctx context.Context, input []byte, step Step) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return Output{}, fmt.Errorf("decode source image: %w", err)
	}
	if err := checkPixelLimit(cfg.Width, cfg.Height, step.MaxPixels); err != nil {
		return Output{}, err
	}

	src, srcFormat, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Output{}, fmt.Errorf("decode source image: %w", err)
	}

	format, err := outputFormat(step.Format, srcFormat)
	if err != nil {
		return Output{}, fmt.Errorf("source format %q: %w", srcFormat, err)
	}

	out := src
	switch step.Action {
	case ActionResize:
		out, err = scaleImage(src, step.Width, step.Height, step.Fit)
		if err != nil {
			return Output{}, err
		}
	case ActionCompress, ActionConvert:
	default:
		return Output{}, fmt.Errorf("%w: %q", ErrInvalidAction, step.Action)
	}

	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	data, err := encodeImage(out, format, step)
	if err != nil {
		return Output{}, err
	}

	bounds := out.Bounds()
	return Output{Data: data, Format: format, Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

func scaleImage(src image.Image, width, height int, fit Fit) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("resize requires width and height > 0")
	}

	srcBounds := src.Bounds()
	if srcBounds.Dx() == 0 || srcBounds.Dy() == 0 {
		return nil, errors.New("source image has invalid dimensions")
	}

	w, h := targetDimensions(srcBounds.Dx(), srcBounds.Dy(), width, height, fit)
	if w == srcBounds.Dx() && h == srcBounds.Dy() {
		return cloneImage(src), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, draw.Src, nil)
	return dst, nil
}

func encodeImage(img image.Image, format Format, step Step) ([]byte, error) {
	var buf bytes.Buffer
	quality := defaultQuality(format, step.Quality)

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, flattenOpaque(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		level := png.DefaultCompression
		if step.Action == ActionCompress {
			level = png.BestCompression
		}
		encoder := png.Encoder{CompressionLevel: level}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatGIF:
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case FormatAVIF:
		opts := avif.Options{Quality: quality, QualityAlpha: quality, Speed: 8}
		if err := avif.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("encode avif: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return buf.Bytes(), nil
}

// flattenOpaque composites images with transparency onto white; JPEG has no
// alpha channel.
func flattenOpaque(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

func cloneImage(src image.Image) image.Image {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
