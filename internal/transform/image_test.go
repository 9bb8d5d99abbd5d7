package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeConfig(t *testing.T, data []byte) (image.Config, string) {
	t.Helper()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg, format
}

func TestCompressImageKeepsSourceFormat(t *testing.T) {
	svc := NewService(Options{})

	convertTo := func(f Format) []byte {
		res, err := svc.ConvertImage(context.Background(), buildTestPNG(t, 64, 48), f, 80)
		require.NoError(t, err)
		return res.File.Data
	}

	tests := []struct {
		name     string
		src      []byte
		want     Format
		wantMIME string
		// lossless encoders may exceed raw RGBA on noisy sources
		unbounded bool
	}{
		{name: "png", src: buildTestPNG(t, 64, 48), want: FormatPNG, wantMIME: "image/png"},
		{name: "jpeg", src: buildTestJPEG(t, 64, 48), want: FormatJPEG, wantMIME: "image/jpeg"},
		{name: "gif", src: buildTestGIF(t, 64, 48), want: FormatGIF, wantMIME: "image/gif"},
		{name: "webp", src: convertTo(FormatWebP), want: FormatWebP, wantMIME: "image/webp"},
		{name: "avif", src: convertTo(FormatAVIF), want: FormatAVIF, wantMIME: "image/avif", unbounded: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, quality := range []int{-5, 1, 80, 100, 500} {
				res, err := svc.CompressImage(context.Background(), tt.src, quality)
				require.NoError(t, err)

				assert.Equal(t, tt.want, res.Format)
				assert.Equal(t, tt.wantMIME, res.File.MIMEType)
				assert.Equal(t, len(res.File.Data), res.Size())
				if !tt.unbounded {
					assert.LessOrEqual(t, res.Size(), 64*48*4, "larger than raw RGBA")
				}

				cfg, format := decodeConfig(t, res.File.Data)
				assert.Equal(t, string(tt.want), format)
				assert.Equal(t, 64, cfg.Width)
				assert.Equal(t, 48, cfg.Height)
			}
		})
	}
}

func TestCompressImageTwiceKeepsFormat(t *testing.T) {
	svc := NewService(Options{})

	first, err := svc.CompressImage(context.Background(), buildTestJPEG(t, 80, 60), 80)
	require.NoError(t, err)
	second, err := svc.CompressImage(context.Background(), first.File.Data, 80)
	require.NoError(t, err)

	assert.Equal(t, first.Format, second.Format)
	assert.Equal(t, first.File.MIMEType, second.File.MIMEType)
}

func TestCompressImageRejectsCorruptInput(t *testing.T) {
	svc := NewService(Options{})

	_, err := svc.CompressImage(context.Background(), []byte("definitely not an image"), 80)
	require.Error(t, err)

	var opErr *Error
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpCompressImage, opErr.Op)
	assert.Equal(t, "compression failed", err.Error())
	assert.NotNil(t, errors.Unwrap(err))
}

func TestCompressImageRejectsOversizedImage(t *testing.T) {
	svc := NewService(Options{MaxImagePixels: 100})

	_, err := svc.CompressImage(context.Background(), buildTestPNG(t, 20, 20), 80)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestStdlibTransformerChecksPixelsBeforeDecode(t *testing.T) {
	src := buildTestPNG(t, 20, 20)

	_, err := stdlibTransformer{}.Transform(context.Background(), src, Step{Action: ActionCompress, MaxPixels: 399})
	assert.ErrorIs(t, err, ErrImageTooLarge)

	out, err := stdlibTransformer{}.Transform(context.Background(), src, Step{Action: ActionCompress, MaxPixels: 400})
	require.NoError(t, err)
	assert.Equal(t, 20, out.Width)

	_, err = stdlibTransformer{}.Transform(context.Background(), src, Step{Action: ActionCompress})
	assert.NoError(t, err, "zero means unbounded")
}

func TestCheckPixelLimit(t *testing.T) {
	assert.NoError(t, checkPixelLimit(100, 100, 0))
	assert.NoError(t, checkPixelLimit(100, 100, 10_000))
	assert.ErrorIs(t, checkPixelLimit(100, 101, 10_000), ErrImageTooLarge)
	assert.ErrorIs(t, checkPixelLimit(1<<20, 1<<20, 1<<39), ErrImageTooLarge, "no int overflow")
}

func TestResizeImageContainFitsInsideBox(t *testing.T) {
	svc := NewService(Options{})

	tests := []struct {
		name         string
		srcW, srcH   int
		boxW, boxH   int
		wantW, wantH int
	}{
		{"downscale wide", 240, 120, 100, 100, 100, 50},
		{"downscale tall", 120, 240, 100, 100, 50, 100},
		{"upscale to box", 40, 20, 200, 200, 200, 100},
		{"same size", 64, 64, 64, 64, 64, 64},
		{"thin sliver keeps one pixel", 1000, 2, 10, 10, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.ResizeImage(context.Background(), buildTestPNG(t, tt.srcW, tt.srcH), tt.boxW, tt.boxH, FitContain)
			require.NoError(t, err)

			cfg, format := decodeConfig(t, res.File.Data)
			assert.Equal(t, "png", format)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
			assert.LessOrEqual(t, cfg.Width, tt.boxW)
			assert.LessOrEqual(t, cfg.Height, tt.boxH)
			assert.Equal(t, cfg.Width, res.Width)
			assert.Equal(t, cfg.Height, res.Height)
		})
	}
}

func TestResizeImageFillMatchesBoxExactly(t *testing.T) {
	svc := NewService(Options{})

	res, err := svc.ResizeImage(context.Background(), buildTestJPEG(t, 240, 120), 90, 170, FitFill)
	require.NoError(t, err)

	cfg, format := decodeConfig(t, res.File.Data)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, "image/jpeg", res.File.MIMEType)
	assert.Equal(t, 90, cfg.Width)
	assert.Equal(t, 170, cfg.Height)
}

func TestResizeImageRejectsNonPositiveDimensions(t *testing.T) {
	svc := NewService(Options{})
	src := buildTestPNG(t, 10, 10)

	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-1, -1}} {
		_, err := svc.ResizeImage(context.Background(), src, dims[0], dims[1], FitFill)
		assert.ErrorIs(t, err, ErrInvalidParams)
		assert.True(t, IsInvalidParams(err))
	}
}

func TestResizeImageReportsResizeFailure(t *testing.T) {
	svc := NewService(Options{})

	_, err := svc.ResizeImage(context.Background(), []byte{0x89, 'P', 'N', 'G'}, 10, 10, FitContain)
	require.Error(t, err)
	assert.Equal(t, "resize failed", err.Error())
}

func TestConvertImageDeclaresTargetFormat(t *testing.T) {
	svc := NewService(Options{})
	sources := map[string][]byte{
		"png":  buildTestPNG(t, 32, 24),
		"jpeg": buildTestJPEG(t, 32, 24),
		"gif":  buildTestGIF(t, 32, 24),
	}

	for srcName, src := range sources {
		for _, target := range ConvertTargets {
			t.Run(srcName+"->"+string(target), func(t *testing.T) {
				res, err := svc.ConvertImage(context.Background(), src, target, 70)
				require.NoError(t, err)

				assert.Equal(t, target, res.Format)
				assert.Equal(t, target.MIMEType(), res.File.MIMEType)

				cfg, format := decodeConfig(t, res.File.Data)
				assert.Equal(t, string(target), format)
				assert.Equal(t, 32, cfg.Width)
				assert.Equal(t, 24, cfg.Height)
			})
		}
	}
}

func TestConvertImageAcceptsJPGAlias(t *testing.T) {
	svc := NewService(Options{})

	res, err := svc.ConvertImage(context.Background(), buildTestPNG(t, 8, 8), "jpg", 50)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, res.Format)
}

func TestConvertImageRejectsUnknownTarget(t *testing.T) {
	svc := NewService(Options{})

	for _, target := range []Format{"bmp", "gif", "pdf", ""} {
		_, err := svc.ConvertImage(context.Background(), buildTestPNG(t, 8, 8), target, 50)
		assert.ErrorIs(t, err, ErrInvalidParams, "target %q", target)
	}
}

func TestConvertImageFlattensAlphaForJPEG(t *testing.T) {
	svc := NewService(Options{})

	var buf bytes.Buffer
	require.NoError(t, encodePNG(&buf, testImage(16, 16, 0)))

	res, err := svc.ConvertImage(context.Background(), buf.Bytes(), FormatJPEG, 90)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(res.File.Data))
	require.NoError(t, err)
	r, g, b, _ := img.At(8, 8).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Greater(t, g>>8, uint32(200))
	assert.Greater(t, b>>8, uint32(200))
}

func TestTransformHonoursCancelledContext(t *testing.T) {
	svc := NewService(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.CompressImage(ctx, buildTestPNG(t, 8, 8), 80)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTargetDimensions(t *testing.T) {
	w, h := targetDimensions(300, 200, 150, 150, FitContain)
	assert.Equal(t, 150, w)
	assert.Equal(t, 100, h)

	w, h = targetDimensions(300, 200, 150, 150, FitFill)
	assert.Equal(t, 150, w)
	assert.Equal(t, 150, h)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" JPG ")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)
	assert.Equal(t, "jpg", f.Extension())

	_, err = ParseFormat("tiff")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, 1, ClampQuality(-10))
	assert.Equal(t, 1, ClampQuality(0))
	assert.Equal(t, 55, ClampQuality(55))
	assert.Equal(t, 100, ClampQuality(101))
}
