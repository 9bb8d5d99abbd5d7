// Package testfixture generates small images and PDFs for tests.
package testfixture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Gradient returns a w x h gradient with the given alpha.
func Gradient(w, h int, alpha uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: alpha,
			})
		}
	}
	return img
}

func PNG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	return EncodePNG(tb, Gradient(w, h, 255))
}

func EncodePNG(tb testing.TB, img image.Image) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func JPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Gradient(w, h, 255), &jpeg.Options{Quality: 95}); err != nil {
		tb.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func GIF(tb testing.TB, w, h int) []byte {
	tb.Helper()

	var buf bytes.Buffer
	if err := gif.Encode(&buf, Gradient(w, h, 255), nil); err != nil {
		tb.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

// PDF writes a minimal PDF with one empty page per width. Page i gets a
// MediaBox of widths[i] x 200 so page order survives into the output.
func PDF(tb testing.TB, widths ...int) []byte {
	tb.Helper()

	var (
		buf     bytes.Buffer
		offsets []int
	)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	writeObj("<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := range widths {
		fmt.Fprintf(&kids, "%d 0 R ", i+3)
	}
	writeObj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(widths)))

	for _, w := range widths {
		writeObj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 200] /Resources << >> >>", w))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// PageWidths returns count consecutive widths starting at start.
func PageWidths(count, start int) []int {
	widths := make([]int, count)
	for i := range widths {
		widths[i] = start + i
	}
	return widths
}

// ReadPageWidths returns the MediaBox width of every page in data.
func ReadPageWidths(tb testing.TB, data []byte) []int {
	tb.Helper()

	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	dims, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil {
		tb.Fatalf("read page dims: %v", err)
	}
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width)
	}
	return widths
}
