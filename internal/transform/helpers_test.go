package transform

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/dunamismax/imageoptimizer/internal/testfixture"
)

func testImage(w, h int, alpha uint8) *image.RGBA {
	return testfixture.Gradient(w, h, alpha)
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	return testfixture.PNG(t, w, h)
}

func buildTestJPEG(t *testing.T, w, h int) []byte {
	return testfixture.JPEG(t, w, h)
}

func buildTestGIF(t *testing.T, w, h int) []byte {
	return testfixture.GIF(t, w, h)
}

func buildTestPDF(t *testing.T, widths ...int) []byte {
	return testfixture.PDF(t, widths...)
}

func pageWidths(count int, start int) []int {
	return testfixture.PageWidths(count, start)
}

func encodePNG(buf *bytes.Buffer, img image.Image) error {
	return png.Encode(buf, img)
}
