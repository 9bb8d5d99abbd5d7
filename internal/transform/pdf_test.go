package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/imageoptimizer/internal/testfixture"
)

func readPageWidths(t *testing.T, data []byte) []int {
	return testfixture.ReadPageWidths(t, data)
}

func TestBuildTestPDFIsReadable(t *testing.T) {
	engine := newPDFEngine()

	n, err := engine.PageCount(buildTestPDF(t, 100, 101, 102))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMergePDFsConcatenatesInOrder(t *testing.T) {
	svc := NewService(Options{})
	a := buildTestPDF(t, pageWidths(3, 100)...)
	b := buildTestPDF(t, pageWidths(5, 200)...)

	res, err := svc.MergePDFs(context.Background(), [][]byte{a, b})
	require.NoError(t, err)

	assert.Equal(t, FormatPDF, res.Format)
	assert.Equal(t, "application/pdf", res.File.MIMEType)
	assert.Equal(t, 8, res.Pages)
	assert.Equal(t, []int{100, 101, 102, 200, 201, 202, 203, 204}, readPageWidths(t, res.File.Data))
}

func TestMergePDFsKeepsSuppliedOrder(t *testing.T) {
	svc := NewService(Options{})
	a := buildTestPDF(t, 100)
	b := buildTestPDF(t, 200, 201)
	c := buildTestPDF(t, 300)

	res, err := svc.MergePDFs(context.Background(), [][]byte{c, a, b})
	require.NoError(t, err)
	assert.Equal(t, []int{300, 100, 200, 201}, readPageWidths(t, res.File.Data))
}

func TestMergePDFsNeedsTwoInputs(t *testing.T) {
	svc := NewService(Options{})

	for _, inputs := range [][][]byte{nil, {buildTestPDF(t, 100)}} {
		_, err := svc.MergePDFs(context.Background(), inputs)
		assert.ErrorIs(t, err, ErrInvalidParams)
	}
}

func TestMergePDFsFailsWholeMergeOnBadInput(t *testing.T) {
	svc := NewService(Options{})

	res, err := svc.MergePDFs(context.Background(), [][]byte{buildTestPDF(t, 100), []byte("not a pdf")})
	require.Error(t, err)
	assert.Equal(t, "merge failed", err.Error())
	assert.Empty(t, res.File.Data)
}

func TestSplitPDFDropsOutOfBoundsRanges(t *testing.T) {
	svc := NewService(Options{})
	src := buildTestPDF(t, pageWidths(10, 100)...)

	res, err := svc.SplitPDF(context.Background(), src, []PageRange{{Start: 1, End: 3}, {Start: 8, End: 12}})
	require.NoError(t, err)

	require.Len(t, res.Parts, 1)
	assert.Equal(t, []int{1}, res.Skipped)
	assert.Equal(t, 3, res.Parts[0].Pages)
	assert.Equal(t, []int{100, 101, 102}, readPageWidths(t, res.Parts[0].File.Data))
}

func TestSplitPDFKeepsRequestOrder(t *testing.T) {
	svc := NewService(Options{SplitConcurrency: 2})
	src := buildTestPDF(t, pageWidths(6, 100)...)

	ranges := []PageRange{
		{Start: 5, End: 6},
		{Start: 0, End: 2},
		{Start: 1, End: 2},
		{Start: 4, End: 3},
		{Start: 3, End: 3},
		{Start: 6, End: 6},
	}
	res, err := svc.SplitPDF(context.Background(), src, ranges)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, res.Skipped)
	require.Len(t, res.Parts, 4)
	assert.Equal(t, []int{104, 105}, readPageWidths(t, res.Parts[0].File.Data))
	assert.Equal(t, []int{100, 101}, readPageWidths(t, res.Parts[1].File.Data))
	assert.Equal(t, []int{102}, readPageWidths(t, res.Parts[2].File.Data))
	assert.Equal(t, []int{105}, readPageWidths(t, res.Parts[3].File.Data))
	for _, part := range res.Parts {
		assert.Equal(t, "application/pdf", part.File.MIMEType)
		assert.Equal(t, len(part.File.Data), part.Size())
	}
}

func TestSplitPDFWithOnlyInvalidRangesReturnsNoParts(t *testing.T) {
	svc := NewService(Options{})

	res, err := svc.SplitPDF(context.Background(), buildTestPDF(t, 100, 101), []PageRange{{Start: 3, End: 4}})
	require.NoError(t, err)
	assert.Empty(t, res.Parts)
	assert.NotNil(t, res.Parts)
	assert.Equal(t, []int{0}, res.Skipped)
}

func TestSplitPDFFailsOnUnreadableSource(t *testing.T) {
	svc := NewService(Options{})

	_, err := svc.SplitPDF(context.Background(), []byte("%PDF-garbage"), []PageRange{{Start: 1, End: 1}})
	require.Error(t, err)
	assert.Equal(t, "split failed", err.Error())
}

func TestCompressPDFPreservesPages(t *testing.T) {
	svc := NewService(Options{})
	src := buildTestPDF(t, pageWidths(4, 150)...)

	for _, quality := range []int{0, 30, 75, 100, 250} {
		res, err := svc.CompressPDF(context.Background(), src, quality)
		require.NoError(t, err)

		assert.Equal(t, 4, res.Pages)
		assert.Equal(t, "application/pdf", res.File.MIMEType)
		assert.Equal(t, []int{150, 151, 152, 153}, readPageWidths(t, res.File.Data))
	}
}

func TestCompressPDFReportsCompressionFailure(t *testing.T) {
	svc := NewService(Options{})

	_, err := svc.CompressPDF(context.Background(), []byte("nope"), 50)
	require.Error(t, err)
	assert.Equal(t, "compression failed", err.Error())
}

func TestPageRangeValidFor(t *testing.T) {
	assert.True(t, PageRange{Start: 1, End: 10}.ValidFor(10))
	assert.True(t, PageRange{Start: 4, End: 4}.ValidFor(10))
	assert.False(t, PageRange{Start: 0, End: 3}.ValidFor(10))
	assert.False(t, PageRange{Start: 8, End: 12}.ValidFor(10))
	assert.False(t, PageRange{Start: 5, End: 4}.ValidFor(10))
	assert.Equal(t, "3-7", PageRange{Start: 3, End: 7}.String())
	assert.Equal(t, "2", PageRange{Start: 2, End: 2}.String())
}

func TestParsePageRange(t *testing.T) {
	for in, want := range map[string]PageRange{
		"3":       {Start: 3, End: 3},
		"2-5":     {Start: 2, End: 5},
		" 7 - 9 ": {Start: 7, End: 9},
		"9-2":     {Start: 9, End: 2},
	} {
		got, err := ParsePageRange(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "a", "1-", "-3", "1-b"} {
		_, err := ParsePageRange(in)
		assert.ErrorIs(t, err, ErrInvalidParams, in)
	}
}
