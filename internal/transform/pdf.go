package transform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// pdfEngine wraps pdfcpu. A fresh configuration is built per call because
// pdfcpu mutates it while processing.
type pdfEngine struct{}

func newPDFEngine() pdfEngine {
	disableConfigDir.Do(api.DisableConfigDir)
	return pdfEngine{}
}

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func (pdfEngine) PageCount(src []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(src), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}

// Optimize re-serialises every page of src in order. Lower quality enables
// more aggressive structural deduplication.
func (pdfEngine) Optimize(ctx context.Context, src []byte, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conf := pdfConfig()
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true
	conf.OptimizeResourceDicts = quality < 90
	conf.OptimizeDuplicateContentStreams = quality < 50

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(src), &buf, conf); err != nil {
		return nil, fmt.Errorf("optimize pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (pdfEngine) Merge(ctx context.Context, srcs [][]byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readers := make([]io.ReadSeeker, 0, len(srcs))
	for _, src := range srcs {
		readers = append(readers, bytes.NewReader(src))
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, pdfConfig()); err != nil {
		return nil, fmt.Errorf("merge pdfs: %w", err)
	}
	return buf.Bytes(), nil
}

// Extract builds a new document holding exactly the pages in r.
func (pdfEngine) Extract(ctx context.Context, src []byte, r PageRange) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(src), &buf, []string{r.String()}, pdfConfig()); err != nil {
		return nil, fmt.Errorf("extract pages %s: %w", r, err)
	}
	return buf.Bytes(), nil
}
