// Package transform implements the stateless image and PDF operations:
// compress, resize and convert images; compress, merge and split PDFs.
//
// Every operation is a pure function of its inputs. Failures are reported as
// *Error, whose message is the generic per-operation text while the library
// cause stays available through errors.Unwrap.
package transform

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/imageoptimizer/internal/dataurl"
)

const (
	defaultSplitConcurrency = 4
	defaultMaxImagePixels   = 100_000_000
	minMergeInputs          = 2
)

// Options tunes a Service. Zero values select defaults.
type Options struct {
	// MaxImagePixels rejects decoded images larger than width*height.
	MaxImagePixels int64
	// SplitConcurrency bounds how many split ranges render at once.
	SplitConcurrency int
}

// Result is one encoded output file.
type Result struct {
	File   dataurl.File
	Format Format
	Width  int
	Height int
	Pages  int
}

// Size is the decoded byte length of the output.
func (r Result) Size() int {
	return r.File.Size()
}

// DataURL renders the output as a base64 data URL.
func (r Result) DataURL() string {
	return r.File.String()
}

// SplitResult holds one output per valid range, in request order, and the
// request indexes of ranges that were dropped.
type SplitResult struct {
	Parts   []Result
	Skipped []int
}

type Service struct {
	images           imageTransformer
	pdfs             pdfEngine
	maxImagePixels   int64
	splitConcurrency int
}

func NewService(opts Options) *Service {
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = defaultMaxImagePixels
	}
	if opts.SplitConcurrency <= 0 {
		opts.SplitConcurrency = defaultSplitConcurrency
	}

	return &Service{
		images:           newImageTransformer(),
		pdfs:             newPDFEngine(),
		maxImagePixels:   opts.MaxImagePixels,
		splitConcurrency: opts.SplitConcurrency,
	}
}

// CompressImage re-encodes src in its own format at the given quality.
func (s *Service) CompressImage(ctx context.Context, src []byte, quality int) (Result, error) {
	return s.runImage(ctx, OpCompressImage, src, Step{
		Action:  ActionCompress,
		Quality: ClampQuality(quality),
	})
}

// ResizeImage scales src into a width x height box and re-encodes it in the
// source format.
func (s *Service) ResizeImage(ctx context.Context, src []byte, width, height int, fit Fit) (Result, error) {
	if width < 1 || height < 1 {
		return Result{}, fmt.Errorf("%w: width and height must be >= 1, got %dx%d", ErrInvalidParams, width, height)
	}
	if fit != FitContain && fit != FitFill {
		return Result{}, fmt.Errorf("%w: unknown fit %s", ErrInvalidParams, fit)
	}

	return s.runImage(ctx, OpResizeImage, src, Step{
		Action: ActionResize,
		Width:  width,
		Height: height,
		Fit:    fit,
	})
}

// ConvertImage decodes src regardless of its format and encodes it as target.
func (s *Service) ConvertImage(ctx context.Context, src []byte, target Format, quality int) (Result, error) {
	target, err := ParseConvertTarget(string(target))
	if err != nil {
		return Result{}, err
	}

	return s.runImage(ctx, OpConvertImage, src, Step{
		Action:  ActionConvert,
		Format:  target,
		Quality: ClampQuality(quality),
	})
}

func (s *Service) runImage(ctx context.Context, op Op, src []byte, step Step) (Result, error) {
	step.MaxPixels = s.maxImagePixels
	out, err := s.images.Transform(ctx, src, step)
	if err != nil {
		return Result{}, fail(op, err)
	}

	return Result{
		File:   dataurl.New(out.Format.MIMEType(), out.Data),
		Format: out.Format,
		Width:  out.Width,
		Height: out.Height,
	}, nil
}

// CompressPDF re-serialises src with all pages in original order.
func (s *Service) CompressPDF(ctx context.Context, src []byte, quality int) (Result, error) {
	pages, err := s.pdfs.PageCount(src)
	if err != nil {
		return Result{}, fail(OpCompressPDF, err)
	}

	data, err := s.pdfs.Optimize(ctx, src, ClampQuality(quality))
	if err != nil {
		return Result{}, fail(OpCompressPDF, err)
	}
	return pdfResult(data, pages), nil
}

// MergePDFs concatenates the pages of srcs in the order supplied. Any input
// that fails to load fails the whole merge.
func (s *Service) MergePDFs(ctx context.Context, srcs [][]byte) (Result, error) {
	if len(srcs) < minMergeInputs {
		return Result{}, fmt.Errorf("%w: merge needs at least %d PDFs, got %d", ErrInvalidParams, minMergeInputs, len(srcs))
	}

	total := 0
	for i, src := range srcs {
		n, err := s.pdfs.PageCount(src)
		if err != nil {
			return Result{}, fail(OpMergePDFs, fmt.Errorf("input %d: %w", i, err))
		}
		total += n
	}

	data, err := s.pdfs.Merge(ctx, srcs)
	if err != nil {
		return Result{}, fail(OpMergePDFs, err)
	}
	return pdfResult(data, total), nil
}

// SplitPDF builds one document per valid range. A range is valid when
// 1 <= start <= end <= page count as supplied; other ranges are skipped and
// reported in SplitResult.Skipped rather than failing the call.
func (s *Service) SplitPDF(ctx context.Context, src []byte, ranges []PageRange) (SplitResult, error) {
	pageCount, err := s.pdfs.PageCount(src)
	if err != nil {
		return SplitResult{}, fail(OpSplitPDF, err)
	}

	var (
		valid   []PageRange
		skipped []int
	)
	for i, r := range ranges {
		if !r.ValidFor(pageCount) {
			skipped = append(skipped, i)
			continue
		}
		valid = append(valid, r)
	}

	parts := make([]Result, len(valid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.splitConcurrency)
	for i, r := range valid {
		g.Go(func() error {
			data, err := s.pdfs.Extract(gctx, src, r)
			if err != nil {
				return err
			}
			parts[i] = pdfResult(data, r.End-r.Start+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SplitResult{}, fail(OpSplitPDF, err)
	}

	return SplitResult{Parts: parts, Skipped: skipped}, nil
}

func pdfResult(data []byte, pages int) Result {
	return Result{
		File:   dataurl.New(FormatPDF.MIMEType(), data),
		Format: FormatPDF,
		Pages:  pages,
	}
}

// IsInvalidParams reports whether err was caused by caller-supplied
// parameters rather than by the input file.
func IsInvalidParams(err error) bool {
	return errors.Is(err, ErrInvalidParams)
}
