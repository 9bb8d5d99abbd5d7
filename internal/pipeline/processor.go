// Package pipeline runs a single job: fetch its inputs, apply the requested
// transform and emit the outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

var ErrNoInputs = errors.New("job has no inputs")

// Request names a job and where its inputs live. Inputs are file paths for
// the local processor and object keys for the object store one.
type Request struct {
	JobID  string
	Spec   domain.JobSpec
	Inputs []string
}

type Output struct {
	Index    int
	Path     string
	MIMEType string
	Format   transform.Format
	Bytes    int
	Width    int
	Height   int
	Pages    int
}

type Result struct {
	Outputs    []Output
	Skipped    []int
	InputBytes int
}

// OutputBytes sums the size of every emitted file.
func (r Result) OutputBytes() int {
	total := 0
	for _, o := range r.Outputs {
		total += o.Bytes
	}
	return total
}

type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, jobID string, index int, res transform.Result) (Output, error)
}

type Processor struct {
	fetcher Fetcher
	service *transform.Service
	emitter Emitter
}

func NewProcessor(fetcher Fetcher, service *transform.Service, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, service: service, emitter: emitter}
}

// NewLocalProcessor reads inputs from disk and writes outputs below
// outputDir/<job>/.
func NewLocalProcessor(outputDir string, service *transform.Service) *Processor {
	return NewProcessor(LocalFileFetcher{}, service, LocalFileEmitter{OutputDir: outputDir})
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Inputs) == 0 {
		return Result{}, ErrNoInputs
	}

	inputs := make([][]byte, 0, len(req.Inputs))
	inputBytes := 0
	for i, ref := range req.Inputs {
		data, err := p.fetcher.Fetch(ctx, ref)
		if err != nil {
			return Result{}, fmt.Errorf("fetch stage input=%d: %w", i, err)
		}
		inputs = append(inputs, data)
		inputBytes += len(data)
	}

	results, skipped, err := Dispatch(ctx, p.service, req.Spec, inputs)
	if err != nil {
		return Result{}, fmt.Errorf("transform stage op=%s: %w", req.Spec.Operation, err)
	}

	out := Result{
		Outputs:    make([]Output, 0, len(results)),
		Skipped:    skipped,
		InputBytes: inputBytes,
	}
	for i, res := range results {
		written, err := p.emitter.Emit(ctx, req.JobID, i, res)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage output=%d: %w", i, err)
		}
		out.Outputs = append(out.Outputs, written)
	}
	return out, nil
}

// Dispatch runs spec against svc. Every operation but split yields exactly
// one result; split also reports the request indexes of dropped ranges.
func Dispatch(ctx context.Context, svc *transform.Service, spec domain.JobSpec, inputs [][]byte) ([]transform.Result, []int, error) {
	if err := spec.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", transform.ErrInvalidParams, err)
	}

	want, variadic := spec.InputCount()
	if len(inputs) < want || (!variadic && len(inputs) != want) {
		return nil, nil, fmt.Errorf("%w: %s got %d inputs", transform.ErrInvalidParams, spec.Operation, len(inputs))
	}

	var (
		res transform.Result
		err error
	)
	switch spec.Operation {
	case transform.OpCompressImage:
		res, err = svc.CompressImage(ctx, inputs[0], spec.QualityOrDefault())
	case transform.OpResizeImage:
		res, err = svc.ResizeImage(ctx, inputs[0], spec.Width, spec.Height, spec.Fit())
	case transform.OpConvertImage:
		res, err = svc.ConvertImage(ctx, inputs[0], transform.Format(spec.TargetFormat), spec.QualityOrDefault())
	case transform.OpCompressPDF:
		res, err = svc.CompressPDF(ctx, inputs[0], spec.QualityOrDefault())
	case transform.OpMergePDFs:
		res, err = svc.MergePDFs(ctx, inputs)
	case transform.OpSplitPDF:
		split, err := svc.SplitPDF(ctx, inputs[0], spec.Ranges)
		if err != nil {
			return nil, nil, err
		}
		return split.Parts, split.Skipped, nil
	default:
		return nil, nil, fmt.Errorf("%w: operation %q", transform.ErrInvalidParams, spec.Operation)
	}
	if err != nil {
		return nil, nil, err
	}
	return []transform.Result{res}, nil, nil
}

// OutputName is the file name of the index-th output of a job.
func OutputName(index int, format transform.Format) string {
	return fmt.Sprintf("%d.%s", index, format.Extension())
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", ref, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, jobID string, index int, res transform.Result) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, OutputName(index, res.Format))
	if err := os.WriteFile(fullPath, res.File.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}
	return newOutput(index, fullPath, res), nil
}

func newOutput(index int, path string, res transform.Result) Output {
	return Output{
		Index:    index,
		Path:     path,
		MIMEType: res.File.MIMEType,
		Format:   res.Format,
		Bytes:    res.Size(),
		Width:    res.Width,
		Height:   res.Height,
		Pages:    res.Pages,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
