package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/testfixture"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

func BenchmarkProcessorResize(b *testing.B) {
	benchmarkProcessor(b, testfixture.PNG(b, 1920, 1080), domain.JobSpec{
		Operation: transform.OpResizeImage,
		Width:     640,
		Height:    640,
	})
}

func BenchmarkProcessorConvertJPEG(b *testing.B) {
	benchmarkProcessor(b, testfixture.PNG(b, 1920, 1080), domain.JobSpec{
		Operation:    transform.OpConvertImage,
		TargetFormat: "jpeg",
	})
}

func BenchmarkProcessorSplitPDF(b *testing.B) {
	benchmarkProcessor(b, testfixture.PDF(b, testfixture.PageWidths(50, 100)...), domain.JobSpec{
		Operation: transform.OpSplitPDF,
		Ranges:    []transform.PageRange{{Start: 1, End: 10}, {Start: 11, End: 30}, {Start: 31, End: 50}},
	})
}

func benchmarkProcessor(b *testing.B, source []byte, spec domain.JobSpec) {
	processor := NewProcessor(staticFetcher{data: source}, transform.NewService(transform.Options{}), discardEmitter{})
	req := Request{Spec: spec, Inputs: []string{"ignored"}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.JobID = fmt.Sprintf("bench-%d", i)
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, _ string, index int, res transform.Result) (Output, error) {
	return newOutput(index, "", res), nil
}
