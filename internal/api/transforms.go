package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/dataurl"
	"github.com/dunamismax/imageoptimizer/internal/logging"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

type compressImageRequest struct {
	ImageDataURL string `json:"imageDataUrl"`
	Quality      *int   `json:"quality,omitempty"`
}

type compressImageResponse struct {
	CompressedImage string `json:"compressedImage"`
	CompressedSize  int    `json:"compressedSize"`
}

type resizeImageRequest struct {
	ImageDataURL        string `json:"imageDataUrl"`
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	MaintainAspectRatio *bool  `json:"maintainAspectRatio,omitempty"`
}

type resizeImageResponse struct {
	ResizedImage string `json:"resizedImage"`
	ResizedSize  int    `json:"resizedSize"`
}

type convertImageRequest struct {
	ImageDataURL string `json:"imageDataUrl"`
	TargetFormat string `json:"targetFormat"`
	Quality      *int   `json:"quality,omitempty"`
}

type convertImageResponse struct {
	ConvertedImage string `json:"convertedImage"`
	ConvertedSize  int    `json:"convertedSize"`
}

type compressPDFRequest struct {
	PDFDataURL string `json:"pdfDataUrl"`
	Quality    *int   `json:"quality,omitempty"`
}

type compressPDFResponse struct {
	CompressedPDF  string `json:"compressedPdf"`
	CompressedSize int    `json:"compressedSize"`
}

type mergePDFsRequest struct {
	PDFDataURLs []string `json:"pdfDataUrls"`
}

type mergePDFsResponse struct {
	MergedPDF  string `json:"mergedPdf"`
	MergedSize int    `json:"mergedSize"`
}

type splitPDFRequest struct {
	PDFDataURL string                `json:"pdfDataUrl"`
	Ranges     []transform.PageRange `json:"ranges"`
}

type splitPart struct {
	PDF  string `json:"pdf"`
	Size int    `json:"size"`
}

type splitPDFResponse struct {
	SplitPDFs     []splitPart `json:"splitPdfs"`
	SkippedRanges []int       `json:"skippedRanges"`
}

func qualityOrDefault(q *int) int {
	if q == nil {
		return transform.DefaultQuality
	}
	return *q
}

func (s *Server) handleCompressImage(w http.ResponseWriter, r *http.Request) {
	var req compressImageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	src, ok := s.parseDataURL(w, r, transform.OpCompressImage, "imageDataUrl", req.ImageDataURL)
	if !ok {
		return
	}

	var res transform.Result
	err := s.observe(r.Context(), transform.OpCompressImage, src.Size(), func(ctx context.Context) (int, error) {
		var err error
		res, err = s.transforms.CompressImage(ctx, src.Data, qualityOrDefault(req.Quality))
		return res.Size(), err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpCompressImage, err)
		return
	}
	writeJSON(w, http.StatusOK, compressImageResponse{CompressedImage: res.DataURL(), CompressedSize: res.Size()})
}

func (s *Server) handleResizeImage(w http.ResponseWriter, r *http.Request) {
	var req resizeImageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	src, ok := s.parseDataURL(w, r, transform.OpResizeImage, "imageDataUrl", req.ImageDataURL)
	if !ok {
		return
	}

	fit := transform.FitContain
	if req.MaintainAspectRatio != nil {
		fit = transform.FitFromAspectLock(*req.MaintainAspectRatio)
	}

	var res transform.Result
	err := s.observe(r.Context(), transform.OpResizeImage, src.Size(), func(ctx context.Context) (int, error) {
		var err error
		res, err = s.transforms.ResizeImage(ctx, src.Data, req.Width, req.Height, fit)
		return res.Size(), err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpResizeImage, err)
		return
	}
	writeJSON(w, http.StatusOK, resizeImageResponse{ResizedImage: res.DataURL(), ResizedSize: res.Size()})
}

func (s *Server) handleConvertImage(w http.ResponseWriter, r *http.Request) {
	var req convertImageRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	src, ok := s.parseDataURL(w, r, transform.OpConvertImage, "imageDataUrl", req.ImageDataURL)
	if !ok {
		return
	}

	var res transform.Result
	err := s.observe(r.Context(), transform.OpConvertImage, src.Size(), func(ctx context.Context) (int, error) {
		var err error
		res, err = s.transforms.ConvertImage(ctx, src.Data, transform.Format(req.TargetFormat), qualityOrDefault(req.Quality))
		return res.Size(), err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpConvertImage, err)
		return
	}
	writeJSON(w, http.StatusOK, convertImageResponse{ConvertedImage: res.DataURL(), ConvertedSize: res.Size()})
}

func (s *Server) handleCompressPDF(w http.ResponseWriter, r *http.Request) {
	var req compressPDFRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	src, ok := s.parseDataURL(w, r, transform.OpCompressPDF, "pdfDataUrl", req.PDFDataURL)
	if !ok {
		return
	}

	var res transform.Result
	err := s.observe(r.Context(), transform.OpCompressPDF, src.Size(), func(ctx context.Context) (int, error) {
		var err error
		res, err = s.transforms.CompressPDF(ctx, src.Data, qualityOrDefault(req.Quality))
		return res.Size(), err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpCompressPDF, err)
		return
	}
	writeJSON(w, http.StatusOK, compressPDFResponse{CompressedPDF: res.DataURL(), CompressedSize: res.Size()})
}

func (s *Server) handleMergePDFs(w http.ResponseWriter, r *http.Request) {
	var req mergePDFsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	srcs := make([][]byte, 0, len(req.PDFDataURLs))
	inputBytes := 0
	for i, raw := range req.PDFDataURLs {
		f, ok := s.parseDataURL(w, r, transform.OpMergePDFs, fmt.Sprintf("pdfDataUrls[%d]", i), raw)
		if !ok {
			return
		}
		srcs = append(srcs, f.Data)
		inputBytes += f.Size()
	}

	var res transform.Result
	err := s.observe(r.Context(), transform.OpMergePDFs, inputBytes, func(ctx context.Context) (int, error) {
		var err error
		res, err = s.transforms.MergePDFs(ctx, srcs)
		return res.Size(), err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpMergePDFs, err)
		return
	}
	writeJSON(w, http.StatusOK, mergePDFsResponse{MergedPDF: res.DataURL(), MergedSize: res.Size()})
}

func (s *Server) handleSplitPDF(w http.ResponseWriter, r *http.Request) {
	var req splitPDFRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	src, ok := s.parseDataURL(w, r, transform.OpSplitPDF, "pdfDataUrl", req.PDFDataURL)
	if !ok {
		return
	}

	var split transform.SplitResult
	err := s.observe(r.Context(), transform.OpSplitPDF, src.Size(), func(ctx context.Context) (int, error) {
		var err error
		split, err = s.transforms.SplitPDF(ctx, src.Data, req.Ranges)
		total := 0
		for _, p := range split.Parts {
			total += p.Size()
		}
		return total, err
	})
	if err != nil {
		s.writeTransformError(w, r, transform.OpSplitPDF, err)
		return
	}

	resp := splitPDFResponse{
		SplitPDFs:     make([]splitPart, 0, len(split.Parts)),
		SkippedRanges: split.Skipped,
	}
	if resp.SkippedRanges == nil {
		resp.SkippedRanges = []int{}
	}
	for _, p := range split.Parts {
		resp.SplitPDFs = append(resp.SplitPDFs, splitPart{PDF: p.DataURL(), Size: p.Size()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseDataURL decodes one input of op. An undecodable input is a failed
// operation like any other malformed file: the client gets op's generic
// message and the parse error is logged.
func (s *Server) parseDataURL(w http.ResponseWriter, r *http.Request, op transform.Op, field, raw string) (dataurl.File, bool) {
	f, err := dataurl.Parse(raw)
	if err != nil {
		s.metrics.transformTotal.WithLabelValues(string(op), "error").Inc()
		s.writeTransformError(w, r, op, &transform.Error{Op: op, Err: fmt.Errorf("%s: %w", field, err)})
		return dataurl.File{}, false
	}
	return f, true
}

// observe runs fn and records its duration, outcome and byte counts. fn
// reports the total size of what it produced.
func (s *Server) observe(ctx context.Context, op transform.Op, inputBytes int, fn func(context.Context) (int, error)) error {
	start := time.Now()
	outputBytes, err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	label := string(op)
	s.metrics.transformTotal.WithLabelValues(label, outcome).Inc()
	s.metrics.transformDuration.WithLabelValues(label, outcome).Observe(time.Since(start).Seconds())
	s.metrics.transformInputBytes.WithLabelValues(label).Add(float64(inputBytes))
	if err != nil {
		return err
	}

	s.metrics.transformOutputBytes.WithLabelValues(label).Add(float64(outputBytes))
	logging.WithTrace(ctx, s.logger).Debug("transform done",
		zap.String("op", label),
		zap.String("in", humanize.Bytes(uint64(inputBytes))),
		zap.String("out", humanize.Bytes(uint64(outputBytes))),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// writeTransformError maps transform failures to a status code. The client
// sees only the generic per-operation message; the cause is logged.
func (s *Server) writeTransformError(w http.ResponseWriter, r *http.Request, op transform.Op, err error) {
	logger := logging.WithTrace(r.Context(), s.logger).With(
		zap.String("op", string(op)),
		zap.String("request_id", requestIDFrom(r.Context())),
	)

	var terr *transform.Error
	switch {
	case errors.Is(err, transform.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Info("transform cancelled", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.As(err, &terr):
		logger.Warn("transform failed", zap.String("cause", terr.Cause()))
		writeError(w, http.StatusUnprocessableEntity, terr.Error())
	default:
		logger.Error("transform failed", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, op.FailureMessage())
	}
}
