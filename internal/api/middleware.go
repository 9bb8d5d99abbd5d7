package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/imageoptimizer/internal/id"
	"github.com/dunamismax/imageoptimizer/internal/logging"
)

const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// withRequestID keeps a caller supplied request id or assigns a new one and
// echoes it on the response.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if reqID == "" || len(reqID) > 64 {
			reqID = id.Request()
		}
		w.Header().Set(headerRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				logging.WithTrace(r.Context(), s.logger).Error("panic serving request",
					zap.Any("panic", rec),
					zap.String("request_id", requestIDFrom(r.Context())),
					zap.Stack("stack"),
				)
				if !recorder.wroteHeader {
					writeError(recorder, http.StatusInternalServerError, "internal error")
				}
			}

			logging.WithTrace(r.Context(), s.logger).Info("request",
				zap.String("request_id", requestIDFrom(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.status),
				zap.Int64("bytes_in", r.ContentLength),
				zap.Duration("took", time.Since(start)),
			)
		}()

		next.ServeHTTP(recorder, r)
	})
}
