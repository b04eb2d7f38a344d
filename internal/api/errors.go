package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	applogger "github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	// Result carries the partial run when a run was started before failing
	Result *ingest.Result `json:"result,omitempty"`
}

// respondError logs err and writes it as JSON. AppErrors keep their code and
// status; anything else is reported as an internal error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, result *ingest.Result) {
	status := http.StatusInternalServerError
	body := ErrorResponse{
		Code:    string(apperrors.ErrCodeInternal),
		Message: "internal server error",
		Result:  result,
	}

	if appErr, ok := apperrors.GetAppError(err); ok {
		status = appErr.StatusCode
		body.Code = string(appErr.Code)
		body.Message = appErr.Message
		body.Details = appErr.Details
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
		body.Code = "CANCELLED"
		body.Message = "request cancelled"
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "request error",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status", status),
		slog.String("code", body.Code),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		applogger.Err(err))

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", applogger.Err(err))
	}
}

// requestLogger logs one line per request with its status and duration
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
