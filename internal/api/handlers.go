package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/queue"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// EnqueueResponse is returned for runs handed to the worker
type EnqueueResponse struct {
	TaskID string         `json:"task_id"`
	Queue  string         `json:"queue"`
	Run    ingest.Request `json:"run"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]interface{}, len(s.opts.Health))
	for name, check := range s.opts.Health {
		report := check(r.Context())
		if report["status"] != "up" {
			status = "degraded"
		}
		checks[name] = report
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleListSheets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sheets": s.opts.Runner.Sheets()})
}

// handleEnqueueRun queues a run of an already stored file
func (s *Server) handleEnqueueRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	s.enqueue(w, r, req)
}

// handleSyncRun executes a run of an already stored file and waits for it
func (s *Server) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRequest(r)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	s.runAndRespond(w, r, req)
}

// handleUpload stores a multipart file and runs it. With ?async=true the
// run is queued instead.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.Storage == nil {
		s.respondError(w, r, apperrors.Unavailable("file storage is not configured"), nil)
		return
	}

	req := ingest.Request{
		Sheet:  chi.URLParam(r, "sheet"),
		Action: chi.URLParam(r, "action"),
	}
	if err := s.validateRequest(req, false); err != nil {
		s.respondError(w, r, err, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, apperrors.FileTooLarge(r.ContentLength, s.opts.MaxUploadBytes), nil)
			return
		}
		s.respondError(w, r, apperrors.BadRequest("invalid multipart form"), nil)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, apperrors.BadRequest("no file provided"), nil)
		return
	}
	defer file.Close()

	metadata, err := s.opts.Storage.SaveUpload(r.Context(), uuid.NewString(), header.Filename, file)
	if err != nil {
		s.respondError(w, r, apperrors.InternalWrap(err, "failed to store upload"), nil)
		return
	}
	req.File = metadata.Ref

	s.logger.Info("upload stored",
		slog.String("sheet", req.Sheet),
		slog.String("action", req.Action),
		slog.String("ref", metadata.Ref),
		slog.Int64("size", metadata.Size))

	if async := r.URL.Query().Get("async"); async == "1" || strings.EqualFold(async, "true") {
		s.enqueue(w, r, req)
		return
	}
	s.runAndRespond(w, r, req)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Results == nil {
		s.respondError(w, r, apperrors.Unavailable("run results are not configured"), nil)
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		s.respondError(w, r, apperrors.BadRequest("invalid run id"), nil)
		return
	}

	result, err := s.opts.Results.GetResult(r.Context(), runID)
	if err != nil {
		s.respondError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) runAndRespond(w http.ResponseWriter, r *http.Request, req ingest.Request) {
	result, err := s.opts.Runner.Run(r.Context(), req)
	if result != nil {
		if flushErr := s.opts.Runner.Flush(context.WithoutCancel(r.Context()), result); flushErr != nil && err == nil {
			err = flushErr
		}
	}
	if err != nil {
		s.respondError(w, r, err, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, req ingest.Request) {
	if s.opts.Queue == nil {
		s.respondError(w, r, apperrors.Unavailable("run queue is not configured"), nil)
		return
	}

	task, err := queue.NewIngestRunTask(req, s.opts.MaxRetries)
	if err != nil {
		s.respondError(w, r, apperrors.InternalWrap(err, "failed to build task"), nil)
		return
	}

	info, err := s.opts.Queue.EnqueueContext(r.Context(), task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			s.respondError(w, r, apperrors.Conflict(fmt.Sprintf("a run of %s is already queued", req.File)), nil)
			return
		}
		s.respondError(w, r, apperrors.QueueError(err, "failed to enqueue run"), nil)
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueResponse{
		TaskID: info.ID,
		Queue:  info.Queue,
		Run:    req,
	})
}

func (s *Server) decodeRequest(r *http.Request) (ingest.Request, error) {
	var req ingest.Request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return req, apperrors.BadRequest("invalid request body")
	}
	return req, s.validateRequest(req, true)
}

// validateRequest rejects requests the service would refuse anyway, so a
// bad request never reaches the queue.
func (s *Server) validateRequest(req ingest.Request, needFile bool) error {
	if req.Sheet == "" || req.Action == "" || (needFile && req.File == "") {
		return apperrors.BadRequest("sheet, action and file are required")
	}
	known := false
	for _, name := range s.opts.Runner.Sheets() {
		if name == req.Sheet {
			known = true
			break
		}
	}
	if !known {
		return apperrors.NotFound(fmt.Sprintf("sheet %s is not configured", req.Sheet))
	}
	_, err := ingest.ParseAction(req.Action)
	return err
}
