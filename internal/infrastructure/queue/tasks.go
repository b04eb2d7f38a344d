package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	applogger "github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

// Queue names
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// TaskTypeIngestRun is the task type of a queued ingest run
const TaskTypeIngestRun = "ingest:run"

// IngestRunPayload is the JSON payload of an ingest:run task
type IngestRunPayload struct {
	Sheet  string `json:"sheet"`
	Action string `json:"action"`
	File   string `json:"file"`
}

// Request converts the payload to a run request
func (p IngestRunPayload) Request() ingest.Request {
	return ingest.Request{Sheet: p.Sheet, Action: p.Action, File: p.File}
}

// NewIngestRunTask builds an ingest:run task. Runs of the same sheet and
// file are deduplicated while one is pending.
func NewIngestRunTask(req ingest.Request, maxRetries int) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestRunPayload{Sheet: req.Sheet, Action: req.Action, File: req.File})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task payload: %w", err)
	}

	return asynq.NewTask(TaskTypeIngestRun, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(maxRetries),
		asynq.TaskID(fmt.Sprintf("%s:%s:%s", req.Sheet, req.Action, req.File)),
	), nil
}

// Runner executes and records ingest runs
type Runner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Flush(ctx context.Context, result *ingest.Result) error
}

// ResultStore keeps finished results so clients can poll them
type ResultStore interface {
	SaveResult(ctx context.Context, result *ingest.Result, ttl time.Duration) error
}

// IngestHandler processes ingest:run tasks
type IngestHandler struct {
	runner    Runner
	results   ResultStore
	resultTTL time.Duration
	logger    *slog.Logger
}

// NewIngestHandler creates the handler. results may be nil.
func NewIngestHandler(runner Runner, results ResultStore, resultTTL time.Duration, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{
		runner:    runner,
		results:   results,
		resultTTL: resultTTL,
		logger:    logger,
	}
}

// ProcessTask runs the requested ingest and flushes its audit trail. Faults
// that a retry cannot fix skip the retry queue; a busy sheet lock is retried.
func (h *IngestHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload IngestRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid %s payload: %v: %w", TaskTypeIngestRun, err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("sheet", payload.Sheet),
		slog.String("action", payload.Action),
		slog.String("file", payload.File))

	result, err := h.runner.Run(ctx, payload.Request())
	if result != nil {
		if flushErr := h.runner.Flush(context.WithoutCancel(ctx), result); flushErr != nil {
			log.Error("failed to flush audit trail", applogger.Err(flushErr))
			if err == nil {
				return flushErr
			}
		}
		h.saveResult(context.WithoutCancel(ctx), result, log)
	}

	if err != nil {
		if retryable(err) {
			return err
		}
		log.Warn("ingest run failed permanently", applogger.Err(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	return nil
}

func (h *IngestHandler) saveResult(ctx context.Context, result *ingest.Result, log *slog.Logger) {
	if h.results == nil {
		return
	}
	if err := h.results.SaveResult(ctx, result, h.resultTTL); err != nil {
		log.Warn("failed to store run result", applogger.Err(err))
	}
}

// retryable reports whether a run error may succeed on a later attempt
func retryable(err error) bool {
	appErr, ok := apperrors.GetAppError(err)
	if !ok {
		return true
	}
	switch appErr.Code {
	case apperrors.ErrCodeRunLocked, apperrors.ErrCodeDatabaseError, apperrors.ErrCodeInternal:
		return true
	default:
		return false
	}
}

// LoggingMiddleware logs the duration and outcome of every task
func LoggingMiddleware(logger *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)

			attrs := append(taskAttrs(ctx, task), slog.Duration("duration", time.Since(start)))
			if err != nil {
				logger.Error("task failed", append(attrs, applogger.Err(err))...)
				return err
			}
			logger.Info("task processed", attrs...)
			return nil
		})
	}
}

// taskAttrs describes a task for logging. ingest:run tasks carry their
// sheet, action and file; other payloads are logged by type only.
func taskAttrs(ctx context.Context, task *asynq.Task) []any {
	attrs := []any{slog.String("task_type", task.Type())}
	if id, ok := asynq.GetTaskID(ctx); ok {
		attrs = append(attrs, slog.String("task_id", id))
	}
	if task.Type() != TaskTypeIngestRun {
		return attrs
	}

	var payload IngestRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return append(attrs, slog.Int("payload_bytes", len(task.Payload())))
	}
	return append(attrs,
		slog.String("sheet", payload.Sheet),
		slog.String("action", payload.Action),
		slog.String("file", payload.File))
}
