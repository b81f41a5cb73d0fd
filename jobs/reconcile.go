package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/fulfillment/internal/jobs"
	"github.com/odyssey-erp/fulfillment/internal/procurement"
)

// Verifier checks stored aggregates without modifying them.
type Verifier interface {
	VerifyOrder(ctx context.Context, id uuid.UUID) (procurement.Report, error)
	VerifyRequest(ctx context.Context, id uuid.UUID) (procurement.Report, error)
	Sweep(ctx context.Context, limit int) (procurement.Report, error)
}

// KeyCleaner purges reserved idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

var errVerifierMissing = errors.New("reconcile: verifier not configured")

// ReconcileJob runs the reconciliation audit tasks.
type ReconcileJob struct {
	Verifier   Verifier
	Keys       KeyCleaner
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	SweepLimit int
}

// NewReconcileJob constructs the job handlers.
func NewReconcileJob(verifier Verifier, keys KeyCleaner, logger *slog.Logger, metrics *jobmetrics.Metrics, sweepLimit int) *ReconcileJob {
	return &ReconcileJob{Verifier: verifier, Keys: keys, Logger: logger, Metrics: metrics, SweepLimit: sweepLimit}
}

// Handlers lists the task handlers for worker registration.
func (j *ReconcileJob) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskReconcileOrder, Handler: j.HandleOrder},
		{Type: TaskReconcileRequest, Handler: j.HandleRequest},
		{Type: TaskReconcileSweep, Handler: j.HandleSweep},
		{Type: TaskIdempotencyCleanup, Handler: j.HandleCleanup},
	}
}

// HandleOrder verifies one purchase order.
func (j *ReconcileJob) HandleOrder(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errVerifierMissing
	}
	return j.verifyOne(ctx, task, "purchase_order", j.Verifier.VerifyOrder)
}

// HandleRequest verifies one purchase request.
func (j *ReconcileJob) HandleRequest(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Verifier == nil {
		return errVerifierMissing
	}
	return j.verifyOne(ctx, task, "purchase_request", j.Verifier.VerifyRequest)
}

func (j *ReconcileJob) verifyOne(ctx context.Context, task *asynq.Task, entity string, verify func(context.Context, uuid.UUID) (procurement.Report, error)) (resultErr error) {
	var payload ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.ID == uuid.Nil {
		return fmt.Errorf("reconcile %s: bad payload: %w", entity, asynq.SkipRetry)
	}
	tracker := j.metrics().Track(task.Type())
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := verify(ctx, payload.ID)
	if errors.Is(err, procurement.ErrNotFound) {
		j.log().Info("reconcile target gone", slog.String("entity", entity), slog.String("id", payload.ID.String()))
		return nil
	}
	if err != nil {
		j.log().Error("reconcile failed", slog.String("entity", entity), slog.String("id", payload.ID.String()), slog.Any("error", err))
		return err
	}
	j.report(report)
	return nil
}

// HandleSweep verifies the most recently updated requests and orders.
func (j *ReconcileJob) HandleSweep(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Verifier == nil {
		return errVerifierMissing
	}
	var payload SweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("reconcile sweep: bad payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = j.SweepLimit
	}
	tracker := j.metrics().Track(TaskReconcileSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Verifier.Sweep(ctx, payload.Limit)
	if err != nil {
		j.log().Error("reconcile sweep failed", slog.Any("error", err))
		return err
	}
	j.report(report)
	j.log().Info("reconcile sweep finished", slog.Int("checked", report.Checked), slog.Int("drifts", len(report.Drifts)))
	return nil
}

// HandleCleanup purges idempotency keys past their retention.
func (j *ReconcileJob) HandleCleanup(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: store not configured")
	}
	var payload CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.OlderThan <= 0 {
		return fmt.Errorf("idempotency cleanup: bad payload: %w", asynq.SkipRetry)
	}
	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Keys.Cleanup(ctx, payload.OlderThan)
	if err != nil {
		return err
	}
	j.log().Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("older_than", payload.OlderThan))
	return nil
}

func (j *ReconcileJob) report(report procurement.Report) {
	for _, drift := range report.Drifts {
		j.metrics().AddDrift(drift.Entity, driftField(drift.Field), 1)
		j.log().Warn("reconcile drift",
			slog.String("entity", drift.Entity),
			slog.String("id", drift.ID.String()),
			slog.String("field", drift.Field),
			slog.String("stored", drift.Stored),
			slog.String("expected", drift.Expected),
		)
	}
}

// driftField drops the item id from per-line fields to keep label cardinality flat.
func driftField(field string) string {
	if strings.HasPrefix(field, "items.") {
		return field[strings.LastIndex(field, ".")+1:]
	}
	return field
}

func (j *ReconcileJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *ReconcileJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
