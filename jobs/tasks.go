package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileOrder re-verifies one purchase order against its lines.
	TaskReconcileOrder = "reconcile:order"
	// TaskReconcileRequest re-verifies one purchase request against its lines.
	TaskReconcileRequest = "reconcile:request"
	// TaskReconcileSweep verifies the most recently updated documents.
	TaskReconcileSweep = "reconcile:sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// uniqueWindow collapses bursts of changes to one document into a single check.
const uniqueWindow = 30 * time.Second

// ReconcilePayload identifies the document to verify.
type ReconcilePayload struct {
	ID uuid.UUID `json:"id"`
}

// SweepPayload bounds a sweep run.
type SweepPayload struct {
	Limit int `json:"limit"`
}

// CleanupPayload sets the retention of idempotency keys.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewReconcileOrderTask builds a verification task for one order.
func NewReconcileOrderTask(id uuid.UUID) (*asynq.Task, error) {
	return newReconcileTask(TaskReconcileOrder, id)
}

// NewReconcileRequestTask builds a verification task for one request.
func NewReconcileRequestTask(id uuid.UUID) (*asynq.Task, error) {
	return newReconcileTask(TaskReconcileRequest, id)
}

func newReconcileTask(taskType string, id uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{ID: id})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.Unique(uniqueWindow), asynq.MaxRetry(3)), nil
}

// NewSweepTask builds a sweep task.
func NewSweepTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewCleanupTask builds an idempotency cleanup task.
func NewCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
