package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep releases expired stock reservations.
	TaskReservationSweep = "stock:reservation_sweep"
	// TaskAlertScan backfills low-stock alerts across all products.
	TaskAlertScan = "stock:alert_scan"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// ReservationSweepPayload carries scheduling metadata for the sweep.
type ReservationSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReservationSweepTask constructs an Asynq task for the reservation sweep.
func NewReservationSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, body, asynq.Queue(QueueDefault)), nil
}

// AlertScanPayload carries scheduling metadata for the alert scan.
type AlertScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewAlertScanTask constructs an Asynq task for the alert scan.
func NewAlertScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(AlertScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload bounds the retention window.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
