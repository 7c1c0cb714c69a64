package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/asiria/asiriapos/internal/jobs"
	"github.com/asiria/asiriapos/internal/stock"
)

// ReservationSweepJob releases reservations whose expiry has passed. The
// sweep is idempotent: a reservation is only released once.
type ReservationSweepJob struct {
	engine  *stock.Engine
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewReservationSweepJob constructs the sweep job.
func NewReservationSweepJob(engine *stock.Engine, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReservationSweepJob {
	return &ReservationSweepJob{engine: engine, logger: logger, metrics: metrics}
}

// Handle processes TaskReservationSweep tasks.
func (j *ReservationSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReservationSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("reservation_sweep")
	released, err := j.engine.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		j.logger.Error("reservation sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddReleased(released)
	if released > 0 {
		j.logger.Info("reservation sweep", slog.Int64("released", released))
	}
	return tracker.End(nil)
}

// AlertScanJob walks all products and raises any missing stock alerts. It
// backfills alerts for products whose level drifted outside the mutation
// path, for example after a direct data load.
type AlertScanJob struct {
	engine  *stock.Engine
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAlertScanJob constructs the scan job.
func NewAlertScanJob(engine *stock.Engine, logger *slog.Logger, metrics *jobmetrics.Metrics) *AlertScanJob {
	return &AlertScanJob{engine: engine, logger: logger, metrics: metrics}
}

// Handle processes TaskAlertScan tasks.
func (j *AlertScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AlertScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("alert_scan")
	created, err := j.engine.ScanAlerts(ctx)
	if err != nil {
		j.logger.Error("alert scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.logger.Info("alert scan", slog.Int64("created", created))
	return tracker.End(nil)
}

// IdempotencyStore is the slice of the shared store the cleanup job needs.
type IdempotencyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes consumed idempotency keys past retention.
type IdempotencyCleanupJob struct {
	store   IdempotencyStore
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the cleanup job.
func NewIdempotencyCleanupJob(store IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}
	tracker := j.metrics.Track("idempotency_cleanup")
	if err := j.store.Cleanup(ctx, olderThan); err != nil {
		j.logger.Error("idempotency cleanup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
