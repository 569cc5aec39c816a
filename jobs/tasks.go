// Package jobs holds the background task definitions and the Asynq worker
// that runs them.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReceivableSweep flips overdue pending installments to late.
	TaskReceivableSweep = "receivables:sweep"
)

// ReceivableSweepPayload carries scheduling metadata.
type ReceivableSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReceivableSweepTask constructs an Asynq task for the aging sweep.
func NewReceivableSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReceivableSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivableSweep, body, asynq.Queue(QueueDefault)), nil
}

// Sweeper marks overdue pending installments late across all tenants.
type Sweeper interface {
	SweepLateInstallments(ctx context.Context) (int64, error)
}

// NewReceivableSweepHandler processes TaskReceivableSweep tasks.
func NewReceivableSweepHandler(logger *slog.Logger, sweeper Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ReceivableSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		flipped, err := sweeper.SweepLateInstallments(ctx)
		if err != nil {
			logger.Error("receivable sweep", slog.Any("error", err))
			return err
		}
		logger.Info("receivable sweep done",
			slog.Int64("flipped", flipped),
			slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}
}
