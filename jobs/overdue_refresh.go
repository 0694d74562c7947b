package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/settlement"
)

// OverdueRefreshHandler returns the Asynq handler that flips unpaid invoices
// past their due date to OVERDUE and invalidates cached open-invoice lists.
func OverdueRefreshHandler(invoices *ledger.Repository, cache *ledger.Cache, metrics *observability.Metrics, runs *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := runs.Track(TaskOverdueRefresh)
		var payload OverdueRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		asOf := payload.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}

		flipped, err := invoices.RefreshOverdueStatuses(ctx, asOf)
		if err != nil {
			logger.Error("refresh overdue statuses", slog.Any("error", err))
			return tracker.End(err)
		}
		if flipped > 0 {
			if err := cache.Bump(ctx); err != nil {
				logger.Warn("bump open-invoice cache", slog.Any("error", err))
			}
		}
		metrics.RecordOverdueTransitions(flipped)
		logger.Info("refreshed overdue statuses",
			slog.String("job", TaskOverdueRefresh),
			slog.Int64("flipped", flipped),
			slog.Time("as_of", asOf),
		)
		return tracker.End(nil)
	}
}

// IdempotencyCleanupHandler prunes settlement idempotency keys older than
// the configured retention.
func IdempotencyCleanupHandler(store *settlement.IdempotencyStore, retention time.Duration, runs *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := runs.Track(TaskIdempotencyCleanup)
		var payload IdempotencyCleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		olderThan := payload.Retention
		if olderThan <= 0 {
			olderThan = retention
		}
		if err := store.Cleanup(ctx, olderThan); err != nil {
			logger.Error("cleanup idempotency keys", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("cleaned idempotency keys", slog.String("job", TaskIdempotencyCleanup))
		return tracker.End(nil)
	}
}
