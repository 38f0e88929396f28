package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// publishEvent serializes a domain event payload and publishes it on the
// queue. Event delivery is best-effort: a publish failure is logged, never
// propagated, so the review lifecycle can't stall on the notification bus.
func publishEvent(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish event", "subject", subject, "error", err)
	}
}
