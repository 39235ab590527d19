package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/wardenhq/warden/internal/domain"
	"github.com/wardenhq/warden/internal/port/messagequeue"
)

// publish marshals and publishes a payload, logging failures instead of
// propagating them: messaging is best-effort relative to the database
// write that precedes it.
func publish(ctx context.Context, q messagequeue.Queue, subject string, payload any) {
	if q == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := q.Publish(ctx, subject, data); err != nil {
		slog.Error("publish failed", "subject", subject, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func logStoreError(op string, err error) {
	slog.Error(op+" failed", "error", err)
}
