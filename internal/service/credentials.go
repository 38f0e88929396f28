package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/medtrans/qagate/internal/port/credential"
	"github.com/medtrans/qagate/internal/port/messagequeue"
)

// CredentialFeed consumes verification events from the external
// credentialing collaborator and applies them to the expert directory.
type CredentialFeed struct {
	directory *Directory
	queue     messagequeue.Queue
}

// NewCredentialFeed creates the feed. Call Start to begin consuming.
func NewCredentialFeed(directory *Directory, queue messagequeue.Queue) *CredentialFeed {
	return &CredentialFeed{directory: directory, queue: queue}
}

// Start subscribes to the credential subject. The returned cancel function
// stops the subscription.
func (f *CredentialFeed) Start(ctx context.Context) (func(), error) {
	cancel, err := f.queue.Subscribe(ctx, messagequeue.SubjectCredentialEvents, f.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe credential events: %w", err)
	}
	slog.Info("credential feed started", "subject", messagequeue.SubjectCredentialEvents)
	return cancel, nil
}

func (f *CredentialFeed) handle(ctx context.Context, subject string, data []byte) error {
	var ev credential.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("malformed credential event", "subject", subject, "error", err)
		return nil // do not redeliver garbage
	}
	if ev.ExpertID == "" {
		slog.Warn("credential event without expert id", "kind", ev.Kind)
		return nil
	}
	return f.directory.ApplyCredentialEvent(ctx, ev)
}
