package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/outbox"
)

// OutboxNotifier records patient-facing events in outbox_events for the kafka relay. Other
// events are ignored.
type OutboxNotifier struct {
	db   db.TxBeginner
	repo *outbox.Repository
}

func NewOutboxNotifier(pool db.TxBeginner, repo *outbox.Repository) *OutboxNotifier {
	return &OutboxNotifier{db: pool, repo: repo}
}

func (n *OutboxNotifier) Notify(ctx context.Context, evt Event) error {
	if !evt.PatientFacing() {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Type, err)
	}

	tx, err := n.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("outbox begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := n.repo.Insert(ctx, tx, outbox.Event{
		ID:            evt.ID,
		AggregateType: "appointment",
		AggregateID:   evt.AppointmentID,
		EventType:     evt.Type,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("outbox insert: %w", err)
	}
	return tx.Commit(ctx)
}
