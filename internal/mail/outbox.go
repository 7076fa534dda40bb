package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keepernest/internal/blob"
)

// OutboxPrefix is where the outbox driver writes messages.
const OutboxPrefix = "outbox/"

// OutboxSender persists rendered messages as JSON blobs for a relay or a
// human to pick up.
type OutboxSender struct {
	store blob.Store
	now   func() time.Time
	newID func() string
}

// NewOutboxSender writes into store.
func NewOutboxSender(store blob.Store) *OutboxSender {
	return &OutboxSender{store: store, now: time.Now, newID: uuid.NewString}
}

type outboxRecord struct {
	Message
	QueuedAt time.Time `json:"queuedAt"`
}

// Send implements Sender.
func (s *OutboxSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	queued := s.now().UTC()
	raw, err := json.MarshalIndent(outboxRecord{Message: msg, QueuedAt: queued}, "", "  ")
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s-%s.json", OutboxPrefix, queued.Format("20060102T150405Z"), s.newID())
	_, err = s.store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"subject": msg.Subject},
	})
	if err != nil {
		return fmt.Errorf("queue mail: %w", err)
	}
	return nil
}
