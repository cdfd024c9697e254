package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"example.com/carbonledger/internal/events"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PersistenceHandler appends consumed events to emission_event_log for auditing.
// Redelivered records are ignored by the (topic, partition, offset) key.
type PersistenceHandler struct {
	db execer
}

// NewPersistenceHandler constructs a handler backed by db, typically a *pgxpool.Pool.
func NewPersistenceHandler(db execer) *PersistenceHandler {
	return &PersistenceHandler{db: db}
}

// Handle validates known payloads and stores the event.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	userID, err := payloadUserID(msg)
	if err != nil {
		return err
	}
	if msg.UserID == "" {
		msg.UserID = userID
	}

	_, err = h.db.Exec(ctx,
		`INSERT INTO emission_event_log (event_type, user_id, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.UserID,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		[]byte(msg.Payload),
		msg.Timestamp,
	)
	return err
}

func payloadUserID(msg Message) (string, error) {
	switch msg.EventType {
	case events.TypeActivityLogged:
		var evt events.ActivityLogged
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return "", fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		if evt.ActivityID == "" {
			return "", fmt.Errorf("%s without activity_id", msg.EventType)
		}
		return evt.UserID, nil
	case events.TypeOffsetPurchased:
		var evt events.OffsetPurchased
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return "", fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
		if evt.OffsetID == "" {
			return "", fmt.Errorf("%s without offset_id", msg.EventType)
		}
		return evt.UserID, nil
	default:
		return "", nil
	}
}
