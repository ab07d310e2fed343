package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	audit "landdocs/pkg/platform/audit"
	txcontext "landdocs/pkg/platform/tx"

	"github.com/google/uuid"
)

// Schema creates the outbox table. Relay to Kafka is done by a separate
// process reading this table in created_at order.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	published_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS audit_outbox_aggregate ON audit_outbox (aggregate_id, created_at);
`

// Store implements audit.Store using the transactional outbox pattern.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure relayed to Kafka.
type outboxPayload struct {
	ID         string            `json:"id"`
	Category   string            `json:"category"`
	Kind       string            `json:"kind"`
	Timestamp  string            `json:"timestamp"`
	DocumentID string            `json:"document_id"`
	CaseFileID string            `json:"case_file_id,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (p outboxPayload) event() audit.Event {
	ts, _ := time.Parse(time.RFC3339Nano, p.Timestamp)
	return audit.Event{
		Category:   audit.EventCategory(p.Category),
		Kind:       audit.EventKind(p.Kind),
		Timestamp:  ts,
		DocumentID: p.DocumentID,
		CaseFileID: p.CaseFileID,
		ActorID:    p.ActorID,
		RequestID:  p.RequestID,
		Fields:     p.Fields,
	}
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()
	category := event.Category
	if category == "" {
		category = event.Kind.Category()
	}

	payload := outboxPayload{
		ID:         eventID.String(),
		Category:   string(category),
		Kind:       string(event.Kind),
		Timestamp:  event.Timestamp.Format(time.RFC3339Nano),
		DocumentID: event.DocumentID,
		CaseFileID: event.CaseFileID,
		ActorID:    event.ActorID,
		RequestID:  event.RequestID,
		Fields:     event.Fields,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Or(ctx, s.db).ExecContext(ctx, query,
		eventID,
		"document",
		event.DocumentID,
		string(event.Kind),
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByDocument returns outbox events for a document in creation order.
func (s *Store) ListByDocument(ctx context.Context, documentID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM audit_outbox
		WHERE aggregate_id = $1
		ORDER BY created_at ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan audit outbox: %w", err)
		}
		var p outboxPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("unmarshal audit payload: %w", err)
		}
		events = append(events, p.event())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outbox: %w", err)
	}
	return events, nil
}

// Relay hands up to limit unpublished entries to publish, oldest first, and
// marks the ones that succeeded. Rows are claimed with SKIP LOCKED so several
// relays can run side by side. It stops at the first publish failure so
// ordering per document is preserved.
func (s *Store) Relay(ctx context.Context, limit int, publish func(context.Context, audit.Event) error) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin relay tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox entries: %w", err)
	}
	type claimed struct {
		id      uuid.UUID
		payload outboxPayload
	}
	var batch []claimed
	for rows.Next() {
		var c claimed
		var raw []byte
		if err := rows.Scan(&c.id, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox entry: %w", err)
		}
		if err := json.Unmarshal(raw, &c.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("unmarshal outbox entry %s: %w", c.id, err)
		}
		batch = append(batch, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox entries: %w", err)
	}

	published := 0
	var publishErr error
	for _, c := range batch {
		if publishErr = publish(ctx, c.payload.event()); publishErr != nil {
			break
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = NOW() WHERE id = $1`, c.id); err != nil {
			return 0, fmt.Errorf("mark outbox entry published: %w", err)
		}
		published++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit relay tx: %w", err)
	}
	if publishErr != nil {
		return published, fmt.Errorf("publish outbox entry: %w", publishErr)
	}
	return published, nil
}
