package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"talentflow/internal/events"
	"talentflow/internal/platform/postgres"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
	txcontext "talentflow/pkg/platform/tx"
)

// relayLockKey identifies the advisory lock held by the single active relay.
const relayLockKey int64 = 0x7461_6c65_6e74

// PostgresStore writes events to event_outbox inside the caller's transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type storedEvent struct {
	Subjects   events.SubjectIDs `json:"subjectIds"`
	Payload    json.RawMessage   `json:"payload"`
	OccurredAt time.Time         `json:"occurredAt"`
}

func (s *PostgresStore) Enqueue(ctx context.Context, evt events.Event) error {
	body, err := json.Marshal(storedEvent{Subjects: evt.Subjects, Payload: evt.Payload, OccurredAt: evt.OccurredAt})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	query := `
		INSERT INTO event_outbox (event_id, event_type, organization_id, partition_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(evt.ID),
		string(evt.Type),
		evt.OrganizationID.String(),
		evt.PartitionKey(),
		body,
		time.Now(),
	)
	if postgres.IsUniqueViolation(err, "event_outbox_event_id_key") {
		return fmt.Errorf("enqueue event %s: %w", evt.ID, sentinel.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ProcessBatch runs in its own transaction holding a transaction-scoped
// advisory lock, so only one relay publishes at a time. A crash after publish
// and before commit leaves rows pending and they are published again.
func (s *PostgresStore) ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var locked bool
	if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, relayLockKey).Scan(&locked); err != nil {
		return 0, fmt.Errorf("acquire relay lock: %w", err)
	}
	if !locked {
		return 0, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT seq, event_id, event_type, organization_id, payload
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("query outbox: %w", err)
	}
	var (
		seqs  []int64
		batch []events.Event
	)
	for rows.Next() {
		var (
			seq     int64
			eventID uuid.UUID
			typ     string
			org     string
			body    []byte
		)
		if err := rows.Scan(&seq, &eventID, &typ, &org, &body); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		var stored storedEvent
		if err := json.Unmarshal(body, &stored); err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode outbox row %d: %w", seq, err)
		}
		seqs = append(seqs, seq)
		batch = append(batch, events.Event{
			ID:             domain.EventID(eventID),
			Type:           events.Type(typ),
			OrganizationID: domain.OrganizationID(org),
			Subjects:       stored.Subjects,
			Payload:        stored.Payload,
			OccurredAt:     stored.OccurredAt,
		})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE event_outbox SET published_at = now() WHERE seq = ANY($1)`,
		pq.Array(seqs),
	); err != nil {
		return 0, fmt.Errorf("mark outbox published: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox batch: %w", err)
	}
	return len(batch), nil
}
