package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"talentflow/internal/events"
	"talentflow/internal/notification/models"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
	txcontext "talentflow/pkg/platform/tx"
)

const batchTxTimeout = 5 * time.Second

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertBatch(ctx context.Context, batch []*models.Notification) ([]*models.Notification, error) {
	var inserted []*models.Notification
	err := txcontext.Run(ctx, s.db, batchTxTimeout, func(ctx context.Context) error {
		inserted = inserted[:0]
		for _, n := range batch {
			ok, err := s.insert(ctx, n)
			if err != nil {
				return err
			}
			if ok {
				inserted = append(inserted, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *PostgresStore) insert(ctx context.Context, n *models.Notification) (bool, error) {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal notification metadata: %w", err)
	}
	if n.Metadata == nil {
		meta = []byte("{}")
	}
	query := `
		INSERT INTO notifications (id, idempotency_key, type, organization_id, recipient_user_id, audience_roles,
			candidate_id, interview_id, title, message, read, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $12)
		ON CONFLICT ON CONSTRAINT notifications_idempotency_key_key DO NOTHING
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(n.ID), n.IdempotencyKey, n.Type.String(), n.OrganizationID.String(),
		nullable(n.RecipientUserID.String()), pq.Array(roleNames(n.AudienceRoles)),
		nullable(n.CandidateID.String()), nullable(string(n.InterviewID)),
		n.Title, n.Message, meta, n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert notification rows: %w", err)
	}
	return affected == 1, nil
}

// viewerRead is the read flag as seen by $2: direct rows carry it, broadcast
// rows use the viewer's receipt.
const viewerRead = `CASE WHEN n.recipient_user_id IS NULL THEN r.user_id IS NOT NULL ELSE n.read END`

func (s *PostgresStore) List(ctx context.Context, v models.Viewer, f models.ListFilter) ([]*models.Notification, error) {
	order := "DESC"
	if f.OldestFirst {
		order = "ASC"
	}
	args := []any{v.OrganizationID.String(), v.UserID.String(), v.Role.String(), f.UnreadOnly, f.EffectiveLimit()}
	after := ""
	if f.After != nil {
		cmp := ">"
		if !f.OldestFirst {
			cmp = "<"
		}
		after = `AND (n.created_at, n.id) ` + cmp + ` ($6, $7)`
		args = append(args, f.After.CreatedAt, uuid.UUID(f.After.ID))
	}
	query := `
		SELECT n.id, n.idempotency_key, n.type, n.organization_id, COALESCE(n.recipient_user_id, ''),
		       n.audience_roles, COALESCE(n.candidate_id, ''), COALESCE(n.interview_id, ''),
		       n.title, n.message, ` + viewerRead + `, n.metadata, n.created_at
		FROM notifications n
		LEFT JOIN notification_receipts r ON r.notification_id = n.id AND r.user_id = $2
		WHERE n.organization_id = $1
		  AND (n.recipient_user_id = $2 OR (n.recipient_user_id IS NULL AND $3 = ANY(n.audience_roles)))
		  AND (NOT $4 OR NOT (` + viewerRead + `))
		  ` + after + `
		ORDER BY n.created_at ` + order + `, n.id ` + order + `
		LIMIT $5
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func scanNotification(rows *sql.Rows) (*models.Notification, error) {
	var (
		n                                 models.Notification
		id                                uuid.UUID
		typ, org, recipient, cand, interv string
		roles                             []string
		meta                              []byte
	)
	if err := rows.Scan(&id, &n.IdempotencyKey, &typ, &org, &recipient, pq.Array(&roles),
		&cand, &interv, &n.Title, &n.Message, &n.Read, &meta, &n.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.ID = domain.NotificationID(id)
	n.Type = events.Type(typ)
	n.OrganizationID = domain.OrganizationID(org)
	n.RecipientUserID = domain.UserID(recipient)
	n.CandidateID = domain.CandidateID(cand)
	n.InterviewID = domain.InterviewID(interv)
	n.CreatedAt = n.CreatedAt.UTC()
	for _, r := range roles {
		n.AudienceRoles = append(n.AudienceRoles, domain.Role(r))
	}
	if len(meta) > 0 && string(meta) != "{}" {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("decode notification metadata: %w", err)
		}
	}
	return &n, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, v models.Viewer, id domain.NotificationID, at time.Time) error {
	return txcontext.Run(ctx, s.db, batchTxTimeout, func(ctx context.Context) error {
		var (
			recipient sql.NullString
			roles     []string
		)
		err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
			`SELECT recipient_user_id, audience_roles FROM notifications WHERE id = $1 AND organization_id = $2`,
			uuid.UUID(id), v.OrganizationID.String(),
		).Scan(&recipient, pq.Array(&roles))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("notification %s: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("select notification: %w", err)
		}

		if recipient.Valid {
			if recipient.String != v.UserID.String() {
				return fmt.Errorf("notification %s: %w", id, sentinel.ErrNotFound)
			}
			_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx,
				`UPDATE notifications SET read = true WHERE id = $1 AND read = false`, uuid.UUID(id))
			if err != nil {
				return fmt.Errorf("mark notification read: %w", err)
			}
			return nil
		}

		if !containsRole(roles, v.Role) {
			return fmt.Errorf("notification %s: %w", id, sentinel.ErrNotFound)
		}
		_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
			INSERT INTO notification_receipts (notification_id, user_id, read_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (notification_id, user_id) DO NOTHING
		`, uuid.UUID(id), v.UserID.String(), at)
		if err != nil {
			return fmt.Errorf("insert read receipt: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, v models.Viewer, at time.Time) (int, error) {
	var total int64
	err := txcontext.Run(ctx, s.db, batchTxTimeout, func(ctx context.Context) error {
		res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE notifications SET read = true
			WHERE organization_id = $1 AND recipient_user_id = $2 AND read = false
		`, v.OrganizationID.String(), v.UserID.String())
		if err != nil {
			return fmt.Errorf("mark direct notifications read: %w", err)
		}
		direct, _ := res.RowsAffected()

		res, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, `
			INSERT INTO notification_receipts (notification_id, user_id, read_at)
			SELECT n.id, $2, $4 FROM notifications n
			WHERE n.organization_id = $1 AND n.recipient_user_id IS NULL AND $3 = ANY(n.audience_roles)
			ON CONFLICT (notification_id, user_id) DO NOTHING
		`, v.OrganizationID.String(), v.UserID.String(), v.Role.String(), at)
		if err != nil {
			return fmt.Errorf("insert read receipts: %w", err)
		}
		broadcast, _ := res.RowsAffected()
		total = direct + broadcast
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.String())
	}
	return out
}

func containsRole(names []string, role domain.Role) bool {
	for _, n := range names {
		if n == role.String() {
			return true
		}
	}
	return false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
