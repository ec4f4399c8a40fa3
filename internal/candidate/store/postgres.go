package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"talentflow/internal/candidate/models"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
	txcontext "talentflow/pkg/platform/tx"
)

// PostgresStore persists candidates and history. Every method joins the
// transaction bound to ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Candidate) error {
	query := `
		INSERT INTO candidates (id, organization_id, full_name, state, version, assigned_manager_id, portal_user_id, state_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (organization_id, id) DO NOTHING
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		c.ID.String(), c.OrganizationID.String(), c.FullName, c.State.String(), c.Version,
		nullable(c.AssignedManagerID.String()), nullable(c.PortalUserID.String()), c.StateChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("candidate %s: %w", c.ID, sentinel.ErrDuplicate)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) (*models.Candidate, error) {
	query := `
		SELECT id, organization_id, full_name, state, version,
		       COALESCE(assigned_manager_id, ''), COALESCE(portal_user_id, ''), state_changed_at
		FROM candidates
		WHERE organization_id = $1 AND id = $2
	`
	var (
		c                    models.Candidate
		cid, oid, state      string
		managerID, portalUID string
	)
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, org.String(), id.String()).Scan(
		&cid, &oid, &c.FullName, &state, &c.Version, &managerID, &portalUID, &c.StateChangedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select candidate: %w", err)
	}
	c.ID = domain.CandidateID(cid)
	c.OrganizationID = domain.OrganizationID(oid)
	c.State = models.State(state)
	c.AssignedManagerID = domain.UserID(managerID)
	c.PortalUserID = domain.UserID(portalUID)
	c.StateChangedAt = c.StateChangedAt.UTC()
	return &c, nil
}

// CompareAndSwap updates only if the stored version still equals
// expectedVersion. Zero rows affected means another writer won.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, next *models.Candidate, expectedVersion int64) error {
	query := `
		UPDATE candidates
		SET state = $1, version = $2, state_changed_at = $3
		WHERE organization_id = $4 AND id = $5 AND version = $6
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		next.State.String(), next.Version, next.StateChangedAt,
		next.OrganizationID.String(), next.ID.String(), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update candidate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update candidate rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("candidate %s version %d: %w", next.ID, expectedVersion, sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, t *models.StateTransition) error {
	query := `
		INSERT INTO candidate_state_transitions
			(candidate_id, organization_id, previous_state, new_state, changed_by, changed_by_name, comment, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		t.CandidateID.String(), t.OrganizationID.String(), t.PreviousState.String(), t.NewState.String(),
		t.ChangedBy.String(), t.ChangedByName, nullable(t.Comment), t.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCandidate(ctx context.Context, org domain.OrganizationID, id domain.CandidateID) ([]*models.StateTransition, error) {
	query := `
		SELECT previous_state, new_state, changed_by, changed_by_name, COALESCE(comment, ''), changed_at
		FROM candidate_state_transitions
		WHERE organization_id = $1 AND candidate_id = $2
		ORDER BY seq
	`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, org.String(), id.String())
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []*models.StateTransition
	for rows.Next() {
		var (
			t              models.StateTransition
			prev, next, by string
		)
		if err := rows.Scan(&prev, &next, &by, &t.ChangedByName, &t.Comment, &t.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.CandidateID = id
		t.OrganizationID = org
		t.PreviousState = models.State(prev)
		t.NewState = models.State(next)
		t.ChangedBy = domain.UserID(by)
		t.ChangedAt = t.ChangedAt.UTC()
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
