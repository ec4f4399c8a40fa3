package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"talentflow/pkg/domain"
	txcontext "talentflow/pkg/platform/tx"
)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Upsert(ctx context.Context, m Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO organization_members (organization_id, user_id, display_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, role = EXCLUDED.role
	`
	_, err := txcontext.Exec(ctx, d.db).ExecContext(ctx, query,
		m.OrganizationID.String(), m.UserID.String(), m.DisplayName, m.Role.String())
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) MembersWithRoles(ctx context.Context, org domain.OrganizationID, roles []domain.Role) ([]domain.UserID, error) {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	query := `
		SELECT user_id FROM organization_members
		WHERE organization_id = $1 AND role = ANY($2)
		ORDER BY user_id
	`
	rows, err := txcontext.Exec(ctx, d.db).QueryContext(ctx, query, org.String(), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var out []domain.UserID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, domain.UserID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return out, nil
}
