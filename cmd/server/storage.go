package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"talentflow/internal/candidate/models"
	candidateservice "talentflow/internal/candidate/service"
	candidatestore "talentflow/internal/candidate/store"
	"talentflow/internal/directory"
	"talentflow/internal/eventbus/outbox"
	"talentflow/internal/notification/builder"
	notificationservice "talentflow/internal/notification/service"
	notificationstore "talentflow/internal/notification/store"
	"talentflow/internal/platform/config"
	"talentflow/internal/platform/postgres"
	"talentflow/pkg/domain"
	"talentflow/pkg/platform/sentinel"
)

type candidateStore interface {
	candidateservice.CandidateStore
	Create(ctx context.Context, c *models.Candidate) error
}

type notificationStore interface {
	notificationservice.Store
	builder.Store
}

type memberDirectory interface {
	builder.Directory
	Upsert(ctx context.Context, m directory.Member) error
}

// storage groups the stores of one backend.
type storage struct {
	db            *sql.DB
	tx            candidateservice.TxRunner
	candidates    candidateStore
	history       candidateservice.HistoryStore
	notifications notificationStore
	directory     memberDirectory
	outbox        outbox.Store
}

func (s *storage) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStorage uses Postgres when DATABASE_URL is set and in-memory stores
// otherwise.
func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	if cfg.Postgres.URL == "" {
		log.Warn("DATABASE_URL not set, state is kept in memory")
		cands := candidatestore.NewInMemoryStore()
		box := outbox.NewInMemoryStore()
		return &storage{
			tx:            candidateservice.NewMemoryTx(cands, box),
			candidates:    cands,
			history:       cands,
			notifications: notificationstore.NewInMemoryStore(),
			directory:     directory.NewInMemoryDirectory(),
			outbox:        box,
		}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	cands := candidatestore.NewPostgresStore(db)
	box := outbox.NewPostgresStore(db)
	return &storage{
		db: db,
		tx: newCandidatePostgresTx(db, candidateservice.TxStores{
			Candidates: cands,
			History:    cands,
			Outbox:     box,
		}),
		candidates:    cands,
		history:       cands,
		notifications: notificationstore.NewPostgresStore(db),
		directory:     directory.NewPostgresDirectory(db),
		outbox:        box,
	}, nil
}

// seedDemo loads one organization with a member per role and a fresh
// candidate. It is safe to run on every start.
func seedDemo(ctx context.Context, st *storage, now time.Time) error {
	const org domain.OrganizationID = "acme"
	members := []directory.Member{
		{OrganizationID: org, UserID: "rh-1", DisplayName: "Rita Recruiter", Role: domain.RoleRH},
		{OrganizationID: org, UserID: "mgr-1", DisplayName: "Marc Manager", Role: domain.RoleManager},
		{OrganizationID: org, UserID: "admin-1", DisplayName: "Ada Admin", Role: domain.RoleAdmin},
		{OrganizationID: org, UserID: "cand-user-42", DisplayName: "Camille Candidate", Role: domain.RoleCandidate},
	}
	for _, m := range members {
		if err := st.directory.Upsert(ctx, m); err != nil {
			return fmt.Errorf("member %s: %w", m.UserID, err)
		}
	}

	c, err := models.NewCandidate("42", org, "Camille Candidate", now)
	if err != nil {
		return err
	}
	c.AssignedManagerID = "mgr-1"
	c.PortalUserID = "cand-user-42"
	if err := st.candidates.Create(ctx, c); err != nil && !errors.Is(err, sentinel.ErrDuplicate) {
		return fmt.Errorf("candidate %s: %w", c.ID, err)
	}
	return nil
}
