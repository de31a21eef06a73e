package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"changeflow.io/changeflow/internal/domain"
)

const uniqueViolation = "23505"

// Schema creates the entity table and the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS change_entities (
	entity_type          TEXT        NOT NULL,
	id                   TEXT        NOT NULL,
	status               TEXT        NOT NULL,
	submitter_id         TEXT        NOT NULL DEFAULT '',
	assignee_id          TEXT        NOT NULL DEFAULT '',
	submitter_department TEXT        NOT NULL DEFAULT '',
	assignee_department  TEXT        NOT NULL DEFAULT '',
	organization_id      TEXT        NOT NULL DEFAULT '',
	version              BIGINT      NOT NULL DEFAULT 1,
	fields               JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT        PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	actor_id    TEXT        NOT NULL,
	role        TEXT        NOT NULL,
	entity_type TEXT        NOT NULL,
	entity_id   TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	context     JSONB       NOT NULL DEFAULT '{}'::jsonb,
	allowed     BOOLEAN     NOT NULL,
	reasons     JSONB       NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id, created_at);
`

// EnsureSchema creates the tables used by PostgresStore and the audit sink.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PostgresStore keeps entities in change_entities with their domain fields
// as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const selectEntity = `
SELECT entity_type, id, status, submitter_id, assignee_id, submitter_department,
       assignee_department, organization_id, version, fields
FROM change_entities
WHERE entity_type = $1 AND id = $2`

func scanEntity(row pgx.Row) (*domain.Entity, error) {
	var (
		e   domain.Entity
		raw []byte
	)
	err := row.Scan(&e.Type, &e.ID, &e.Status, &e.SubmitterID, &e.AssigneeID,
		&e.SubmitterDepartment, &e.AssigneeDepartment, &e.OrganizationID, &e.Version, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Fields = domain.Fields{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	return &e, nil
}

// LoadEntity implements Store.
func (s *PostgresStore) LoadEntity(ctx context.Context, entityType domain.EntityType, id string) (*domain.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx, selectEntity, entityType, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s %s: %w", entityType, id, err)
	}
	return e, nil
}

// UpdateFields implements Store. The row is read and rewritten in one
// transaction and the UPDATE is guarded by the expected version.
func (s *PostgresStore) UpdateFields(
	ctx context.Context,
	entityType domain.EntityType,
	id string,
	expectedVersion int64,
	changes domain.Fields,
) (*domain.Entity, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEntity(tx.QueryRow(ctx, selectEntity, entityType, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s %s for update: %w", entityType, id, err)
	}
	if current.Version != expectedVersion {
		return nil, ErrConflict
	}

	updated := ApplyChanges(current, changes)
	raw, err := json.Marshal(updated.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	tag, err := tx.Exec(ctx, `
UPDATE change_entities
SET status = $1, submitter_id = $2, assignee_id = $3, fields = $4, version = $5, updated_at = now()
WHERE entity_type = $6 AND id = $7 AND version = $8`,
		updated.Status, updated.SubmitterID, updated.AssigneeID, raw, updated.Version,
		entityType, id, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", entityType, id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update tx: %w", err)
	}
	return updated, nil
}

// CreateEntity implements Store.
func (s *PostgresStore) CreateEntity(ctx context.Context, entity *domain.Entity) (*domain.Entity, error) {
	e, err := prepareNew(entity)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(e.Fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO change_entities (
	entity_type, id, status, submitter_id, assignee_id, submitter_department,
	assignee_department, organization_id, version, fields
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Type, e.ID, e.Status, e.SubmitterID, e.AssigneeID, e.SubmitterDepartment,
		e.AssigneeDepartment, e.OrganizationID, e.Version, raw,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("insert %s %s: %w", e.Type, e.ID, err)
	}
	return e, nil
}
