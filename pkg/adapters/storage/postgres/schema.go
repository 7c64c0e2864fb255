package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS editor_workflows (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'draft',
    nodes       JSONB NOT NULL DEFAULT '[]',
    edges       JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS editor_drafts (
    key        TEXT PRIMARY KEY,
    workflow   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_editor_workflows_created ON editor_workflows(created_at);
CREATE INDEX IF NOT EXISTS idx_editor_drafts_updated   ON editor_drafts(updated_at);
`

// CreateSchema creates the workflow and draft tables if they don't exist
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops the workflow and draft tables
func (s *Store) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS editor_drafts, editor_workflows;`)
	return err
}
