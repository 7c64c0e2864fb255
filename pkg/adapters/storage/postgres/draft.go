package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

// SaveDraft upserts the draft stored under key
func (s *Store) SaveDraft(ctx context.Context, key string, wf *domain.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO editor_drafts (key, workflow) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET workflow = EXCLUDED.workflow, updated_at = NOW()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft fetches the draft stored under key
func (s *Store) LoadDraft(ctx context.Context, key string) (*domain.Workflow, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT workflow FROM editor_drafts WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrDraftNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &wf, nil
}

// DeleteDraft deletes the draft stored under key.
// No error if the draft doesn't exist.
func (s *Store) DeleteDraft(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM editor_drafts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// PurgeDrafts deletes drafts not updated within maxAge and returns how
// many were removed
func (s *Store) PurgeDrafts(ctx context.Context, maxAge time.Duration) (int64, error) {
	ct, err := s.db.Exec(ctx,
		`DELETE FROM editor_drafts WHERE updated_at < $1`, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("purge drafts: %w", err)
	}
	return ct.RowsAffected(), nil
}
