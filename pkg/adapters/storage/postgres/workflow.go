package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

const workflowColumns = `id, name, description, status, nodes, edges, created_at, updated_at`

// List returns all workflows ordered by created_at.
// Returns an empty slice (not nil) if none found.
func (s *Store) List(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM editor_workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []domain.Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows workflows: %w", err)
	}
	return workflows, nil
}

// Get fetches a workflow by id
func (s *Store) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM editor_workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	return wf, err
}

// Create inserts a workflow. If wf.ID is empty, a UUID is generated.
func (s *Store) Create(ctx context.Context, wf *domain.Workflow) (*domain.Workflow, error) {
	id := wf.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := wf.Status
	if status == "" {
		status = domain.WorkflowStatusDraft
	}
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO editor_workflows (id, name, description, status, nodes, edges)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+workflowColumns,
		id, wf.Name, wf.Description, string(status), nodes, edges,
	)
	created, err := scanWorkflow(row)
	if err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}
	s.logger.Debug("workflow created", zap.String("workflow_id", created.ID))
	return created, nil
}

// Update replaces the stored fields of an existing workflow
func (s *Store) Update(ctx context.Context, id string, wf *domain.Workflow) (*domain.Workflow, error) {
	nodes, edges, err := marshalGraph(wf)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`UPDATE editor_workflows
		 SET name = $2, description = $3, status = COALESCE(NULLIF($4, ''), status),
		     nodes = $5, edges = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+workflowColumns,
		id, wf.Name, wf.Description, string(wf.Status), nodes, edges,
	)
	updated, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return updated, nil
}

// Delete removes a workflow by id
func (s *Store) Delete(ctx context.Context, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM editor_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ports.ErrWorkflowNotFound, id)
	}
	return nil
}

func marshalGraph(wf *domain.Workflow) ([]byte, []byte, error) {
	nodes := wf.Nodes
	if nodes == nil {
		nodes = []domain.Node{}
	}
	edges := wf.Edges
	if edges == nil {
		edges = []domain.Edge{}
	}
	n, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal nodes: %w", err)
	}
	e, err := json.Marshal(edges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal edges: %w", err)
	}
	return n, e, nil
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var (
		wf                   domain.Workflow
		status               string
		nodes, edges         []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &status, &nodes, &edges, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	wf.Status = domain.WorkflowStatus(status)
	wf.CreatedAt = &createdAt
	wf.UpdatedAt = &updatedAt
	return &wf, nil
}
