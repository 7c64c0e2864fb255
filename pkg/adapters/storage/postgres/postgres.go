package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store implements WorkflowRepository and DraftStore using PostgreSQL via pgx
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store backed by the given pgx connection pool
func New(db *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}
