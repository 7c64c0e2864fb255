package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-editor/pkg/domain"
	"github.com/aescanero/dago-editor/pkg/ports"
)

const draftKeyPrefix = "dago-editor:draft:"

// DraftStore implements DraftStore using Redis
type DraftStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewDraftStore creates a Redis draft store. Drafts expire after ttl; a
// zero ttl keeps them until deleted.
func NewDraftStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *DraftStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveDraft stores wf under key and refreshes its TTL
func (s *DraftStore) SaveDraft(ctx context.Context, key string, wf *domain.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	if err := s.client.Set(ctx, draftKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	s.logger.Debug("draft saved",
		zap.String("draft_key", key),
		zap.Int("nodes", len(wf.Nodes)))
	return nil
}

// LoadDraft returns the draft stored under key
func (s *DraftStore) LoadDraft(ctx context.Context, key string) (*domain.Workflow, error) {
	data, err := s.client.Get(ctx, draftKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ports.ErrDraftNotFound, key)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &wf, nil
}

// DeleteDraft removes the draft stored under key
func (s *DraftStore) DeleteDraft(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, draftKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// ListDrafts returns the keys of all stored drafts
func (s *DraftStore) ListDrafts(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, draftKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan drafts: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, k[len(draftKeyPrefix):])
		}

		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func draftKey(key string) string {
	return draftKeyPrefix + key
}
