package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eval-hub/student-evaluation-hub/internal/domain/evaluation"
)

// EvaluationCache stores evaluation records in Redis keyed by period and
// student identifier.
type EvaluationCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewEvaluationCache creates a new EvaluationCache.
func NewEvaluationCache(cache *Cache) *EvaluationCache {
	return &EvaluationCache{
		cache: cache,
		ttl:   TTLEvaluationCache,
	}
}

// Get returns a cached record or ErrCacheMiss.
func (c *EvaluationCache) Get(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	var rec evaluation.Record
	if err := c.cache.Get(ctx, EvaluationKey(key.StudentsID, key.Period), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Set caches a record.
func (c *EvaluationCache) Set(ctx context.Context, rec *evaluation.Record) error {
	if rec == nil {
		return nil
	}
	return c.cache.Set(ctx, EvaluationKey(rec.StudentsID, rec.Period), rec, c.ttl)
}

// Invalidate removes a record from cache.
func (c *EvaluationCache) Invalidate(ctx context.Context, key evaluation.RecordKey) error {
	return c.cache.Delete(ctx, EvaluationKey(key.StudentsID, key.Period))
}

// InvalidateAll clears the evaluation cache.
func (c *EvaluationCache) InvalidateAll(ctx context.Context) error {
	return c.cache.DeleteByPattern(ctx, PrefixEvaluation+"*")
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHED REPOSITORY DECORATOR
// ══════════════════════════════════════════════════════════════════════════════

// CachedRepository wraps an evaluation.Repository with read-through caching.
// Writes go to the underlying repository first and invalidate the cached
// entry, so a stale agent or teacher evaluation is never served after an
// upsert. Cache failures degrade to direct repository access.
type CachedRepository struct {
	repo   evaluation.Repository
	cache  *EvaluationCache
	logger *slog.Logger
}

// NewCachedRepository creates a new CachedRepository.
func NewCachedRepository(repo evaluation.Repository, cache *EvaluationCache, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{
		repo:   repo,
		cache:  cache,
		logger: logger,
	}
}

// UpsertAgentEvaluation writes through to the repository and invalidates
// the cached record.
func (r *CachedRepository) UpsertAgentEvaluation(ctx context.Context, key evaluation.RecordKey, eval, evaluationDate string) error {
	if err := r.repo.UpsertAgentEvaluation(ctx, key, eval, evaluationDate); err != nil {
		return err
	}
	r.invalidate(ctx, key)
	return nil
}

// SetTeacherEvaluation writes through to the repository and invalidates
// the cached record.
func (r *CachedRepository) SetTeacherEvaluation(ctx context.Context, key evaluation.RecordKey, text string) error {
	if err := r.repo.SetTeacherEvaluation(ctx, key, text); err != nil {
		return err
	}
	r.invalidate(ctx, key)
	return nil
}

// invalidate drops the cached record for key. Cache failures are logged
// and otherwise ignored so writes are never blocked by the cache.
func (r *CachedRepository) invalidate(ctx context.Context, key evaluation.RecordKey) {
	if err := r.cache.Invalidate(ctx, key); err != nil {
		r.logger.Warn("evaluation cache invalidation failed", "error", err)
	}
}

// Find returns a record, serving from cache when possible.
func (r *CachedRepository) Find(ctx context.Context, key evaluation.RecordKey) (*evaluation.Record, error) {
	rec, err := r.cache.Get(ctx, key)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("evaluation cache read failed", "error", err)
	}

	rec, err = r.repo.Find(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, rec); err != nil {
		r.logger.Warn("evaluation cache write failed", "error", err)
	}

	return rec, nil
}

// ListByPeriod always reads from the repository. Period listings are an
// operator-facing view and must reflect the latest writes.
func (r *CachedRepository) ListByPeriod(ctx context.Context, period string) ([]*evaluation.Record, error) {
	return r.repo.ListByPeriod(ctx, period)
}
