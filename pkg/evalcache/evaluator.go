package evalcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/45ck/Portarium-sub009/pkg/canonicalize"
	"github.com/45ck/Portarium-sub009/pkg/governance"
	"github.com/45ck/Portarium-sub009/pkg/sod"
)

// keyVersion is bumped whenever the cached Result shape changes.
const keyVersion = "governance.EvaluateMany/v1"

// Stats counts cache outcomes.
type Stats struct {
	Hits     int64
	Misses   int64
	Failures int64
	// Bypassed counts inputs that have no exact memo key and were
	// evaluated without touching the store.
	Bypassed int64
}

// Evaluator wraps governance.EvaluateMany with a Store. Store failures are
// logged and the result is computed directly; they never change a decision.
type Evaluator struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	hits, misses, failures, bypassed atomic.Int64
}

// NewEvaluator creates a memoizing evaluator.
func NewEvaluator(store Store, ttl time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "evalcache"),
	}
}

// Key returns the memo key for (policies, ctx). Keys compare strings byte
// for byte, matching how sod.Evaluate compares user IDs and duty keys.
func Key(policies []governance.Policy, ctx sod.Context) (string, error) {
	if policies == nil {
		policies = []governance.Policy{}
	}
	return canonicalize.Fingerprint(keyVersion, policies, ctx)
}

// EvaluateMany returns the cached aggregate for (policies, sctx), computing
// and storing it on a miss.
func (e *Evaluator) EvaluateMany(ctx context.Context, policies []governance.Policy, sctx sod.Context) governance.Result {
	key, err := Key(policies, sctx)
	if errors.Is(err, canonicalize.ErrInvalidUTF8) {
		e.bypassed.Add(1)
		e.logger.Debug("input not cacheable, evaluating directly", "error", err)
		return governance.EvaluateMany(policies, sctx)
	}
	if err != nil {
		e.failures.Add(1)
		e.logger.Warn("fingerprint failed, evaluating directly", "error", err)
		return governance.EvaluateMany(policies, sctx)
	}

	data, ok, err := e.store.Get(ctx, key)
	switch {
	case err != nil:
		e.failures.Add(1)
		e.logger.Warn("cache read failed, evaluating directly", "key", key, "error", err)
	case ok:
		var cached governance.Result
		if err := json.Unmarshal(data, &cached); err == nil {
			e.hits.Add(1)
			return cached
		}
		e.failures.Add(1)
		e.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	e.misses.Add(1)
	result := governance.EvaluateMany(policies, sctx)

	encoded, err := json.Marshal(result)
	if err != nil {
		e.failures.Add(1)
		e.logger.Warn("encode result failed", "error", err)
		return result
	}
	if err := e.store.Set(ctx, key, encoded, e.ttl); err != nil {
		e.failures.Add(1)
		e.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return result
}

// Stats returns a snapshot of cache outcomes.
func (e *Evaluator) Stats() Stats {
	return Stats{
		Hits:     e.hits.Load(),
		Misses:   e.misses.Load(),
		Failures: e.failures.Load(),
		Bypassed: e.bypassed.Load(),
	}
}
