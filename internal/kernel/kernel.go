// Package kernel implements C12: the per-operation deadline wrapper and
// circuit breaker registry shared by every component that reaches outside
// its own process. Grounded on the teacher's internal/circuitbreaker
// package (kept verbatim as the breaker implementation) and its
// retry_wrapper-style composition of context deadlines around a call.
package kernel

import (
	"context"
	"time"

	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/config"
	mnemoerrors "mnemolite/internal/errors"
)

// Operation names the deadline table in config.TimeoutsConfig; used both
// to look up the configured duration and to label a Timeout error.
type Operation string

const (
	OpASTParse          Operation = "ast_parse"
	OpEmbeddingSingle   Operation = "embedding_single"
	OpEmbeddingBatch    Operation = "embedding_batch"
	OpGraphConstruction Operation = "graph_construction"
	OpGraphTraversal    Operation = "graph_traversal"
	OpIndexFile         Operation = "index_file"
	OpLexicalSearch     Operation = "lexical_search"
	OpVectorSearch      Operation = "vector_search"
	OpHybridSearch      Operation = "hybrid_search"
)

// Kernel wraps calls with a per-operation deadline and tracks named
// circuit breakers (one per out-of-process dependency: the embedding
// provider, the L2 cache) for Health() reporting.
type Kernel struct {
	timeouts config.TimeoutsConfig
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// New builds a Kernel from the engine's timeout table. Breakers are
// registered separately via Register, since each is constructed by the
// component that owns the dependency (embeddings.CachedService,
// cache.Cascade), not by the kernel itself.
func New(timeouts config.TimeoutsConfig) *Kernel {
	return &Kernel{timeouts: timeouts, breakers: make(map[string]*circuitbreaker.CircuitBreaker)}
}

// Register associates a name with a circuit breaker so Health() can report
// its state. Call once per breaker at construction time.
func (k *Kernel) Register(name string, cb *circuitbreaker.CircuitBreaker) {
	k.breakers[name] = cb
}

func (k *Kernel) timeoutFor(op Operation) time.Duration {
	switch op {
	case OpASTParse:
		return k.timeouts.ASTParse
	case OpEmbeddingSingle:
		return k.timeouts.EmbeddingSingle
	case OpEmbeddingBatch:
		return k.timeouts.EmbeddingBatch
	case OpGraphConstruction:
		return k.timeouts.GraphConstruction
	case OpGraphTraversal:
		return k.timeouts.GraphTraversal
	case OpIndexFile:
		return k.timeouts.IndexFile
	case OpLexicalSearch:
		return k.timeouts.LexicalSearch
	case OpVectorSearch:
		return k.timeouts.VectorSearch
	case OpHybridSearch:
		return k.timeouts.HybridSearch
	default:
		return 30 * time.Second
	}
}

// WithTimeout derives a child context bounded by op's configured timeout,
// for long-running multi-step spans (one file's full chunk/embed/commit
// cycle, graph construction) where goroutine-wrapped Do would leak a
// runaway goroutine past the deadline for no benefit — the callee already
// plumbs ctx through every blocking call it makes.
func (k *Kernel) WithTimeout(ctx context.Context, op Operation) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, k.timeoutFor(op))
}

// Do runs fn under a deadline derived from op's configured timeout. A
// deadline expiry surfaces as the canonical Timeout error carrying
// {operation, timeout, elapsed}; fn's own error is returned unchanged
// otherwise.
func (k *Kernel) Do(ctx context.Context, op Operation, fn func(context.Context) error) error {
	timeout := k.timeoutFor(op)
	start := time.Now()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if opCtx.Err() == context.DeadlineExceeded {
			return mnemoerrors.NewTimeout(string(op), timeout, time.Since(start))
		}
		return opCtx.Err()
	}
}

// Status is the health classification returned by Health().
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// HealthReport mirrors spec.md §6's Health() response shape.
type HealthReport struct {
	Status               Status                           `json:"status"`
	CircuitBreakers      map[string]circuitbreaker.State  `json:"circuit_breakers"`
	CriticalCircuitsOpen []string                         `json:"critical_circuits_open"`
	Stats                map[string]circuitbreaker.Stats  `json:"-"`
}

// Health aggregates every registered breaker's state. Any OPEN breaker
// makes the report at least degraded; if every breaker is open the report
// is critical.
func (k *Kernel) Health() HealthReport {
	states := make(map[string]circuitbreaker.State, len(k.breakers))
	stats := make(map[string]circuitbreaker.Stats, len(k.breakers))
	var open []string

	for name, cb := range k.breakers {
		state := cb.GetState()
		states[name] = state
		stats[name] = cb.GetStats()
		if state == circuitbreaker.StateOpen {
			open = append(open, name)
		}
	}

	status := StatusHealthy
	switch {
	case len(k.breakers) > 0 && len(open) == len(k.breakers):
		status = StatusCritical
	case len(open) > 0:
		status = StatusDegraded
	}

	return HealthReport{Status: status, CircuitBreakers: states, CriticalCircuitsOpen: open, Stats: stats}
}
