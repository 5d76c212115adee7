// Package engine is the façade (component C9): the five stable operations
// (save, recall, list, suggest, update_outcome) a host application calls,
// each validating its own input and never throwing for a caller mistake.
// None of the five returns a Go error: internal and I/O failures are also
// reported through the Result envelope, with Success false and the error
// text as Message.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mama-memory/mama/internal/config"
	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/embedding"
	"github.com/mama-memory/mama/internal/formatter"
	"github.com/mama-memory/mama/internal/graph"
	"github.com/mama-memory/mama/internal/injector"
	"github.com/mama-memory/mama/internal/mamaerr"
	"github.com/mama-memory/mama/internal/outcome"
	"github.com/mama-memory/mama/internal/scorer"
	"github.com/mama-memory/mama/internal/storage"
)

// Result is the never-throw envelope every façade call returns for
// caller-correctable conditions: Success false + Message explains why,
// with no error value the caller has to unwrap.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Engine is the single process-wide handle wiring storage, embedding, and
// retrieval together.
type Engine struct {
	store    *storage.Store
	embed    *embedding.Service
	repo     *decision.Repository
	graph    *graph.Graph
	injector *injector.Injector
	watcher  *config.Watcher
	cfg      config.Config
	logger   *slog.Logger
}

// Open wires a complete Engine from cfg: opens the store, builds the
// embedding service, and constructs the injector pipeline.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := storage.Open(ctx, cfg.DBPath, cfg.VectorIndexDisabled)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	embed, err := embedding.New(cfg.ModelName, cfg.EmbeddingDim, 4096)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open engine: %w", err)
	}

	e := &Engine{
		store:  store,
		embed:  embed,
		repo:   decision.New(store, embed),
		graph:  graph.New(store),
		cfg:    cfg,
		logger: logger,
	}
	e.injector = injector.New(store, embed, cfg.Scorer, logger)

	// A model-identifier edit in config.json must reset the embedding
	// pipeline (and flush its content-hash cache) without a restart.
	// Failure to watch is not fatal, matching config.NewWatcher's own
	// best-effort contract.
	watcher, err := config.NewWatcher(cfg, func(updated config.Config) {
		if err := embed.Reset(updated.ModelName, updated.EmbeddingDim); err != nil {
			logger.Warn("embedding reset failed", "error", err)
			return
		}
		logger.Info("embedding pipeline reset", "model", updated.ModelName)
	})
	if err != nil {
		logger.Warn("config watch failed, model-identifier edits will not hot-reload", "error", err)
	}
	e.watcher = watcher
	return e, nil
}

// Close releases the underlying store. The config watcher's fsnotify
// goroutine, if started, has no exported stop in this viper version and is
// left running until process exit — consistent with NewWatcher's own
// best-effort contract.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Save records a new decision, chaining it onto the topic's current head.
func (e *Engine) Save(ctx context.Context, in decision.SaveInput) Result {
	id, err := e.repo.Save(ctx, in)
	if err != nil {
		return errResult(err)
	}
	e.logger.Info("saved decision", "topic", in.Topic, "id", id)
	return Result{Success: true, ID: id}
}

// Recall returns the evolution chain for topic, newest first.
func (e *Engine) Recall(ctx context.Context, topic string) ([]decision.Decision, Result) {
	chain, err := e.repo.Recall(ctx, topic)
	if err != nil {
		return nil, errResult(err)
	}
	if len(chain) == 0 {
		return nil, Result{Success: true, Message: "no decisions found for topic"}
	}
	return chain, Result{Success: true}
}

// List returns the most recently created decisions, optionally filtered
// by outcome.
func (e *Engine) List(ctx context.Context, limit int, filter decision.ListFilter) ([]decision.Decision, Result) {
	list, err := e.repo.List(ctx, limit, filter)
	if err != nil {
		return nil, errResult(err)
	}
	return list, Result{Success: true}
}

// Suggest runs the full retrieval pipeline for query and returns the
// ranked, scored candidates (for programmatic callers) — distinct from
// InjectContext, which returns the rendered text block for inlining into
// a prompt. In the degraded tier (vector index unavailable) it returns an
// empty, successful result: the design explicitly forbids substituting a
// keyword or topic-name fallback here.
func (e *Engine) Suggest(ctx context.Context, query string, topK int) ([]scorer.Scored, Result) {
	if topK <= 0 {
		topK = e.cfg.Scorer.TopK
	}
	if e.store.Vector() == nil || !e.store.Vector().Enabled() {
		return nil, Result{Success: true, Message: "vector index unavailable, no results"}
	}

	vec := e.embed.Embed(query)
	hits := e.store.Vector().Search(vec, topK*4)
	var candidates []scorer.Candidate
	for _, h := range hits {
		d, err := e.decisionByRowid(ctx, h.Rowid)
		if err != nil {
			continue
		}
		candidates = append(candidates, scorer.Candidate{Decision: d, Similarity: h.Similarity})
	}
	// Fold each hit's own evolution chain into the candidate set (keyed by
	// the decision's real topic, never the query text) so a superseded or
	// superseding sibling can still surface on recency/confidence/outcome
	// signals alone.
	candidates = scorer.MergeGraphChain(ctx, candidates, e.graph.QueryChain)

	threshold := scorer.AdaptiveThreshold(query, e.cfg.Scorer)
	topScored := scorer.TopK(candidates, threshold, topK, time.Now(), e.cfg.Scorer)
	if len(topScored) == 0 {
		return nil, Result{Success: true, Message: "no decisions met the relevance threshold"}
	}
	for _, s := range topScored {
		_ = e.repo.IncrementUsage(ctx, s.Decision.ID, nil)
	}
	return topScored, Result{Success: true}
}

// SemanticContext returns the typed relationships (refines, contradicts,
// builds_on, debates, synthesizes) touching any of ids, partitioned by
// direction. Hosts use this to explain "why this was chosen" alongside a
// Suggest or Recall result, without it being bundled into either
// operation's stable return shape.
func (e *Engine) SemanticContext(ctx context.Context, ids []string) (graph.SemanticEdges, error) {
	return e.graph.QuerySemanticEdges(ctx, ids)
}

// InjectContext renders Suggest's results into a text block suitable for
// inlining into a prompt. It never fails: any internal error degrades to
// an empty string.
func (e *Engine) InjectContext(ctx context.Context, query string, preset formatter.Preset) string {
	return e.injector.Inject(ctx, query, preset)
}

// UpdateOutcome validates and applies an outcome update to an existing
// decision, adjusting its confidence by the fixed-delta rule.
func (e *Engine) UpdateOutcome(ctx context.Context, in decision.UpdateOutcomeInput) Result {
	if err := e.repo.UpdateOutcome(ctx, in); err != nil {
		return errResult(err)
	}
	return Result{Success: true}
}

// ApplyDetectedOutcome scans text for an outcome signal and, if one is
// found and the auto-apply window for decisionID hasn't closed, writes it.
// Used by hosts that want outcome tracking without an explicit
// update_outcome call.
func (e *Engine) ApplyDetectedOutcome(ctx context.Context, decisionID, text string) Result {
	d, err := e.repo.GetByID(ctx, decisionID)
	if err != nil {
		return errResult(err)
	}
	signal, found := outcome.Analyze(text)
	if !found {
		return Result{Success: true, Message: "no outcome signal detected"}
	}
	if !outcome.ShouldAutoApply(d.CreatedAt, d.Outcome, e.cfg.Outcome.AutoApplyWindowMinutes, time.Now()) {
		return Result{Success: true, Message: "outcome already set or window elapsed"}
	}
	return e.UpdateOutcome(ctx, decision.UpdateOutcomeInput{
		DecisionID: decisionID,
		Outcome:    signal.Outcome,
	})
}

func (e *Engine) decisionByRowid(ctx context.Context, rowid int64) (decision.Decision, error) {
	row := e.store.DB().QueryRowContext(ctx, `SELECT id FROM decisions WHERE rowid = ?`, rowid)
	var id string
	if err := row.Scan(&id); err != nil {
		return decision.Decision{}, err
	}
	return e.repo.GetByID(ctx, id)
}

// errResult converts a repository error into the façade's never-throw
// envelope for validation/not-found conditions, while letting genuinely
// unexpected errors still carry their message through (callers checking
// Success never need to type-assert).
func errResult(err error) Result {
	switch {
	case errors.Is(err, mamaerr.ErrValidation):
		return Result{Success: false, Message: err.Error()}
	case errors.Is(err, mamaerr.ErrNotFound):
		return Result{Success: false, Message: "not found"}
	default:
		return Result{Success: false, Message: err.Error()}
	}
}
