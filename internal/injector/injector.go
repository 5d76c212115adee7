// Package injector implements the context injector (component C8): a
// silent, timeout-bounded pipeline that turns the active conversation
// topic into a formatted block of relevant past decisions, or nothing.
//
// The injector never returns an error to its caller. Any failure — a
// storage error, a timeout, an uninitialized engine — degrades to an
// empty string plus one log line, because a failed memory lookup must
// never block or corrupt the conversation it's trying to help.
package injector

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mama-memory/mama/internal/config"
	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/embedding"
	"github.com/mama-memory/mama/internal/formatter"
	"github.com/mama-memory/mama/internal/graph"
	"github.com/mama-memory/mama/internal/scorer"
	"github.com/mama-memory/mama/internal/storage"
)

// DefaultTimeout bounds the whole embed→search→score→format pipeline. A
// slow disk or a cold cache must not stall the caller past this.
const DefaultTimeout = 5 * time.Second

// Injector wires the retrieval pipeline components behind a single-flight
// guard keyed by the query text, so concurrent callers with the same query
// share one pipeline run. It does no initialization of its own: the store
// is already open when New is called.
type Injector struct {
	store   *storage.Store
	embed   *embedding.Service
	repo    *decision.Repository
	graph   *graph.Graph
	cfg     config.ScorerConfig
	logger  *slog.Logger
	group   singleflight.Group
	timeout time.Duration
}

// New wires an Injector to an already-open store and embedding service.
func New(store *storage.Store, embed *embedding.Service, cfg config.ScorerConfig, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		store:   store,
		embed:   embed,
		repo:    decision.New(store, embed),
		graph:   graph.New(store),
		cfg:     cfg,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// Inject runs the retrieval pipeline for query and returns a rendered
// block, or "" on any failure, timeout, or empty result set. It never
// panics and never returns an error — callers can inline the result
// directly into a prompt without checking anything else.
func (in *Injector) Inject(ctx context.Context, query string, preset formatter.Preset) string {
	v, err, _ := in.group.Do(query, func() (any, error) {
		return in.run(ctx, query, preset)
	})
	if err != nil {
		in.logger.Warn("context injection failed", "error", err)
		return ""
	}
	s, _ := v.(string)
	return s
}

func (in *Injector) run(ctx context.Context, query string, preset formatter.Preset) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := in.pipeline(ctx, query, preset)
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (in *Injector) pipeline(ctx context.Context, query string, preset formatter.Preset) (string, error) {
	// Degraded tier: vector search unavailable. The design explicitly
	// forbids substituting a keyword (or any other) fallback here — the
	// injector must surface nothing rather than mask a broken install.
	if in.store.Vector() == nil || !in.store.Vector().Enabled() {
		return "", nil
	}

	vec := in.embed.Embed(query)
	hits := in.store.Vector().Search(vec, in.cfg.TopK*4)
	if len(hits) == 0 {
		return "", nil
	}

	candidates := make([]scorer.Candidate, 0, len(hits))
	for _, h := range hits {
		d, err := in.decisionByRowid(ctx, h.Rowid)
		if err != nil {
			continue
		}
		candidates = append(candidates, scorer.Candidate{Decision: d, Similarity: h.Similarity})
	}
	// Fold each hit's own evolution chain into the candidate set, keyed by
	// the decision's real topic field — never the query text itself, which
	// would be the keyword fallback this package's contract forbids.
	candidates = scorer.MergeGraphChain(ctx, candidates, in.graph.QueryChain)

	threshold := scorer.AdaptiveThreshold(query, in.cfg)
	now := time.Now()
	topK := scorer.TopK(candidates, threshold, in.cfg.TopK, now, in.cfg)
	if len(topK) == 0 {
		return "", nil
	}

	for _, s := range topK {
		_ = in.repo.IncrementUsage(ctx, s.Decision.ID, nil)
	}
	return formatter.Render(topK, preset, now), nil
}

func (in *Injector) decisionByRowid(ctx context.Context, rowid int64) (decision.Decision, error) {
	row := in.store.DB().QueryRowContext(ctx, `SELECT id FROM decisions WHERE rowid = ?`, rowid)
	var id string
	if err := row.Scan(&id); err != nil {
		return decision.Decision{}, err
	}
	return in.repo.GetByID(ctx, id)
}
