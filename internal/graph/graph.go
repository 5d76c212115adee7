// Package graph implements the evolution graph (component C4): recursive
// chain traversal and semantic-edge queries over the decision_edges table.
// QueryChain also serves as the scorer's (C6) lookup for folding a
// decision's own chain into an ANN-derived candidate set — see
// scorer.MergeGraphChain.
package graph

import (
	"context"
	"fmt"

	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/storage"
)

// Graph queries decision_edges directly rather than going through the
// decision repository, keeping row CRUD and graph traversal in separate
// files.
type Graph struct {
	store *storage.Store
}

func New(store *storage.Store) *Graph {
	return &Graph{store: store}
}

// QueryChain returns the chain for topic ordered by created_at descending,
// via a single recursive query rooted at the topic's head row. This mirrors
// decision.Repository.Recall's traversal; it is exposed separately here
// because chain traversal belongs to the evolution graph conceptually,
// distinct from the repository's row CRUD.
func (g *Graph) QueryChain(ctx context.Context, topic string) ([]decision.Decision, error) {
	repo := decision.New(g.store, nil)
	return repo.Recall(ctx, topic)
}

// SemanticEdges partitions the edges touching any of ids by relationship
// and direction, for enriching retrieval results with "why this was
// chosen" context.
type SemanticEdges struct {
	Refines        []decision.Edge
	RefinedBy      []decision.Edge
	Contradicts    []decision.Edge
	ContradictedBy []decision.Edge
	BuildsOn       []decision.Edge
	BuiltOnBy      []decision.Edge
	Debates        []decision.Edge
	DebatedBy      []decision.Edge
	Synthesizes    []decision.Edge
	SynthesizedBy  []decision.Edge
}

// QuerySemanticEdges returns edges touching any of ids partitioned by relationship
// and direction, restricted to approved-or-unreviewed edges.
func (g *Graph) QuerySemanticEdges(ctx context.Context, ids []string) (SemanticEdges, error) {
	var out SemanticEdges
	if len(ids) == 0 {
		return out, nil
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`
		SELECT from_id, to_id, relationship, reason, approved_by_user, created_at
		FROM decision_edges
		WHERE (approved_by_user IS NULL OR approved_by_user = 1)
		AND (from_id IN (%s) OR to_id IN (%s))
		AND relationship != 'supersedes'`, placeholders, placeholders)

	rows, err := g.store.DB().QueryContext(ctx, query, append(append([]any{}, args...), args...)...)
	if err != nil {
		return out, fmt.Errorf("query semantic edges: %w", err)
	}
	defer rows.Close()

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	for rows.Next() {
		e, err := scanEdgeRow(rows)
		if err != nil {
			return out, err
		}
		forward := idSet[e.FromID]
		classify(&out, e, forward)
	}
	return out, rows.Err()
}

func classify(out *SemanticEdges, e decision.Edge, forward bool) {
	switch e.Relationship {
	case decision.RelationshipRefines:
		if forward {
			out.Refines = append(out.Refines, e)
		} else {
			out.RefinedBy = append(out.RefinedBy, e)
		}
	case decision.RelationshipContradicts:
		if forward {
			out.Contradicts = append(out.Contradicts, e)
		} else {
			out.ContradictedBy = append(out.ContradictedBy, e)
		}
	case decision.RelationshipBuildsOn:
		if forward {
			out.BuildsOn = append(out.BuildsOn, e)
		} else {
			out.BuiltOnBy = append(out.BuiltOnBy, e)
		}
	case decision.RelationshipDebates:
		if forward {
			out.Debates = append(out.Debates, e)
		} else {
			out.DebatedBy = append(out.DebatedBy, e)
		}
	case decision.RelationshipSynthesizes:
		if forward {
			out.Synthesizes = append(out.Synthesizes, e)
		} else {
			out.SynthesizedBy = append(out.SynthesizedBy, e)
		}
	}
}

func scanEdgeRow(rows interface{ Scan(...any) error }) (decision.Edge, error) {
	var e decision.Edge
	var reason *string
	var approved *int64
	if err := rows.Scan(&e.FromID, &e.ToID, &e.Relationship, &reason, &approved, &e.CreatedAt); err != nil {
		return e, fmt.Errorf("scan edge: %w", err)
	}
	if reason != nil {
		e.Reason = *reason
	}
	if approved != nil {
		b := *approved != 0
		e.ApprovedByUser = &b
	}
	return e, nil
}

func inClause(ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}
