package decision

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mama-memory/mama/internal/embedding"
	"github.com/mama-memory/mama/internal/mamaerr"
	"github.com/mama-memory/mama/internal/storage"
)

// Repository is the decision repository (component C3): one write
// transaction per save, id allocation, timestamping, and the enriched
// embedding computed before the transaction opens so the transaction body
// stays synchronous.
type Repository struct {
	store *storage.Store
	embed *embedding.Service
}

// New wires a Repository to the storage adapter and embedding service.
func New(store *storage.Store, embed *embedding.Service) *Repository {
	return &Repository{store: store, embed: embed}
}

// Save inserts a new decision row, chaining it onto the topic's current
// head when the caller didn't set Supersedes explicitly, inserts its
// embedding at the same rowid, and inserts any caller-supplied edges — all
// in one transaction.
func (r *Repository) Save(ctx context.Context, in SaveInput) (string, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return "", mamaerr.Validationf("topic must not be empty")
	}
	if strings.TrimSpace(in.Decision) == "" {
		return "", mamaerr.Validationf("decision must not be empty")
	}

	confidence := 0.5
	if in.Confidence != nil {
		confidence = clamp01(*in.Confidence)
	}

	id := uuid.New().String()
	now := time.Now().UnixMilli()

	vec := r.embed.EmbedEnriched(embedding.Decision{
		Topic:     in.Topic,
		Decision:  in.Decision,
		Reasoning: in.Reasoning,
	})

	err := r.store.WithTx(ctx, func(tx *sql.Tx) error {
		supersedes := in.Supersedes
		var headID string
		if supersedes == "" {
			var err error
			headID, err = currentHead(ctx, tx, in.Topic)
			if err != nil {
				return err
			}
			if headID != "" {
				supersedes = headID
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO decisions
				(id, topic, decision, reasoning, confidence, outcome, supersedes, superseded_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			id, in.Topic, in.Decision, in.Reasoning, confidence, nullableString(string(in.Outcome)), nullableString(supersedes), now, now,
		)
		if err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted rowid: %w", err)
		}

		if supersedes != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE decisions SET superseded_by = ? WHERE id = ?`, id, supersedes); err != nil {
				return fmt.Errorf("update previous head: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO decision_edges (from_id, to_id, relationship, approved_by_user, created_at)
				VALUES (?, ?, ?, 1, ?)`,
				id, supersedes, string(RelationshipSupersedes), now,
			); err != nil {
				return fmt.Errorf("insert supersedes edge: %w", err)
			}
		}

		if err := r.store.Vector().Insert(ctx, tx, rowid, vec); err != nil {
			return err
		}

		for _, e := range in.Edges {
			if err := insertEdge(ctx, tx, id, e, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func insertEdge(ctx context.Context, tx *sql.Tx, fromID string, e Edge, now int64) error {
	var approved any
	if e.ApprovedByUser != nil {
		if *e.ApprovedByUser {
			approved = 1
		} else {
			approved = 0
		}
	}
	toID := e.ToID
	rel := e.Relationship
	switch rel {
	case RelationshipSupersedes, RelationshipRefines, RelationshipContradicts, RelationshipBuildsOn,
		RelationshipDebates, RelationshipSynthesizes, RelationshipSimilar:
	default:
		return mamaerr.Validationf("unknown edge relationship %q", rel)
	}
	if fromID != "" && e.FromID != "" {
		fromID = e.FromID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO decision_edges (from_id, to_id, relationship, reason, approved_by_user, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		fromID, toID, string(rel), nullableString(e.Reason), approved, now,
	)
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// currentHead returns the id of the row with superseded_by IS NULL for
// topic, or "" if the topic has no rows yet.
func currentHead(ctx context.Context, tx *sql.Tx, topic string) (string, error) {
	row := tx.QueryRowContext(ctx, `SELECT id FROM decisions WHERE topic = ? AND superseded_by IS NULL`, topic)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("find current head: %w", err)
	}
	return id, nil
}

// Recall finds the head row for topic and walks supersedes back to produce
// the chain newest-first. If no exact match is found, it retries once with
// the first '_'-separated token as a LIKE prefix.
func (r *Repository) Recall(ctx context.Context, topic string) ([]Decision, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, mamaerr.Validationf("topic must not be empty")
	}

	headID, err := r.findHeadID(ctx, topic)
	if err != nil {
		return nil, err
	}
	if headID == "" {
		return nil, nil
	}

	rows, err := r.store.DB().QueryContext(ctx, `
		WITH RECURSIVE chain(id, supersedes) AS (
			SELECT id, supersedes FROM decisions WHERE id = ?
			UNION ALL
			SELECT d.id, d.supersedes FROM decisions d JOIN chain c ON d.id = c.supersedes
		)
		SELECT d.rowid, d.id, d.topic, d.decision, d.reasoning, d.confidence, d.outcome,
		       d.failure_reason, d.limitation, d.duration_days, d.supersedes, d.superseded_by,
		       d.created_at, d.updated_at, d.usage_count, d.usage_success, d.usage_failure
		FROM decisions d JOIN chain c ON d.id = c.id
		ORDER BY d.created_at DESC, d.rowid DESC`, headID)
	if err != nil {
		return nil, fmt.Errorf("query chain: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		edges, err := r.edgesFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Edges = edges
	}
	return out, nil
}

func (r *Repository) findHeadID(ctx context.Context, topic string) (string, error) {
	row := r.store.DB().QueryRowContext(ctx, `SELECT id FROM decisions WHERE topic = ? AND superseded_by IS NULL`, topic)
	var id string
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("find head: %w", err)
	}

	prefix := strings.SplitN(topic, "_", 2)[0]
	row = r.store.DB().QueryRowContext(ctx, `
		SELECT id FROM decisions WHERE topic LIKE ? AND superseded_by IS NULL
		ORDER BY created_at DESC LIMIT 1`, prefix+"%")
	err = row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if err == sql.ErrNoRows {
		return "", nil
	}
	return "", fmt.Errorf("find head (fuzzy): %w", err)
}

// edgesFor returns the outgoing edges for decisionID that are approved or
// unreviewed.
func (r *Repository) edgesFor(ctx context.Context, decisionID string) ([]Edge, error) {
	rows, err := r.store.DB().QueryContext(ctx, `
		SELECT from_id, to_id, relationship, reason, approved_by_user, created_at
		FROM decision_edges
		WHERE from_id = ? AND (approved_by_user IS NULL OR approved_by_user = 1)`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var reason sql.NullString
		var approved sql.NullInt64
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Relationship, &reason, &approved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Reason = reason.String
		if approved.Valid {
			b := approved.Int64 != 0
			e.ApprovedByUser = &b
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListFilter optionally restricts List to decisions matching an outcome.
type ListFilter struct {
	Outcome Outcome
}

// List returns the limit most recently created decisions, descending by
// created_at, optionally filtered by outcome. limit must be
// in [1,100]; violations are a validation error, not a thrown exception.
func (r *Repository) List(ctx context.Context, limit int, filter ListFilter) ([]Decision, error) {
	if limit < 1 || limit > 100 {
		return nil, mamaerr.Validationf("limit must be in 1..100, got %d", limit)
	}

	query := `
		SELECT rowid, id, topic, decision, reasoning, confidence, outcome,
		       failure_reason, limitation, duration_days, supersedes, superseded_by,
		       created_at, updated_at, usage_count, usage_success, usage_failure
		FROM decisions`
	var args []any
	if filter.Outcome == OutcomeOngoing {
		// A NULL outcome reads back as ONGOING (see scanDecision).
		query += ` WHERE (outcome IS NULL OR outcome = ?)`
		args = append(args, string(filter.Outcome))
	} else if filter.Outcome != "" {
		query += ` WHERE outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID fetches one decision row by id, or mamaerr.ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (Decision, error) {
	row := r.store.DB().QueryRowContext(ctx, `
		SELECT rowid, id, topic, decision, reasoning, confidence, outcome,
		       failure_reason, limitation, duration_days, supersedes, superseded_by,
		       created_at, updated_at, usage_count, usage_success, usage_failure
		FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if err == sql.ErrNoRows {
		return Decision{}, mamaerr.ErrNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("get decision: %w", err)
	}
	return d, nil
}

// UpdateOutcome validates and applies an outcome update, adjusting
// confidence by the fixed deltas below unless the caller supplies an
// explicit confidence override.
func (r *Repository) UpdateOutcome(ctx context.Context, in UpdateOutcomeInput) error {
	switch in.Outcome {
	case OutcomeSuccess, OutcomeFailed, OutcomePartial:
	default:
		return mamaerr.Validationf("outcome must be SUCCESS, FAILED, or PARTIAL, got %q", in.Outcome)
	}
	if in.Outcome == OutcomeFailed && strings.TrimSpace(in.FailureReason) == "" {
		return mamaerr.Validationf("failure_reason is required when outcome is FAILED")
	}
	if len(in.FailureReason) > 2000 {
		return mamaerr.Validationf("failure_reason must be <= 2000 bytes")
	}
	if len(in.Limitation) > 2000 {
		return mamaerr.Validationf("limitation must be <= 2000 bytes")
	}

	existing, err := r.GetByID(ctx, in.DecisionID)
	if err != nil {
		return err
	}

	confidence := adjustedConfidence(existing, in)
	now := time.Now().UnixMilli()

	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE decisions
			SET outcome = ?, failure_reason = ?, limitation = ?, duration_days = ?,
			    confidence = ?, updated_at = ?
			WHERE id = ?`,
			string(in.Outcome), nullableString(in.FailureReason), nullableString(in.Limitation),
			nullableInt(in.DurationDays), confidence, now, in.DecisionID,
		)
		if err != nil {
			return fmt.Errorf("update outcome: %w", err)
		}
		return nil
	})
}

// IncrementUsage bumps usage_count (and usage_success/usage_failure when
// known) each time a decision is surfaced by suggest or the injector.
func (r *Repository) IncrementUsage(ctx context.Context, id string, success *bool) error {
	successDelta, failureDelta := 0, 0
	if success != nil {
		if *success {
			successDelta = 1
		} else {
			failureDelta = 1
		}
	}
	_, err := r.store.DB().ExecContext(ctx, `
		UPDATE decisions
		SET usage_count = usage_count + 1,
		    usage_success = usage_success + ?,
		    usage_failure = usage_failure + ?
		WHERE id = ?`,
		successDelta, failureDelta, id,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// adjustedConfidence applies fixed deltas by outcome:
// SUCCESS:+0.2, FAILED:-0.3, PARTIAL:+0.1, with a further +0.1 bonus when
// the decision is >=30 days old and the outcome is SUCCESS. A caller-
// supplied confidence overrides the computed adjustment entirely.
func adjustedConfidence(existing Decision, in UpdateOutcomeInput) float64 {
	if in.Confidence != nil {
		return clamp01(*in.Confidence)
	}

	delta := 0.0
	switch in.Outcome {
	case OutcomeSuccess:
		delta = 0.2
		ageDays := float64(time.Now().UnixMilli()-existing.CreatedAt) / float64(24*time.Hour/time.Millisecond)
		if ageDays >= 30 {
			delta += 0.1
		}
	case OutcomeFailed:
		delta = -0.3
	case OutcomePartial:
		delta = 0.1
	}
	return clamp01(existing.Confidence + delta)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(s scanner) (Decision, error) {
	var d Decision
	var outcome, failureReason, limitation, supersedes, supersededBy sql.NullString
	var durationDays sql.NullInt64

	err := s.Scan(
		&d.Rowid, &d.ID, &d.Topic, &d.Decision, &d.Reasoning, &d.Confidence, &outcome,
		&failureReason, &limitation, &durationDays, &supersedes, &supersededBy,
		&d.CreatedAt, &d.UpdatedAt, &d.UsageCount, &d.UsageSuccess, &d.UsageFailure,
	)
	if err != nil {
		return Decision{}, err
	}

	if outcome.Valid {
		d.Outcome = Outcome(outcome.String)
	} else {
		d.Outcome = OutcomeOngoing
	}
	d.FailureReason = failureReason.String
	d.Limitation = limitation.String
	d.Supersedes = supersedes.String
	d.SupersededBy = supersededBy.String
	if durationDays.Valid {
		v := int(durationDays.Int64)
		d.DurationDays = &v
	}
	return d, nil
}
