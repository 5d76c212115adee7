package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "mama.db"), false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RunsMigrationsAndEnablesVectorIndex(t *testing.T) {
	s := openTestStore(t)
	if !s.Vector().Enabled() {
		t.Error("expected vector index to be enabled after a clean open")
	}

	var tableCount int
	row := s.DB().QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'decisions'`)
	if err := row.Scan(&tableCount); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if tableCount != 1 {
		t.Fatalf("expected the decisions table to exist after migrations, tableCount=%d", tableCount)
	}
}

func TestOpen_VectorIndexDisabledByConfig(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "mama.db"), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Vector().Enabled() {
		t.Error("expected vector index to stay disabled when forced off")
	}
	if got := s.Vector().Search([]float32{1, 2, 3}, 5); got != nil {
		t.Errorf("expected Search on a disabled index to return nil, got %v", got)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO decisions (id, topic, decision, reasoning, confidence, created_at, updated_at) VALUES ('x','t','d','r',0.5,0,0)`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected WithTx to surface the callback error, got %v", err)
	}

	var count int
	if err := s.DB().QueryRow(`SELECT count(*) FROM decisions WHERE id = 'x'`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 0 {
		t.Error("expected the insert to be rolled back")
	}
}

func TestPrepared_CachesStatement(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stmt1, err := s.Prepared(ctx, `SELECT 1`)
	if err != nil {
		t.Fatalf("Prepared: %v", err)
	}
	stmt2, err := s.Prepared(ctx, `SELECT 1`)
	if err != nil {
		t.Fatalf("Prepared: %v", err)
	}
	if stmt1 != stmt2 {
		t.Error("expected Prepared to return the same cached statement for an identical query")
	}
}

func TestVectorIndex_InsertAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// embeddings.decision_rowid references decisions(rowid) with foreign keys
	// on, so the two decision rows (rowids 1 and 2) must exist first.
	for _, id := range []string{"d1", "d2"} {
		if _, err := s.DB().ExecContext(ctx, `INSERT INTO decisions (id, topic, decision, created_at, updated_at) VALUES (?, 't', 'd', 0, 0)`, id); err != nil {
			t.Fatalf("insert decision: %v", err)
		}
	}

	if err := s.Vector().Insert(ctx, nil, 1, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Vector().Insert(ctx, nil, 2, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results := s.Vector().Search([]float32{1, 0, 0}, 5)
	if len(results) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(results))
	}
	if results[0].Rowid != 1 {
		t.Errorf("expected the identical vector to rank first, got rowid %d", results[0].Rowid)
	}
}
