package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mama-memory/mama/internal/decision"
	"github.com/mama-memory/mama/internal/embedding"
	"github.com/mama-memory/mama/internal/storage"
)

func newTestGraph(t *testing.T) (*Graph, *decision.Repository) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), filepath.Join(dir, "mama.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	embed, err := embedding.New("test-model", 384, 64)
	require.NoError(t, err)

	return New(store), decision.New(store, embed)
}

func TestQueryChain_DelegatesToRepository(t *testing.T) {
	g, repo := newTestGraph(t)
	ctx := context.Background()

	id1, err := repo.Save(ctx, decision.SaveInput{Topic: "caching", Decision: "use memcached"})
	require.NoError(t, err)
	id2, err := repo.Save(ctx, decision.SaveInput{Topic: "caching", Decision: "switch to redis"})
	require.NoError(t, err)

	chain, err := g.QueryChain(ctx, "caching")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, id2, chain[0].ID)
	assert.Equal(t, id1, chain[1].ID)
}

func TestQuerySemanticEdges_PartitionsByRelationshipAndDirection(t *testing.T) {
	g, repo := newTestGraph(t)
	ctx := context.Background()

	a, err := repo.Save(ctx, decision.SaveInput{Topic: "db", Decision: "use postgres"})
	require.NoError(t, err)
	approved := true
	b, err := repo.Save(ctx, decision.SaveInput{
		Topic:    "db-replicas",
		Decision: "add read replicas",
		Edges: []decision.Edge{
			{ToID: a, Relationship: decision.RelationshipBuildsOn, Reason: "extends the postgres decision", ApprovedByUser: &approved},
		},
	})
	require.NoError(t, err)

	edges, err := g.QuerySemanticEdges(ctx, []string{a, b})
	require.NoError(t, err)
	require.Len(t, edges.BuildsOn, 1)
	assert.Equal(t, b, edges.BuildsOn[0].FromID)
	assert.Equal(t, a, edges.BuildsOn[0].ToID)
	require.Len(t, edges.BuiltOnBy, 0)
}

func TestQuerySemanticEdges_EmptyIDsReturnsZeroValue(t *testing.T) {
	g, _ := newTestGraph(t)
	edges, err := g.QuerySemanticEdges(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SemanticEdges{}, edges)
}
