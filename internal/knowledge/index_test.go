package knowledge

import (
	"context"
	"math"
	"testing"

	"opsdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func doc(id, title, content string) models.Record {
	return models.Record{ID: id, Kind: models.EntityDocument, Fields: map[string]any{"title": title, "content": content}}
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	embed := HashEmbedder(64)

	a, err := embed(ctx, "Invoice policy for clients")
	require.NoError(t, err)
	b, err := embed(ctx, QueryPrefix+"Invoice policy for clients")
	require.NoError(t, err)
	assert.Equal(t, a, b, "query prefix is ignored")

	empty, err := embed(ctx, "")
	require.NoError(t, err)
	var norm float64
	for _, v := range empty {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestIndexRanksAndSyncs(t *testing.T) {
	ctx := context.Background()
	ix, err := NewIndex(HashEmbedder(256), zaptest.NewLogger(t))
	require.NoError(t, err)

	docs := []models.Record{
		doc("d1", "Invoicing", "How we send invoices to clients at month end"),
		doc("d2", "Onboarding", "Checklist for new team members: laptop, accounts"),
		doc("d3", "Holidays", "Office closed between christmas and new year"),
	}
	require.NoError(t, ix.Sync(ctx, docs))

	ids, err := ix.Relevant(ctx, "send the invoices to clients", 2)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "d1", ids[0])

	ids, err = ix.Relevant(ctx, "anything", 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3, "n is capped at the collection size")

	require.NoError(t, ix.Sync(ctx, docs[1:]))
	ids, err = ix.Relevant(ctx, "invoices", 10)
	require.NoError(t, err)
	assert.NotContains(t, ids, "d1")
	assert.Len(t, ids, 2)
}

func TestEmptyIndex(t *testing.T) {
	ix, err := NewIndex(HashEmbedder(32), nil)
	require.NoError(t, err)
	ids, err := ix.Relevant(context.Background(), "x", 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
