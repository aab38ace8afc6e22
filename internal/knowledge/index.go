// Package knowledge ranks knowledge documents by semantic similarity to the
// current utterance so only the relevant ones enter the engine's context.
package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"opsdesk/internal/models"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Index is an in-memory vector index over document records. It is rebuilt
// incrementally from the store on every Sync.
type Index struct {
	mu         sync.Mutex
	collection *chromem.Collection
	hashes     map[string]uint64
	logger     *zap.Logger
}

func NewIndex(embed chromem.EmbeddingFunc, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection("documents", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating document collection: %w", err)
	}
	return &Index{
		collection: col,
		hashes:     map[string]uint64{},
		logger:     logger.Named("knowledge"),
	}, nil
}

// Sync makes the index mirror docs: new or changed documents are embedded,
// documents no longer present are dropped.
func (ix *Index) Sync(ctx context.Context, docs []models.Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	seen := make(map[string]bool, len(docs))
	var changed []chromem.Document
	for _, d := range docs {
		seen[d.ID] = true
		content := documentText(d)
		if content == "" {
			continue
		}
		sum := contentHash(content)
		if prev, ok := ix.hashes[d.ID]; ok && prev == sum {
			continue
		}
		changed = append(changed, chromem.Document{
			ID:       d.ID,
			Content:  content,
			Metadata: map[string]string{"title": d.String("title")},
		})
		ix.hashes[d.ID] = sum
	}

	var stale []string
	for id := range ix.hashes {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := ix.collection.Delete(ctx, nil, nil, stale...); err != nil {
			return fmt.Errorf("dropping stale documents: %w", err)
		}
		for _, id := range stale {
			delete(ix.hashes, id)
		}
	}

	if len(changed) > 0 {
		if err := ix.collection.AddDocuments(ctx, changed, 2); err != nil {
			for _, d := range changed {
				delete(ix.hashes, d.ID)
			}
			return fmt.Errorf("indexing documents: %w", err)
		}
		ix.logger.Debug("indexed documents", zap.Int("changed", len(changed)), zap.Int("dropped", len(stale)))
	}
	return nil
}

// Relevant returns up to n document ids, most similar first.
func (ix *Index) Relevant(ctx context.Context, query string, n int) ([]string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	count := ix.collection.Count()
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := ix.collection.Query(ctx, QueryPrefix+query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func documentText(d models.Record) string {
	title, content := d.String("title"), d.String("content")
	if content == "" {
		return title
	}
	return title + "\n" + content
}

func contentHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
