// Package retriever implements the Retriever (spec.md §4.F):
// single-shot and multi-query similarity + metadata-filtered retrieval
// over the Vector Index, with multi-query deduplication and
// re-ranking.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/vectorstore"
)

// Retriever queries a Vector Index on behalf of the Research Loop and
// the `search`/`ask` CLI commands.
type Retriever struct {
	Store    *vectorstore.Store
	Embedder embedding.EmbeddingModel
}

// New builds a Retriever over store, embedding queries with embedder.
func New(store *vectorstore.Store, embedder embedding.EmbeddingModel) *Retriever {
	return &Retriever{Store: store, Embedder: embedder}
}

// Semantic runs a single similarity search, spec.md §4.F's semantic(query, k).
func (r *Retriever) Semantic(ctx context.Context, query string, k int) ([]bibitem.Chunk, error) {
	return r.search(ctx, query, k, nil)
}

// ByItem runs a similarity search restricted to one item_id, spec.md
// §4.F's by_item(item_id, query, k).
func (r *Retriever) ByItem(ctx context.Context, itemID, query string, k int) ([]bibitem.Chunk, error) {
	filter := vectorstore.NewFilter(vectorstore.Condition{
		Key: "item_id", Operator: vectorstore.OpEq, Value: itemID,
	})
	return r.search(ctx, query, k, filter)
}

func (r *Retriever) search(ctx context.Context, query string, k int, filter *vectorstore.Filter) ([]bibitem.Chunk, error) {
	queryEmbedding, err := r.Embedder.GetQueryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	chunks, err := r.Store.Search(ctx, queryEmbedding, k, filter)
	if err != nil {
		return nil, fmt.Errorf("retriever: search: %w", err)
	}
	return chunks, nil
}

// MultiQuery runs each of queries in turn, unions the results,
// deduplicates by (item_id, split_id) — spec.md §9's Open Question,
// decided in DESIGN.md — sorts ascending by distance, with ties broken
// by earliest query in the input list, and truncates to k.
func (r *Retriever) MultiQuery(ctx context.Context, queries []string, k int) ([]bibitem.Chunk, error) {
	type ranked struct {
		chunk     bibitem.Chunk
		queryRank int
	}

	byKey := make(map[bibitem.Key]int)
	var all []ranked

	for qi, q := range queries {
		chunks, err := r.Semantic(ctx, q, k)
		if err != nil {
			return nil, fmt.Errorf("retriever: multi_query %q: %w", q, err)
		}
		for _, c := range chunks {
			key := c.Key()
			if idx, ok := byKey[key]; ok {
				if c.Distance < all[idx].chunk.Distance {
					all[idx].chunk = c
				}
				continue
			}
			byKey[key] = len(all)
			all = append(all, ranked{chunk: c, queryRank: qi})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].chunk.Distance != all[j].chunk.Distance {
			return all[i].chunk.Distance < all[j].chunk.Distance
		}
		return all[i].queryRank < all[j].queryRank
	})

	if len(all) > k {
		all = all[:k]
	}

	out := make([]bibitem.Chunk, len(all))
	for i, r := range all {
		out[i] = r.chunk
	}
	return out, nil
}

// ListIndexed is a pass-through of the Vector Index's stats(), spec.md
// §4.F's list_indexed().
func (r *Retriever) ListIndexed() vectorstore.Stats {
	return r.Store.Stats()
}
