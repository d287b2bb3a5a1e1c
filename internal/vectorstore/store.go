// Package vectorstore is the Vector Index component (spec.md §4.D): a
// chromem-go-backed keyed container over bibitem.Chunk with vector
// similarity search and metadata filtering. Generalized from the
// teacher's rag/store/chromem/store.go, which stored schema.Node and
// only ever searched — this package additionally owns embedding (Add
// embeds content itself, rather than expecting pre-embedded nodes) and
// adds the per-item lifecycle operations (DeleteByItem, UIDsForItem,
// Stats, Clear) the teacher's store never needed.
//
// chromem-go exposes no full-collection enumeration primitive (by
// design — see the other pack searchers that only ever Add/Delete/Query
// by id or embedding), so Store keeps a parallel in-memory ledger of
// every chunk it has added, indexed by ChunkUID, to answer
// UIDsForItem/Stats/FilterOnly/DeleteByItem without scanning chromem
// itself. chromem-go remains the source of truth for vector similarity;
// the ledger is the source of truth for exact metadata lookups.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
)

// Store is the Vector Index: a single chromem-go collection holding one
// embedding space, plus the metadata ledger described above. Collection
// identity is the caller's responsibility — New takes the fully-formed
// collection name ("<name>_<embedding_api>_<embedding_model>" per
// spec.md §4.D); Store itself does not compose it.
type Store struct {
	db             *chromem.DB
	collectionName string
	collection     *chromem.Collection
	embedder       embedding.EmbeddingModel
	logger         *slog.Logger

	ledgerPath string

	mu     sync.RWMutex
	ledger map[string]bibitem.Chunk // ChunkUID -> chunk, mirrors chromem's contents
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens (or creates) persistPath as a chromem-go persistent DB — or,
// if persistPath is empty, an in-memory DB — and gets or creates
// collectionName within it. embedder is used by Add to turn chunk
// content into vectors; Store never calls it during Search (queries
// arrive pre-embedded from the Retriever, which already holds the same
// embedder).
func New(persistPath, collectionName string, embedder embedding.EmbeddingModel, opts ...Option) (*Store, error) {
	var db *chromem.DB
	if persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: open persistent db at %s: %w", persistPath, err)
		}
	} else {
		db = chromem.NewDB()
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get or create collection %s: %w", collectionName, err)
	}

	path := ledgerPath(persistPath, collectionName)
	ledger, err := loadLedger(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:             db,
		collectionName: collectionName,
		collection:     collection,
		embedder:       embedder,
		logger:         slog.Default(),
		ledgerPath:     path,
		ledger:         ledger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add embeds each chunk's content via the configured embedder, stamps
// AddedAt, and inserts. Returns the assigned ChunkUIDs. Per spec.md
// §4.D's failure semantics, an embedding failure aborts the whole batch
// — no partial insert, and the ledger is only updated after chromem-go
// accepts the batch.
func (s *Store) Add(ctx context.Context, chunks []bibitem.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed batch of %d chunks: %w", len(chunks), err)
	}

	now := time.Now().Unix()
	stamped := make([]bibitem.Chunk, len(chunks))
	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		c.Embedding = embeddings[i]
		c.AddedAt = now
		stamped[i] = c

		embedding32 := make([]float32, len(c.Embedding))
		for j, v := range c.Embedding {
			embedding32[j] = float32(v)
		}

		docs[i] = chromem.Document{
			ID:        c.ChunkUID,
			Content:   c.Content,
			Metadata:  eqMetadata(c),
			Embedding: embedding32,
		}
		ids[i] = c.ChunkUID
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("vectorstore: add documents to collection %s: %w", s.collectionName, err)
	}

	s.mu.Lock()
	for _, c := range stamped {
		s.ledger[c.ChunkUID] = c
	}
	err = saveLedger(s.ledgerPath, s.ledger)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *Store) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if batch, ok := s.embedder.(embedding.EmbeddingModelWithBatch); ok {
		return batch.GetTextEmbeddingsBatch(ctx, texts, nil)
	}

	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := s.embedder.GetTextEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Search returns up to k Chunks ordered by ascending distance, matching
// filter (nil for no filter). Equality terms in filter are pushed down
// to chromem-go's where clause; every other operator is evaluated as a
// post-filter over chromem's already-similarity-ranked result, mirroring
// the teacher's own comment: "For now, we only support EQ. Other
// operators would require post-filtering."
func (s *Store) Search(ctx context.Context, queryEmbedding []float64, k int, filter *Filter) ([]bibitem.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}

	queryEmbedding32 := make([]float32, len(queryEmbedding))
	for i, v := range queryEmbedding {
		queryEmbedding32[i] = float32(v)
	}

	where, postFilter := splitFilter(filter)

	// Overfetch when a post-filter will cull results below k: chromem
	// only ranks, it can't know how many survive post-filtering.
	// chromem rejects a result count above the collection size, so the
	// fetch is capped at the current document count.
	fetchK := k
	n := s.collection.Count()
	if postFilter != nil && n > fetchK {
		fetchK = n
	}
	if fetchK > n {
		fetchK = n
	}
	if fetchK == 0 {
		return nil, nil
	}

	res, err := s.collection.QueryEmbedding(ctx, queryEmbedding32, fetchK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query collection %s: %w", s.collectionName, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]bibitem.Chunk, 0, len(res))
	for _, doc := range res {
		c, ok := s.ledger[doc.ID]
		if !ok {
			continue
		}
		c.Distance = 1 - float64(doc.Similarity)
		if postFilter != nil && !postFilter.Match(c) {
			continue
		}
		chunks = append(chunks, c)
		if len(chunks) == k {
			break
		}
	}
	return chunks, nil
}

// FilterOnly returns up to k matching Chunks without vector scoring,
// unordered — spec.md §4.D's filter_only. Served entirely from the
// ledger since chromem-go has no filter-without-query primitive.
func (s *Store) FilterOnly(filter *Filter, k int) []bibitem.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []bibitem.Chunk
	for _, c := range s.ledger {
		if filter != nil && !filter.Match(c) {
			continue
		}
		out = append(out, c)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out
}

// UIDsForItem returns every ChunkUID attached to itemID.
func (s *Store) UIDsForItem(itemID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uids []string
	for uid, c := range s.ledger {
		if c.ItemID == itemID {
			uids = append(uids, uid)
		}
	}
	return uids
}

// DeleteByItem removes every chunk with the given item_id and returns
// the count removed. The chromem-go delete and ledger removal happen
// under the same write lock, so a concurrent Search/FilterOnly via the
// ledger never observes a chunk chromem-go has already dropped, or vice
// versa.
func (s *Store) DeleteByItem(ctx context.Context, itemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var uids []string
	for uid, c := range s.ledger {
		if c.ItemID == itemID {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return 0, nil
	}

	if err := s.collection.Delete(ctx, nil, nil, uids...); err != nil {
		return 0, fmt.Errorf("vectorstore: delete item %s from collection %s: %w", itemID, s.collectionName, err)
	}
	for _, uid := range uids {
		delete(s.ledger, uid)
	}
	if err := saveLedger(s.ledgerPath, s.ledger); err != nil {
		return 0, err
	}
	return len(uids), nil
}

// ItemStats summarizes one item's chunks within the index.
type ItemStats struct {
	Count       int
	Title       string
	StorageKey  string
	CitationKey string
}

// Stats reports spec.md §4.D's stats(): total chunk count plus a
// per-item breakdown derived from current ledger contents.
type Stats struct {
	TotalChunks int
	Items       map[string]ItemStats
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make(map[string]ItemStats)
	for _, c := range s.ledger {
		st := items[c.ItemID]
		st.Count++
		st.Title = c.Title
		st.StorageKey = c.StorageKey
		st.CitationKey = c.CitationKey
		items[c.ItemID] = st
	}
	return Stats{TotalChunks: len(s.ledger), Items: items}
}

// Clear destroys every chunk in the collection and empties the ledger,
// per spec.md §4.D's clear(). Implemented as a delete of every known id
// rather than a drop-and-recreate of the collection, since chromem-go's
// documented API (confirmed via Add/Delete/QueryEmbedding/Count usage
// across the pack) gives no stronger "drop collection" primitive to
// lean on.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ledger) == 0 {
		return nil
	}
	uids := make([]string, 0, len(s.ledger))
	for uid := range s.ledger {
		uids = append(uids, uid)
	}
	if err := s.collection.Delete(ctx, nil, nil, uids...); err != nil {
		return fmt.Errorf("vectorstore: clear collection %s: %w", s.collectionName, err)
	}
	s.ledger = make(map[string]bibitem.Chunk)
	return saveLedger(s.ledgerPath, s.ledger)
}

// eqMetadata stamps only the fields Search's where-clause push-down can
// use for equality matching. Every other filterable field lives in the
// ledger, not in chromem-go, so there is no string-encoding round trip
// for types like Table (TableID) or Authors ([]string).
func eqMetadata(c bibitem.Chunk) map[string]string {
	meta := map[string]string{
		"item_id":      c.ItemID,
		"storage_key":  c.StorageKey,
		"citation_key": c.CitationKey,
	}
	for k, v := range c.Levels {
		meta[k] = v
	}
	return meta
}
