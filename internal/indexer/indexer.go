// Package indexer implements the Indexer (spec.md §4.E): orchestrates
// Library Client → Converter Gateway → Chunker → Vector Index for a
// batch of bibliographic items, idempotently and resumably.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/chunker"
	"github.com/aqua777/scico/internal/convert"
	"github.com/aqua777/scico/internal/vectorstore"
)

// LibraryClient is the subset of the Library Client (internal/zotero)
// the Indexer needs. Declared here, not imported as a concrete type, so
// tests can substitute a fake — mirroring how the teacher's rag package
// depends on llm.LLM/embedding.EmbeddingModel interfaces rather than
// concrete provider structs.
type LibraryClient interface {
	GetItems(ctx context.Context, sel bibitem.Selector) ([]bibitem.BibItem, error)
}

// ProgressCallback reports i/total progress after each item, matching
// the teacher's embedding.ProgressCallback shape (embedding/types.go).
type ProgressCallback func(done, total int)

// FailedItem records one item the Indexer could not index, per spec.md
// §4.E / §7's item-level failure policy.
type FailedItem struct {
	PDFPath  string
	ItemID   string
	Metadata map[string]string
	Reason   string
}

// Result is spec.md §4.E's IndexingResult.
type Result struct {
	Total         int
	Successful    int
	Failed        int
	FailedItems   []FailedItem
	ChunksCreated int
}

// Indexer wires the Library Client, Converter Gateway, Chunker, and
// Vector Index together per spec.md §4.E's algorithm.
type Indexer struct {
	Library     LibraryClient
	Gateway     *convert.Gateway
	Chunker     *chunker.Chunker
	Store       *vectorstore.Store
	MarkdownRoot string
	Logger      *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.Logger = l
		}
	}
}

// New builds an Indexer. markdownRoot is spec.md §6's required
// configuration path under which converted Markdown is cached.
func New(library LibraryClient, gateway *convert.Gateway, c *chunker.Chunker, store *vectorstore.Store, markdownRoot string, opts ...Option) *Indexer {
	ix := &Indexer{
		Library:      library,
		Gateway:      gateway,
		Chunker:      c,
		Store:        store,
		MarkdownRoot: markdownRoot,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// UpdateIndex runs spec.md §4.E's algorithm: resolve items via sel,
// skip already-indexed items unless force, convert+chunk+embed the
// rest, reporting progress via cb (may be nil).
func (ix *Indexer) UpdateIndex(ctx context.Context, sel bibitem.Selector, force bool, cb ProgressCallback) (Result, error) {
	items, err := ix.Library.GetItems(ctx, sel)
	if err != nil {
		return Result{}, fmt.Errorf("indexer: resolve items: %w", err)
	}

	result := Result{Total: len(items)}

	for i, item := range items {
		if ix.indexOne(ctx, item, force, &result) {
			result.Successful++
		} else {
			result.Failed++
		}
		if cb != nil {
			cb(i+1, len(items))
		}
	}

	return result, nil
}

// indexOne runs spec.md §4.E steps 2-3 for a single item. Returns true
// on success (including "already indexed, skipped" — spec.md §4.E.2
// explicitly treats that as success, not failure).
func (ix *Indexer) indexOne(ctx context.Context, item bibitem.BibItem, force bool, result *Result) bool {
	logger := ix.Logger.With("item_id", item.ItemID)

	existing := ix.Store.UIDsForItem(item.ItemID)
	if len(existing) > 0 {
		if !force {
			logger.Debug("already indexed, skipping")
			return true
		}
		if _, err := ix.Store.DeleteByItem(ctx, item.ItemID); err != nil {
			ix.fail(result, item, "", "delete existing chunks before reindex: "+err.Error())
			return false
		}
	}

	if !item.HasPDF() {
		ix.fail(result, item, "", "no PDF attachment")
		return false
	}

	outputPath := ix.markdownPath(item)
	conversion, err := ix.Gateway.Convert(item.StorageKey, item.PDFPath, outputPath)
	if err != nil {
		ix.fail(result, item, item.PDFPath, "convert: "+err.Error())
		return false
	}

	chunks, err := ix.Chunker.ChunkText(conversion.MarkdownText, item)
	if err != nil {
		ix.fail(result, item, item.PDFPath, "chunk: "+err.Error())
		return false
	}
	if len(chunks) == 0 {
		ix.fail(result, item, item.PDFPath, "no chunks")
		return false
	}

	if _, err := ix.Store.Add(ctx, chunks); err != nil {
		ix.fail(result, item, item.PDFPath, "embed/add: "+err.Error())
		return false
	}

	result.ChunksCreated += len(chunks)
	return true
}

// IndexLocalMarkdown implements spec.md §4.E's additional operation:
// walk MarkdownRoot for every .md file, infer storage_key from its
// parent directory name, re-fetch the corresponding BibItem, and run
// the chunk/embed steps directly against the already-converted file (no
// Gateway call — the whole point is to index content that's already on
// disk).
//
// Re-fetching by storage_key: the Library Client only exposes the
// selectors spec.md §4.A defines (name/id/collection/explicit-list), no
// "by storage key" lookup. storage_key "may equal item_id" (spec.md §3)
// — the common case for the reference manager this client targets — so
// re-fetch uses ExplicitList([storage_key]) and accepts the item only if
// its own StorageKey matches what a directory walk observed; a storage
// key that doesn't resolve this way is recorded as a failed item rather
// than guessed at.
func (ix *Indexer) IndexLocalMarkdown(ctx context.Context, force bool, cb ProgressCallback) (Result, error) {
	storageKeys, err := ix.walkMarkdownStorageKeys()
	if err != nil {
		return Result{}, fmt.Errorf("indexer: walk markdown root %s: %w", ix.MarkdownRoot, err)
	}

	result := Result{Total: len(storageKeys)}

	for i, storageKey := range storageKeys {
		ok := ix.indexLocalOne(ctx, storageKey, force, &result)
		if ok {
			result.Successful++
		} else {
			result.Failed++
		}
		if cb != nil {
			cb(i+1, len(storageKeys))
		}
	}

	return result, nil
}

func (ix *Indexer) indexLocalOne(ctx context.Context, storageKey string, force bool, result *Result) bool {
	items, err := ix.Library.GetItems(ctx, bibitem.ExplicitList([]string{storageKey}))
	if err != nil || len(items) == 0 {
		result.FailedItems = append(result.FailedItems, FailedItem{
			Metadata: map[string]string{"storage_key": storageKey},
			Reason:   "could not re-fetch BibItem for storage_key",
		})
		return false
	}
	item := items[0]
	if item.StorageKey != storageKey {
		result.FailedItems = append(result.FailedItems, FailedItem{
			Metadata: map[string]string{"storage_key": storageKey},
			Reason:   "re-fetched item's storage_key does not match directory",
		})
		return false
	}

	existing := ix.Store.UIDsForItem(item.ItemID)
	if len(existing) > 0 {
		if !force {
			return true
		}
		if _, err := ix.Store.DeleteByItem(ctx, item.ItemID); err != nil {
			ix.fail(result, item, "", "delete existing chunks before reindex: "+err.Error())
			return false
		}
	}

	mdPath := ix.markdownPath(item)
	raw, err := os.ReadFile(mdPath)
	if err != nil {
		ix.fail(result, item, mdPath, "read cached markdown: "+err.Error())
		return false
	}

	chunks, err := ix.Chunker.ChunkText(string(raw), item)
	if err != nil {
		ix.fail(result, item, mdPath, "chunk: "+err.Error())
		return false
	}
	if len(chunks) == 0 {
		ix.fail(result, item, mdPath, "no chunks")
		return false
	}

	if _, err := ix.Store.Add(ctx, chunks); err != nil {
		ix.fail(result, item, mdPath, "embed/add: "+err.Error())
		return false
	}

	result.ChunksCreated += len(chunks)
	return true
}

func (ix *Indexer) walkMarkdownStorageKeys() ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	err := filepath.WalkDir(ix.MarkdownRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}
		storageKey := filepath.Base(filepath.Dir(path))
		if !seen[storageKey] {
			seen[storageKey] = true
			keys = append(keys, storageKey)
		}
		return nil
	})
	return keys, err
}

func (ix *Indexer) fail(result *Result, item bibitem.BibItem, pdfPath, reason string) {
	ix.Logger.Warn("item indexing failed", "item_id", item.ItemID, "reason", reason)
	result.FailedItems = append(result.FailedItems, FailedItem{
		PDFPath: pdfPath,
		ItemID:  item.ItemID,
		Metadata: map[string]string{
			"title":        item.Title,
			"citation_key": item.CitationKey,
		},
		Reason: reason,
	})
}

// markdownPath implements spec.md §4.E.3.a:
// <markdown_root>/<storage_key>/<pdf_stem>.md.
func (ix *Indexer) markdownPath(item bibitem.BibItem) string {
	stem := strings.TrimSuffix(filepath.Base(item.PDFPath), filepath.Ext(item.PDFPath))
	return filepath.Join(ix.MarkdownRoot, item.StorageKey, stem+".md")
}
