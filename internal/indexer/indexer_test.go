package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqua777/scico/embedding"
	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/chunker"
	"github.com/aqua777/scico/internal/convert"
	"github.com/aqua777/scico/internal/vectorstore"
)

type fakeLibrary struct {
	items map[string]bibitem.BibItem
}

func (f *fakeLibrary) GetItems(ctx context.Context, sel bibitem.Selector) ([]bibitem.BibItem, error) {
	switch sel.Kind() {
	case bibitem.KindExplicitList:
		var out []bibitem.BibItem
		for _, id := range sel.ExplicitItemIDs() {
			if item, ok := f.items[id]; ok {
				out = append(out, item)
			}
		}
		return out, nil
	default:
		var out []bibitem.BibItem
		for _, item := range f.items {
			out = append(out, item)
		}
		return out, nil
	}
}

func newTestIndexer(t *testing.T, library LibraryClient, markdownRoot string) *Indexer {
	t.Helper()
	gw := convert.New(func(pdfPath string) (convert.Result, error) {
		return convert.Result{MarkdownText: "# Title\n\nSome body text about the topic."}, nil
	})
	ck := chunker.New(chunker.WithChunkSize(1000), chunker.WithChunkOverlap(0))
	store, err := vectorstore.New("", "test-collection", embedding.NewMockEmbeddingModel([]float64{1, 0, 0}))
	require.NoError(t, err)
	return New(library, gw, ck, store, markdownRoot)
}

func TestIndexer_UpdateIndex(t *testing.T) {
	tmpDir := t.TempDir()
	pdfPath := filepath.Join(tmpDir, "storage-1", "paper.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(pdfPath), 0o755))
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

	library := &fakeLibrary{items: map[string]bibitem.BibItem{
		"item-1": {ItemID: "item-1", StorageKey: "storage-1", Title: "Paper", PDFPath: pdfPath},
	}}

	markdownRoot := filepath.Join(tmpDir, "markdown")
	ix := newTestIndexer(t, library, markdownRoot)

	result, err := ix.UpdateIndex(context.Background(), bibitem.ByID("item-1"), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 0, result.Failed)
	assert.Positive(t, result.ChunksCreated)

	assert.Len(t, ix.Store.UIDsForItem("item-1"), result.ChunksCreated)

	// Re-running without force skips (still "successful").
	result2, err := ix.UpdateIndex(context.Background(), bibitem.ByID("item-1"), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result2.Successful)
	assert.Equal(t, 0, result2.ChunksCreated)
}

func TestIndexer_UpdateIndex_NoPDF(t *testing.T) {
	library := &fakeLibrary{items: map[string]bibitem.BibItem{
		"item-2": {ItemID: "item-2", StorageKey: "storage-2", Title: "No PDF"},
	}}

	ix := newTestIndexer(t, library, t.TempDir())

	result, err := ix.UpdateIndex(context.Background(), bibitem.ByID("item-2"), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedItems, 1)
	assert.Equal(t, "no PDF attachment", result.FailedItems[0].Reason)
}
