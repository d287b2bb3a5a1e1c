// Package bibitem holds the core data model shared by every component:
// BibItem (a read-only projection of a reference-manager entry) and Chunk
// (a retrievable, header-tagged segment of that item's converted PDF).
package bibitem

// BibItem is a bibliographic record resolved from the reference manager.
// It is a read-only projection — nothing in this module mutates a BibItem
// after it is returned by the Library Client.
type BibItem struct {
	ItemID      string
	StorageKey  string
	Title       string
	Authors     []string
	Date        string
	Abstract    string
	DOI         string
	URL         string
	Publication string
	ItemType    string
	Tags        []string
	// Collections is the ordered sequence of collection names this item
	// belongs to, joined as a path (outermost first).
	Collections []string
	CitationKey string
	// PDFPath is the absolute filesystem path to the item's PDF
	// attachment. Empty if no PDF attachment resolves on disk — such
	// items are unindexable and are skipped by the Indexer.
	PDFPath string
}

// HasPDF reports whether the item has a PDF attachment resolved on disk.
func (b BibItem) HasPDF() bool {
	return b.PDFPath != ""
}

// Levels maps heading-depth name ("level1".."level7") to the most recent
// heading text at that depth when a chunk was emitted. Deeper levels reset
// whenever a shallower heading opens.
type Levels map[string]string

// LevelKey returns the level map key for a 1-indexed ATX heading depth.
func LevelKey(depth int) string {
	return "level" + string(rune('0'+depth))
}

// TableID identifies a contiguous run of chunks that together form one
// Markdown table. Zero means "not part of a table" (spec.md's
// false/positive-integer union, represented here as 0 = false since Go
// has no native sum type for this).
type TableID int

// NotATable is the zero value of TableID.
const NotATable TableID = 0

// Chunk is a retrievable unit produced by the Chunker and stored in the
// Vector Index. Chunks are never mutated after creation: an update is a
// delete of the old chunk followed by insertion of a new one.
type Chunk struct {
	// ChunkUID is a fresh random id assigned per chunk produced. It is
	// NOT a stable identity across re-indexing — use (ItemID, SplitID)
	// for that.
	ChunkUID string

	// Fields copied from the source BibItem at chunk creation time.
	ItemID      string
	StorageKey  string
	CitationKey string
	Title       string
	Authors     []string
	Date        string

	// SplitID is dense and ascending in document reading order within
	// one item: for N chunks belonging to ItemID, SplitIDs form
	// {0, 1, ..., N-1}.
	SplitID int

	Levels Levels
	Table  TableID
	Length int

	// AddedAt is truncated to whole seconds; stamped by the Vector
	// Index's Add, not by the Chunker.
	AddedAt int64

	Content string

	// Embedding is populated by the Vector Index's Add, not by the
	// Chunker.
	Embedding []float64

	// Distance is populated on chunks returned by a similarity search;
	// zero (and meaningless) on chunks fresh from the Chunker.
	Distance float64

	// Extra carries any caller-supplied metadata keys that fall outside
	// this schema (spec.md §9 "dynamic/loose structure in the source").
	Extra map[string]string
}

// Key identifies a Chunk's content-invariant identity across
// re-indexing: (ItemID, SplitID), never ChunkUID.
type Key struct {
	ItemID  string
	SplitID int
}

// Key returns the chunk's content-invariant identity.
func (c Chunk) Key() Key {
	return Key{ItemID: c.ItemID, SplitID: c.SplitID}
}
