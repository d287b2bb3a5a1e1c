// Package chunker implements the Chunker (spec.md §4.C): splits a
// Markdown document by heading hierarchy then by size, producing an
// ordered sequence of bibitem.Chunk.
//
// The recursive splitting step is grounded on the teacher's
// textsplitter.SentenceSplitter — particularly its merge() overlap-window
// algorithm (textsplitter/sentence_splitter.go) — generalized from
// sentence-boundary splitting to the separator cascade spec.md §4.C
// names (newline, then ./!/?/,/;), and producing bibitem.Chunk values
// instead of the teacher's schema.Node.
package chunker

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/aqua777/scico/internal/bibitem"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits Markdown into header-aware, size-bounded chunks.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	Tokenizer    Tokenizer
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize overrides the default chunk size (in tokens, per the
// configured Tokenizer).
func WithChunkSize(n int) Option {
	return func(c *Chunker) { c.ChunkSize = n }
}

// WithChunkOverlap overrides the default chunk overlap.
func WithChunkOverlap(n int) Option {
	return func(c *Chunker) { c.ChunkOverlap = n }
}

// WithTokenizer overrides the default tokenizer. Defaults to
// NewRuneTokenizer, a character counter, unless set — callers configuring
// a tiktoken-compatible embedding_model should pass NewTikTokenTokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) { c.Tokenizer = t }
}

// New creates a Chunker with the given options, defaulting chunk_size to
// 1000 and chunk_overlap to 200 per spec.md §4.C.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Tokenizer:    NewRuneTokenizer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk reads markdownPath in full and splits it per spec.md §4.C's
// algorithm, copying item's ItemID, StorageKey, CitationKey, Title,
// Authors and Date into every emitted chunk.
func (c *Chunker) Chunk(markdownPath string, item bibitem.BibItem) ([]bibitem.Chunk, error) {
	raw, err := os.ReadFile(markdownPath)
	if err != nil {
		return nil, fmt.Errorf("chunker: read %s: %w", markdownPath, err)
	}
	return c.ChunkText(string(raw), item)
}

// ChunkText runs the chunking algorithm directly on markdown text,
// without touching the filesystem (used by tests and by Indexer when
// content is already in memory).
func (c *Chunker) ChunkText(markdown string, item bibitem.BibItem) ([]bibitem.Chunk, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}

	segments := walkHeadings(markdown)
	pieces := c.splitSegments(segments)
	chunks := make([]bibitem.Chunk, 0, len(pieces))

	tableRunID := bibitem.NotATable
	inTable := false
	nextTableID := bibitem.TableID(1)

	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece.text)
		if trimmed == "" {
			continue
		}

		isTableLine := strings.HasPrefix(trimmed, "|")
		if isTableLine {
			if !inTable {
				tableRunID = nextTableID
				nextTableID++
				inTable = true
			}
		} else {
			inTable = false
			tableRunID = bibitem.NotATable
		}

		uid, err := newChunkUID()
		if err != nil {
			return nil, fmt.Errorf("chunker: generate chunk_uid: %w", err)
		}

		table := bibitem.NotATable
		if isTableLine {
			table = tableRunID
		}

		chunk := bibitem.Chunk{
			ChunkUID:    uid,
			ItemID:      item.ItemID,
			StorageKey:  item.StorageKey,
			CitationKey: item.CitationKey,
			Title:       item.Title,
			Authors:     item.Authors,
			Date:        item.Date,
			SplitID:     len(chunks),
			Levels:      piece.levels,
			Table:       table,
			Length:      len(trimmed),
			Content:     trimmed,
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

func newChunkUID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// headingSegment is a coarse, per-line segment annotated with the
// heading-level map in force at that line (spec.md §4.C step 2-3).
type headingSegment struct {
	text   string
	levels bibitem.Levels
}

type splitPiece struct {
	text   string
	levels bibitem.Levels
}
