// Package convert implements the Markdown Converter Gateway (spec.md
// §4.B): a thin, caching wrapper around the external, opaque
// PDF→Markdown converter. The core never re-implements a converter (see
// spec.md §1 Out of scope); Converter is the seam at which a real one is
// plugged in, analogous to how the teacher treats embedding.EmbeddingModel
// and llm.LLM as swappable capability interfaces.
package convert

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Result is what a successful conversion produces: the converter's
// opaque (markdown_text, images, metadata_sidecar) triple, per spec.md
// §1.
type Result struct {
	MarkdownText    string
	Images          []string
	MetadataSidecar map[string]string
}

// Converter is the external, opaque PDF→Markdown function. Production
// implementations wrap a real conversion service/process; see
// LocalFallbackConverter for a text-only stand-in used in local dev.
type Converter func(pdfPath string) (Result, error)

// Gateway wraps a Converter with the caching/locking/idempotence
// guarantees spec.md §4.B requires.
type Gateway struct {
	converter     Converter
	skipExisting  bool
	logger        *slog.Logger
	locksMu       sync.Mutex
	storageLocks  map[string]*sync.Mutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithSkipExistingMarkdown sets whether an existing output file short-
// circuits a re-conversion. Default true per spec.md §6 Configuration
// (skip_existing_markdown).
func WithSkipExistingMarkdown(skip bool) Option {
	return func(g *Gateway) { g.skipExisting = skip }
}

// WithLogger sets the gateway's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gateway wrapping the given Converter.
func New(converter Converter, opts ...Option) *Gateway {
	g := &Gateway{
		converter:    converter,
		skipExisting: true,
		logger:       slog.Default(),
		storageLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Convert runs the external converter for pdfPath and writes the result's
// markdown text to outputMDPath. storageKey identifies the reference
// manager's attachment directory for pdfPath and is used only for
// per-key locking (spec.md §5: "two concurrent conversions of the same
// storage key are unsafe and must be prevented").
//
// ensures the parent directory of outputMDPath exists; if outputMDPath
// already exists and skip_existing_markdown is set, returns success
// without invoking the converter; never mutates pdfPath; on any
// converter error, reports failure without partial writes.
func (g *Gateway) Convert(storageKey, pdfPath, outputMDPath string) (Result, error) {
	lock := g.lockFor(storageKey)
	lock.Lock()
	defer lock.Unlock()

	if g.skipExisting {
		if _, err := os.Stat(outputMDPath); err == nil {
			existing, err := os.ReadFile(outputMDPath)
			if err != nil {
				return Result{}, fmt.Errorf("convert: read cached markdown %s: %w", outputMDPath, err)
			}
			return Result{MarkdownText: string(existing)}, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputMDPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("convert: create output dir: %w", err)
	}

	result, err := g.converter(pdfPath)
	if err != nil {
		return Result{}, fmt.Errorf("convert: %s: %w", pdfPath, err)
	}

	if err := os.WriteFile(outputMDPath, []byte(result.MarkdownText), 0o644); err != nil {
		return Result{}, fmt.Errorf("convert: write markdown %s: %w", outputMDPath, err)
	}

	return result, nil
}

func (g *Gateway) lockFor(storageKey string) *sync.Mutex {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	lock, ok := g.storageLocks[storageKey]
	if !ok {
		lock = &sync.Mutex{}
		g.storageLocks[storageKey] = lock
	}
	return lock
}
