package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/chunker"
	"github.com/aqua777/scico/internal/config"
	"github.com/aqua777/scico/internal/convert"
	"github.com/aqua777/scico/internal/indexer"
	"github.com/aqua777/scico/internal/research"
	"github.com/aqua777/scico/internal/retriever"
	"github.com/aqua777/scico/internal/vectorstore"
	"github.com/aqua777/scico/internal/zotero"
	"github.com/aqua777/scico/llm"
)

// app holds the fully-wired components for one CLI invocation,
// generalizing the teacher's cli/rag.go RAGCommand to SPEC_FULL.md's
// component set: Library Client, Converter Gateway, Chunker, Vector
// Index, Indexer, Retriever, Research Loop.
type app struct {
	cfg config.Config

	library   *zotero.Client
	gateway   *convert.Gateway
	chunker   *chunker.Chunker
	store     *vectorstore.Store
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	chat      llm.LLM

	logger *slog.Logger
}

func newApp(cfg config.Config) (*app, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	chat, err := newChatModel(cfg)
	if err != nil {
		return nil, err
	}

	storagePath := cfg.VectorStorageRoot
	store, err := vectorstore.New(storagePath, cfg.CollectionIdentity(), embedder, vectorstore.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}

	library := zotero.New(cfg.LibraryAPIID, cfg.LibraryAPIKey, cfg.LibraryRoot, zotero.WithLogger(logger))

	gateway := convert.New(convert.LocalFallbackConverter,
		convert.WithSkipExistingMarkdown(cfg.SkipExistingMarkdown),
		convert.WithLogger(logger))

	ck := chunker.New(
		chunker.WithChunkSize(cfg.ChunkSize),
		chunker.WithChunkOverlap(cfg.ChunkOverlap),
	)

	ix := indexer.New(library, gateway, ck, store, cfg.MarkdownRoot, indexer.WithLogger(logger))
	rt := retriever.New(store, embedder)

	return &app{
		cfg:       cfg,
		library:   library,
		gateway:   gateway,
		chunker:   ck,
		store:     store,
		indexer:   ix,
		retriever: rt,
		chat:      chat,
		logger:    logger,
	}, nil
}

func (a *app) newResearchLoop() *research.Loop {
	return research.New(a.retriever, a.chat, a.cfg.MaxSearchDepth, a.cfg.MaxDocsPerSearch, a.cfg.ExcludeReferences,
		research.WithLogger(a.logger))
}

// parseSelector translates the CLI's `--selector <kind>=<value>` flag
// into a bibitem.Selector, per SPEC_FULL.md §5's
// `name=...|id=...|collection-id=...|collection-name=...` surface.
func parseSelector(raw string) (bibitem.Selector, error) {
	kind, value, ok := splitOnce(raw, '=')
	if !ok {
		return bibitem.Selector{}, fmt.Errorf("invalid --selector %q: expected <kind>=<value>", raw)
	}
	switch kind {
	case bibitem.KindByName:
		return bibitem.ByName(value), nil
	case bibitem.KindByID:
		return bibitem.ByID(value), nil
	case bibitem.KindByCollectionID:
		return bibitem.ByCollectionID(value), nil
	case bibitem.KindByCollectionName:
		return bibitem.ByCollectionName(value), nil
	default:
		return bibitem.Selector{}, fmt.Errorf("invalid --selector kind %q", kind)
	}
}

func splitOnce(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
