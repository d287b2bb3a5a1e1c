package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aqua777/scico/internal/bibitem"
	"github.com/aqua777/scico/internal/config"
	"github.com/aqua777/scico/internal/indexer"
)

func main() {
	v := viper.New()
	var cfgFlags struct {
		libraryRoot, libraryAPIID, libraryAPIKey string
		markdownRoot                             string
		forceReindex, skipExistingMD             bool
		chunkSize, chunkOverlap                  int
		chunkingStrategy                         string
		vectorStorageRoot, collectionName        string
		embeddingModel, embeddingAPI             string
		chatName, chatAPI                        string
		chatTemperature                          float64
		maxSearchDepth, maxDocsPerSearch          int
		kDocuments                                int
		relevanceThreshold                        float64
		excludeReferences                         bool
	}

	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Local research assistant over a reference-manager library",
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFlags.libraryRoot, "library-root", "", "reference manager library root path")
	pf.StringVar(&cfgFlags.libraryAPIID, "library-api-id", "", "reference manager API id")
	pf.StringVar(&cfgFlags.libraryAPIKey, "library-api-key", "", "reference manager API key")
	pf.StringVar(&cfgFlags.markdownRoot, "markdown-root", "", "converted-markdown cache directory")
	pf.BoolVar(&cfgFlags.forceReindex, "force-reindex", false, "delete then reinsert every selected item")
	pf.BoolVar(&cfgFlags.skipExistingMD, "skip-existing-markdown", true, "reuse cached markdown when present")
	pf.IntVar(&cfgFlags.chunkSize, "chunk-size", config.DefaultChunkSize, "chunk size")
	pf.IntVar(&cfgFlags.chunkOverlap, "chunk-overlap", config.DefaultChunkOverlap, "chunk overlap")
	pf.StringVar(&cfgFlags.chunkingStrategy, "chunking-strategy", config.DefaultChunkingStrategy, "markdown+recursive|semantic")
	pf.StringVar(&cfgFlags.vectorStorageRoot, "vector-storage-root", "", "vector index storage directory")
	pf.StringVar(&cfgFlags.collectionName, "collection-name", config.DefaultCollectionName, "vector index collection name")
	pf.StringVar(&cfgFlags.embeddingModel, "embedding-model", config.DefaultEmbeddingModel, "embedding model name")
	pf.StringVar(&cfgFlags.embeddingAPI, "embedding-api", config.DefaultEmbeddingAPI, "local|remote")
	pf.StringVar(&cfgFlags.chatName, "chat-name", config.DefaultChatModel, "chat model name")
	pf.StringVar(&cfgFlags.chatAPI, "chat-api", config.DefaultChatAPI, "local|remote")
	pf.Float64Var(&cfgFlags.chatTemperature, "chat-temperature", config.DefaultChatTemperature, "chat sampling temperature")
	pf.IntVar(&cfgFlags.maxSearchDepth, "max-search-depth", config.DefaultMaxSearchDepth, "research loop max rounds")
	pf.IntVar(&cfgFlags.maxDocsPerSearch, "max-docs-per-search", config.DefaultMaxDocsPerSearch, "research loop docs per round")
	pf.IntVar(&cfgFlags.kDocuments, "k-documents", config.DefaultKDocuments, "ad-hoc retrieval result count")
	pf.Float64Var(&cfgFlags.relevanceThreshold, "relevance-threshold", config.DefaultRelevanceThreshold, "distance-unit relevance cutoff")
	pf.BoolVar(&cfgFlags.excludeReferences, "exclude-references", config.DefaultExcludeReferences, "drop chunks under a References heading")

	bindAll := func() {
		_ = v.BindPFlag(config.KeyLibraryRoot, pf.Lookup("library-root"))
		_ = v.BindPFlag(config.KeyLibraryAPIID, pf.Lookup("library-api-id"))
		_ = v.BindPFlag(config.KeyLibraryAPIKey, pf.Lookup("library-api-key"))
		_ = v.BindPFlag(config.KeyMarkdownRoot, pf.Lookup("markdown-root"))
		_ = v.BindPFlag(config.KeyForceReindex, pf.Lookup("force-reindex"))
		_ = v.BindPFlag(config.KeySkipExistingMD, pf.Lookup("skip-existing-markdown"))
		_ = v.BindPFlag(config.KeyChunkSize, pf.Lookup("chunk-size"))
		_ = v.BindPFlag(config.KeyChunkOverlap, pf.Lookup("chunk-overlap"))
		_ = v.BindPFlag(config.KeyChunkingStrategy, pf.Lookup("chunking-strategy"))
		_ = v.BindPFlag(config.KeyVectorStorageRoot, pf.Lookup("vector-storage-root"))
		_ = v.BindPFlag(config.KeyCollectionName, pf.Lookup("collection-name"))
		_ = v.BindPFlag(config.KeyEmbeddingModel, pf.Lookup("embedding-model"))
		_ = v.BindPFlag(config.KeyEmbeddingAPI, pf.Lookup("embedding-api"))
		_ = v.BindPFlag(config.KeyChatName, pf.Lookup("chat-name"))
		_ = v.BindPFlag(config.KeyChatAPI, pf.Lookup("chat-api"))
		_ = v.BindPFlag(config.KeyChatTemperature, pf.Lookup("chat-temperature"))
		_ = v.BindPFlag(config.KeyMaxSearchDepth, pf.Lookup("max-search-depth"))
		_ = v.BindPFlag(config.KeyMaxDocsPerSearch, pf.Lookup("max-docs-per-search"))
		_ = v.BindPFlag(config.KeyKDocuments, pf.Lookup("k-documents"))
		_ = v.BindPFlag(config.KeyRelevanceThreshold, pf.Lookup("relevance-threshold"))
		_ = v.BindPFlag(config.KeyExcludeReferences, pf.Lookup("exclude-references"))
	}

	loadApp := func() (*app, error) {
		bindAll()
		cfg, err := config.Load(v)
		if err != nil {
			return nil, err
		}
		return newApp(cfg)
	}

	var selectorFlag string
	var forceFlag bool
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Update the vector index from the reference library",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			sel, err := parseSelector(selectorFlag)
			if err != nil {
				return err
			}
			force := forceFlag || a.cfg.ForceReindex
			result, err := a.indexer.UpdateIndex(cmd.Context(), sel, force, func(done, total int) {
				fmt.Fprintf(os.Stderr, "indexing: %d/%d\n", done, total)
			})
			if err != nil {
				return err
			}
			printIndexResult(result)
			return nil
		},
	}
	indexCmd.Flags().StringVar(&selectorFlag, "selector", "", "name=...|id=...|collection-id=...|collection-name=...")
	indexCmd.Flags().BoolVar(&forceFlag, "force", false, "delete then reinsert every selected item")
	_ = indexCmd.MarkFlagRequired("selector")

	var searchQuery, searchItem string
	var searchK int
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run an ad-hoc similarity search over the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			k := searchK
			if k <= 0 {
				k = a.cfg.KDocuments
			}
			var chunks []bibitem.Chunk
			if searchItem != "" {
				chunks, err = a.retriever.ByItem(cmd.Context(), searchItem, searchQuery, k)
			} else {
				chunks, err = a.retriever.Semantic(cmd.Context(), searchQuery, k)
			}
			if err != nil {
				return err
			}
			for _, line := range formatSearchResults(chunks) {
				fmt.Println(line)
			}
			return nil
		},
	}
	searchCmd.Flags().StringVar(&searchQuery, "query", "", "search text")
	searchCmd.Flags().StringVar(&searchItem, "item", "", "restrict to this item_id")
	searchCmd.Flags().IntVar(&searchK, "k", 0, "result count (default: config k_documents)")
	_ = searchCmd.MarkFlagRequired("query")

	var askQuestion string
	askCmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer a question via the research loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			loop := a.newResearchLoop()
			state, err := loop.Run(cmd.Context(), askQuestion)
			if err != nil {
				return err
			}
			fmt.Println(state.FinalResponse)
			return nil
		},
	}
	askCmd.Flags().StringVar(&askQuestion, "question", "", "question to research")
	_ = askCmd.MarkFlagRequired("question")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print vector index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			stats := a.store.Stats()
			fmt.Printf("total chunks: %d\n", stats.TotalChunks)
			for itemID, st := range stats.Items {
				fmt.Printf("  %s\t%s\t%d chunks\n", itemID, st.Title, st.Count)
			}
			return nil
		},
	}

	var confirmClear bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all chunks from the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if !confirmClear {
				if !promptConfirm(fmt.Sprintf("Delete all chunks in the %q collection? [y/N] ", a.cfg.CollectionIdentity())) {
					fmt.Println("Aborted.")
					return nil
				}
			}
			return a.store.Clear(cmd.Context())
		},
	}
	clearCmd.Flags().BoolVar(&confirmClear, "confirm", false, "skip the interactive confirmation prompt")

	root.AddCommand(indexCmd, searchCmd, askCmd, statsCmd, clearCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func promptConfirm(prompt string) bool {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
	return answer == "y" || answer == "yes"
}

func printIndexResult(r indexer.Result) {
	fmt.Printf("indexed %d/%d items (%d chunks created, %d failed)\n", r.Successful, r.Total, r.ChunksCreated, r.Failed)
	for _, f := range r.FailedItems {
		fmt.Printf("  FAILED %s (%s): %s\n", f.ItemID, f.PDFPath, f.Reason)
	}
}

func formatSearchResults(chunks []bibitem.Chunk) []string {
	lines := make([]string, len(chunks))
	for i, c := range chunks {
		lines[i] = fmt.Sprintf("%.4f\t%s\t%s#%d\t%s", c.Distance, c.ItemID, c.Title, c.SplitID, truncate(c.Content, 160))
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
