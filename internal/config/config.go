// Package config loads scico's configuration (spec.md §6) from flags,
// environment variables (SCICO_* via viper, .env via godotenv), with
// teacher-style Default*/Key* constants (cli/config.go in the teacher's
// now-deleted krait-based CLI) carried over onto a plain loaded struct
// instead of a global settings singleton — see DESIGN.md's note on why
// the teacher's settings/ package was dropped.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	AppName = "scico"
)

// Default configuration values, mirroring the teacher's
// cli/config.go Default* constants.
const (
	DefaultChunkSize           = 1000
	DefaultChunkOverlap        = 200
	DefaultChunkingStrategy    = "markdown+recursive"
	DefaultSkipExistingMD      = true
	DefaultForceReindex        = false
	DefaultEmbeddingAPI        = "local"
	DefaultEmbeddingModel      = "mxbai-embed-large"
	DefaultCollectionName      = "default"
	DefaultChatAPI             = "local"
	DefaultChatModel           = "jan-v1:q6_k"
	DefaultChatTemperature     = 0.2
	DefaultMaxSearchDepth      = 5
	DefaultMaxDocsPerSearch    = 10
	DefaultKDocuments          = 4
	DefaultRelevanceThreshold  = 1.5
	DefaultExcludeReferences   = false
)

// Viper keys, mirroring the teacher's cli/config.go Key* constants.
const (
	KeyLibraryRoot         = "library.root"
	KeyLibraryAPIID        = "library.api-id"
	KeyLibraryAPIKey       = "library.api-key"
	KeyMarkdownRoot        = "markdown.root"
	KeyForceReindex        = "index.force-reindex"
	KeySkipExistingMD      = "index.skip-existing-markdown"
	KeyChunkSize           = "chunk.size"
	KeyChunkOverlap        = "chunk.overlap"
	KeyChunkingStrategy    = "chunk.strategy"
	KeyVectorStorageRoot   = "vector.storage-root"
	KeyCollectionName      = "vector.collection-name"
	KeyEmbeddingModel      = "vector.embedding-model"
	KeyEmbeddingAPI        = "vector.embedding-api"
	KeyChatName            = "chat.name"
	KeyChatAPI             = "chat.api"
	KeyChatTemperature     = "chat.temperature"
	KeyMaxSearchDepth      = "research.max-search-depth"
	KeyMaxDocsPerSearch    = "research.max-docs-per-search"
	KeyKDocuments          = "research.k-documents"
	KeyRelevanceThreshold  = "research.relevance-threshold"
	KeyExcludeReferences   = "research.exclude-references"
)

// Config is scico's fully-resolved configuration (spec.md §6's
// "Configuration (all options enumerated)"), loaded once at startup and
// passed explicitly to constructors — not read from a global singleton.
type Config struct {
	LibraryRoot   string
	LibraryAPIID  string
	LibraryAPIKey string

	MarkdownRoot         string
	ForceReindex         bool
	SkipExistingMarkdown bool

	ChunkSize        int
	ChunkOverlap     int
	ChunkingStrategy string

	VectorStorageRoot string
	CollectionName    string
	EmbeddingModel    string
	EmbeddingAPI      string

	ChatName        string
	ChatAPI         string
	ChatTemperature float64

	MaxSearchDepth      int
	MaxDocsPerSearch    int
	KDocuments          int
	RelevanceThreshold  float64
	ExcludeReferences   bool
}

// CollectionIdentity implements spec.md §4.D's collection-identity rule:
// "<name>_<embedding_api>_<embedding_model>", so switching embedding
// model/provider never silently mixes incompatible embedding spaces in
// one collection (DESIGN.md Open Question decision).
func (c Config) CollectionIdentity() string {
	return fmt.Sprintf("%s_%s_%s", c.CollectionName, c.EmbeddingAPI, c.EmbeddingModel)
}

// DefaultCacheDir returns the default local cache directory, mirroring
// the teacher's cli/config.go DefaultCacheDir.
func DefaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".cache", AppName)
}

// Load reads configuration from environment variables (SCICO_* via
// viper, with .env support via godotenv) and the already-populated v
// (typically bound to cobra flags by the caller). Flags/env set on v
// win over the defaults set here.
func Load(v *viper.Viper) (Config, error) {
	_ = godotenv.Load() // optional .env in the working directory; absence is not an error

	v.SetEnvPrefix("SCICO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := Config{
		LibraryRoot:   v.GetString(KeyLibraryRoot),
		LibraryAPIID:  v.GetString(KeyLibraryAPIID),
		LibraryAPIKey: v.GetString(KeyLibraryAPIKey),

		MarkdownRoot:         v.GetString(KeyMarkdownRoot),
		ForceReindex:         v.GetBool(KeyForceReindex),
		SkipExistingMarkdown: v.GetBool(KeySkipExistingMD),

		ChunkSize:        v.GetInt(KeyChunkSize),
		ChunkOverlap:     v.GetInt(KeyChunkOverlap),
		ChunkingStrategy: v.GetString(KeyChunkingStrategy),

		VectorStorageRoot: v.GetString(KeyVectorStorageRoot),
		CollectionName:    v.GetString(KeyCollectionName),
		EmbeddingModel:    v.GetString(KeyEmbeddingModel),
		EmbeddingAPI:      v.GetString(KeyEmbeddingAPI),

		ChatName:        v.GetString(KeyChatName),
		ChatAPI:         v.GetString(KeyChatAPI),
		ChatTemperature: v.GetFloat64(KeyChatTemperature),

		MaxSearchDepth:     v.GetInt(KeyMaxSearchDepth),
		MaxDocsPerSearch:   v.GetInt(KeyMaxDocsPerSearch),
		KDocuments:         v.GetInt(KeyKDocuments),
		RelevanceThreshold: v.GetFloat64(KeyRelevanceThreshold),
		ExcludeReferences:  v.GetBool(KeyExcludeReferences),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeySkipExistingMD, DefaultSkipExistingMD)
	v.SetDefault(KeyForceReindex, DefaultForceReindex)
	v.SetDefault(KeyChunkSize, DefaultChunkSize)
	v.SetDefault(KeyChunkOverlap, DefaultChunkOverlap)
	v.SetDefault(KeyChunkingStrategy, DefaultChunkingStrategy)
	v.SetDefault(KeyCollectionName, DefaultCollectionName)
	v.SetDefault(KeyEmbeddingModel, DefaultEmbeddingModel)
	v.SetDefault(KeyEmbeddingAPI, DefaultEmbeddingAPI)
	v.SetDefault(KeyChatAPI, DefaultChatAPI)
	v.SetDefault(KeyChatName, DefaultChatModel)
	v.SetDefault(KeyChatTemperature, DefaultChatTemperature)
	v.SetDefault(KeyMaxSearchDepth, DefaultMaxSearchDepth)
	v.SetDefault(KeyMaxDocsPerSearch, DefaultMaxDocsPerSearch)
	v.SetDefault(KeyKDocuments, DefaultKDocuments)
	v.SetDefault(KeyRelevanceThreshold, DefaultRelevanceThreshold)
	v.SetDefault(KeyExcludeReferences, DefaultExcludeReferences)
}

// validate implements spec.md §7's "Configuration error: missing
// path/key ... fail fast at construction" policy.
func (c Config) validate() error {
	if c.MarkdownRoot == "" {
		return fmt.Errorf("%s is required", KeyMarkdownRoot)
	}
	if c.LibraryRoot == "" {
		return fmt.Errorf("%s is required", KeyLibraryRoot)
	}
	return nil
}
