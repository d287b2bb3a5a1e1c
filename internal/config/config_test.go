package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	v.Set(KeyLibraryRoot, "/tmp/library")
	v.Set(KeyMarkdownRoot, "/tmp/markdown")

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.ChunkOverlap)
	assert.Equal(t, DefaultCollectionName, cfg.CollectionName)
	assert.True(t, cfg.SkipExistingMarkdown)
	assert.False(t, cfg.ForceReindex)
}

func TestLoad_MissingRequired(t *testing.T) {
	v := viper.New()
	_, err := Load(v)
	assert.Error(t, err)
}

func TestConfig_CollectionIdentity(t *testing.T) {
	cfg := Config{
		CollectionName: "papers",
		EmbeddingAPI:   "local",
		EmbeddingModel: "mxbai-embed-large",
	}
	assert.Equal(t, "papers_local_mxbai-embed-large", cfg.CollectionIdentity())
}
