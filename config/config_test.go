package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, ":5001", cfg.Server.Addr)
	require.Equal(t, "text-embedding-3-large", cfg.OpenAI.EmbeddingModel)
	require.Equal(t, "gpt-3.5-turbo-16k", cfg.OpenAI.ChatModel)
	require.Equal(t, 750, cfg.Chunker.Size)
	require.Equal(t, 50, cfg.Chunker.Overlap)
	require.Equal(t, 20, cfg.Retrieval.TopK)
	require.Equal(t, "file", cfg.Index.Backend)
	require.Equal(t, "memory", cfg.Sessions.Backend)
	require.Equal(t, 0.00013, cfg.Pricing.EmbeddingPer1K)
}

func TestLoadPartialFileKeepsDefaultsForTheRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("server:\n  addr: \":9090\"\nchunker:\n  size: 200\n  overlap: 10\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 200, cfg.Chunker.Size)
	require.Equal(t, 10, cfg.Chunker.Overlap)
	// Untouched sections fall back to defaults.
	require.Equal(t, 20, cfg.Retrieval.TopK)
	require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 5\n"), 0644))

	t.Setenv("TOP_K", "7")
	t.Setenv("SERVER_ADDR", ":8080")
	t.Setenv("INDEX_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/sysrev")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 7, cfg.Retrieval.TopK)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "postgres", cfg.Index.Backend)
	require.Equal(t, "postgres://localhost/sysrev", cfg.Index.PostgresDSN)
}

func TestLoadBadYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}
