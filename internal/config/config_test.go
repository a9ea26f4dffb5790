package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != "jsonfile" {
		t.Errorf("expected jsonfile, got %s", cfg.Store.Backend)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected 1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Engine.MemoryTopK != 5 {
		t.Errorf("expected 5, got %d", cfg.Engine.MemoryTopK)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
api_key = "sk-file"

[engine]
memory_top_k = 8
`), 0644)

	cfg := Load(path)
	if cfg.LLM.APIKey != "sk-file" {
		t.Errorf("expected sk-file, got %s", cfg.LLM.APIKey)
	}
	if cfg.Engine.MemoryTopK != 8 {
		t.Errorf("expected 8, got %d", cfg.Engine.MemoryTopK)
	}
	// Defaults preserved
	if cfg.Store.Backend != "jsonfile" {
		t.Errorf("default should be preserved, got %s", cfg.Store.Backend)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("ONI_LLM_API_KEY", "env-key")
	t.Setenv("ONI_STORE_BACKEND", "sqlite")

	cfg := Load("/nonexistent/path.toml")
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Store.Backend)
	}
	// Fallback: embedding gets the LLM key
	if cfg.Embedding.APIKey != "env-key" {
		t.Errorf("expected embedding fallback to env-key, got %s", cfg.Embedding.APIKey)
	}
}

func TestEmbeddingKeyNotOverwritten(t *testing.T) {
	t.Setenv("ONI_LLM_API_KEY", "llm-key")
	t.Setenv("ONI_EMBEDDING_API_KEY", "embed-key")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Embedding.APIKey != "embed-key" {
		t.Errorf("expected embed-key, got %s", cfg.Embedding.APIKey)
	}
}
