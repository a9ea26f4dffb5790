package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"store"`
	OAuth     OAuthConfig     `toml:"oauth"`
	Engine    EngineConfig    `toml:"engine"`
	Observer  ObserverConfig  `toml:"observer"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type LLMConfig struct {
	Model string `toml:"model"`
	// APIKeyBaseURL serves the turn-based wire style, OAuthBaseURL the
	// call-id-keyed stateful one.
	APIKeyBaseURL string `toml:"api_key_base_url"`
	OAuthBaseURL  string `toml:"oauth_base_url"`
	APIKey        string `toml:"api_key"`
}

type EmbeddingConfig struct {
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

type StoreConfig struct {
	// Backend selects jsonfile, sqlite, or postgres.
	Backend     string `toml:"backend"`
	Dir         string `toml:"dir"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresURL string `toml:"postgres_url"`
}

type OAuthConfig struct {
	AuthorizeURL string   `toml:"authorize_url"`
	TokenURL     string   `toml:"token_url"`
	ClientID     string   `toml:"client_id"`
	RedirectURI  string   `toml:"redirect_uri"`
	Scopes       []string `toml:"scopes"`
}

type EngineConfig struct {
	MemoryTopK         int `toml:"memory_top_k"`
	TurnTimeoutSeconds int `toml:"turn_timeout_seconds"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Server:    ServerConfig{Listen: "127.0.0.1:4517"},
		LLM:       LLMConfig{Model: "gpt-4o-mini", APIKeyBaseURL: "https://api.openai.com/v1", OAuthBaseURL: "https://api.openai.com/v1"},
		Embedding: EmbeddingConfig{Model: "text-embedding-3-small", Dimensions: 1536},
		Store:     StoreConfig{Backend: "jsonfile", Dir: filepath.Join(home, ".oni", "data"), SQLitePath: filepath.Join(home, ".oni", "oni.db")},
		Engine:    EngineConfig{MemoryTopK: 5, TurnTimeoutSeconds: 300},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "oni.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("ONI_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("ONI_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ONI_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ONI_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("ONI_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("ONI_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("ONI_POSTGRES_URL"); v != "" {
		cfg.Store.PostgresURL = v
	}
	if v := os.Getenv("ONI_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if os.Getenv("ONI_OBSERVER_ENABLED") == "true" || os.Getenv("ONI_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("ONI_OBSERVER_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}

	// Fallbacks
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}

	return cfg
}
