package config

import (
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Ollama    OllamaConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
	// AllowedOrigins is a comma-separated list of origins permitted to call
	// the HTTP API from a browser. Empty disables CORS headers entirely.
	AllowedOrigins string
}

type OllamaConfig struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
	// CallTimeout bounds a single generation or embedding call,
	// parsed with time.ParseDuration.
	CallTimeout string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	// StyleTopK is the number of style exemplars retrieved per generation.
	StyleTopK int
	// FeedbackTopK is the number of feedback entries retrieved per kind.
	FeedbackTopK int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           4600,
			AllowedOrigins: "http://localhost:5173,http://127.0.0.1:5173",
		},
		Ollama: OllamaConfig{
			BaseURL:     "http://localhost:11434",
			GenModel:    "llama3:8b",
			EmbedModel:  "nomic-embed-text",
			CallTimeout: "90s",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			StyleTopK:    3,
			FeedbackTopK: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/quill/config.json, then applies QUILL_* environment
// variable overrides. A missing file and missing keys fall back to defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// ProfilesDir is where per-profile sample files live.
func (c Config) ProfilesDir() string {
	return filepath.Join(c.Storage.DataDir, "profiles")
}

// FeedbackDir is where per-profile feedback JSON logs live.
func (c Config) FeedbackDir() string {
	return filepath.Join(c.Storage.DataDir, "feedback")
}

// CallTimeout returns the parsed Ollama call timeout, or 90s if the
// configured value does not parse.
func (c Config) CallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Ollama.CallTimeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// Origins splits the configured AllowedOrigins list. Empty entries are dropped.
func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.Server.AllowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
