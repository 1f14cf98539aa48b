package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "QUILL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "QUILL_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "ollama.base_url", typ: kString, env: "QUILL_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.gen_model", typ: kString, env: "QUILL_OLLAMA_GEN_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.GenModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.GenModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "QUILL_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "ollama.call_timeout", typ: kString, env: "QUILL_OLLAMA_CALL_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Ollama.CallTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.CallTimeout },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QUILL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.style_top_k", typ: kInt, env: "QUILL_RETRIEVAL_STYLE_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.StyleTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.StyleTopK },
	},
	{
		key: "retrieval.feedback_top_k", typ: kInt, env: "QUILL_RETRIEVAL_FEEDBACK_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.FeedbackTopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.FeedbackTopK },
	},
	{
		key: "log.level", typ: kString, env: "QUILL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
