package config

import (
	"errors"
	"os"
	"strconv"

	"sysrev/types"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener and static assets.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	UploadDir string `yaml:"upload_dir"`
}

// OpenAIConfig configures the OpenAI-compatible embeddings and chat clients.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	BatchSize      int    `yaml:"batch_size"`
	MaxRetries     int    `yaml:"max_retries"`
}

// ChunkerConfig configures how paper text is split before embedding.
// Size and overlap are measured in words.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig configures top-K search and context assembly.
type RetrievalConfig struct {
	TopK            int `yaml:"top_k"`
	ChunksPerPaper  int `yaml:"chunks_per_paper"`
	ContextTokenCap int `yaml:"context_token_cap"`
	ModelTokenLimit int `yaml:"model_token_limit"`
	MaxOutputTokens int `yaml:"max_output_tokens"`
	OutputSafetyGap int `yaml:"output_safety_gap"`
	MinOutputTokens int `yaml:"min_output_tokens"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend     string `yaml:"backend"` // "file" or "postgres"
	Dir         string `yaml:"dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Backend string `yaml:"backend"` // "memory" or "bolt"
	Path    string `yaml:"path"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Index     IndexConfig     `yaml:"index"`
	Sessions  SessionConfig   `yaml:"sessions"`
	Pricing   types.Pricing   `yaml:"pricing"`
}

// Load reads the config from path, falling back to defaults when the file
// does not exist, then applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":5001",
			StaticDir: "./static",
			UploadDir: "uploads",
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			APIKeyEnv:      "OPENAI_API_KEY",
			EmbeddingModel: "text-embedding-3-large",
			ChatModel:      "gpt-3.5-turbo-16k",
			TimeoutSecs:    60,
			BatchSize:      100,
			MaxRetries:     3,
		},
		Chunker: ChunkerConfig{
			Size:    750,
			Overlap: 50,
		},
		Retrieval: RetrievalConfig{
			TopK:            20,
			ChunksPerPaper:  3,
			ContextTokenCap: 10000,
			ModelTokenLimit: 16385,
			MaxOutputTokens: 2000,
			OutputSafetyGap: 500,
			MinOutputTokens: 500,
		},
		Index: IndexConfig{
			Backend: "file",
			Dir:     "indexes",
		},
		Sessions: SessionConfig{
			Backend: "memory",
			Path:    "sessions.db",
		},
		Pricing: types.Pricing{
			EmbeddingPer1K:  0.00013,
			PromptPer1K:     0.0015,
			CompletionPer1K: 0.002,
		},
	}
}

func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = def.Server.UploadDir
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = def.OpenAI.BaseURL
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = def.OpenAI.EmbeddingModel
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = def.OpenAI.ChatModel
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = def.OpenAI.TimeoutSecs
	}
	if cfg.OpenAI.BatchSize == 0 {
		cfg.OpenAI.BatchSize = def.OpenAI.BatchSize
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = def.OpenAI.MaxRetries
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = def.Chunker.Size
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.ChunksPerPaper == 0 {
		cfg.Retrieval.ChunksPerPaper = def.Retrieval.ChunksPerPaper
	}
	if cfg.Retrieval.ContextTokenCap == 0 {
		cfg.Retrieval.ContextTokenCap = def.Retrieval.ContextTokenCap
	}
	if cfg.Retrieval.ModelTokenLimit == 0 {
		cfg.Retrieval.ModelTokenLimit = def.Retrieval.ModelTokenLimit
	}
	if cfg.Retrieval.MaxOutputTokens == 0 {
		cfg.Retrieval.MaxOutputTokens = def.Retrieval.MaxOutputTokens
	}
	if cfg.Retrieval.OutputSafetyGap == 0 {
		cfg.Retrieval.OutputSafetyGap = def.Retrieval.OutputSafetyGap
	}
	if cfg.Retrieval.MinOutputTokens == 0 {
		cfg.Retrieval.MinOutputTokens = def.Retrieval.MinOutputTokens
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = def.Index.Backend
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = def.Index.Dir
	}
	if cfg.Sessions.Backend == "" {
		cfg.Sessions.Backend = def.Sessions.Backend
	}
	if cfg.Sessions.Path == "" {
		cfg.Sessions.Path = def.Sessions.Path
	}
	if cfg.Pricing.EmbeddingPer1K == 0 {
		cfg.Pricing.EmbeddingPer1K = def.Pricing.EmbeddingPer1K
	}
	if cfg.Pricing.PromptPer1K == 0 {
		cfg.Pricing.PromptPer1K = def.Pricing.PromptPer1K
	}
	if cfg.Pricing.CompletionPer1K == 0 {
		cfg.Pricing.CompletionPer1K = def.Pricing.CompletionPer1K
	}
}

// Env overrides keep the container setup working without a config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.Server.UploadDir = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.OpenAI.EmbeddingModel = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v, ok := envInt("CHUNK_SIZE"); ok {
		cfg.Chunker.Size = v
	}
	if v, ok := envInt("CHUNK_OVERLAP"); ok {
		cfg.Chunker.Overlap = v
	}
	if v, ok := envInt("TOP_K"); ok {
		cfg.Retrieval.TopK = v
	}
	if v := os.Getenv("INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Index.PostgresDSN = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		cfg.Sessions.Backend = v
	}
	if v := os.Getenv("SESSION_DB_PATH"); v != "" {
		cfg.Sessions.Path = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
