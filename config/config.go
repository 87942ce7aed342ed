package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Catalog sources understood by the loader.
const (
	SourceCSV    = "csv"
	SourceMongo  = "mongo"
	SourceSQLite = "sqlite"
)

// SimpleEmbeddingModel selects the local hashing embedder instead of Ollama.
const SimpleEmbeddingModel = "simple"

type GeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	// 0 disables client-side throttling
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type EmbedderConfig struct {
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"` // "http://localhost:11434"
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type CatalogConfig struct {
	Source     string `yaml:"source"`
	Path       string `yaml:"path"`
	SQLitePath string `yaml:"sqlite_path"`
}

type IndexConfig struct {
	Path string `yaml:"path"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ServerConfig struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Config struct {
	// credential for the generative service
	APIKey string `yaml:"api_key"`
	// generative model invoked for answers
	ModelName string `yaml:"model_name"`

	Generator GeneratorConfig `yaml:"generator"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Mongo     MongoConfig     `yaml:"mongo"`
}

// Load reads the YAML file at path, applies environment overrides (a .env file
// in the working directory is honoured) and fills defaults. The result is not
// validated; call Validate before using it.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadAndValidate is Load followed by Validate.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api_key is required"))
	}
	if strings.TrimSpace(c.ModelName) == "" {
		errs = append(errs, errors.New("model_name is required"))
	}
	switch c.Catalog.Source {
	case SourceCSV:
		if c.Catalog.Path == "" {
			errs = append(errs, errors.New("catalog.path is required for csv source"))
		}
	case SourceSQLite:
		if c.Catalog.SQLitePath == "" {
			errs = append(errs, errors.New("catalog.sqlite_path is required for sqlite source"))
		}
	case SourceMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo.uri is required for mongo source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown catalog.source %q", c.Catalog.Source))
	}
	if c.Index.Path == "" {
		errs = append(errs, errors.New("index.path is required"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnv(cfg *Config) {
	getEnv := func(key string, target *string) {
		if value := os.Getenv(key); value != "" {
			*target = value
		}
	}

	getEnvInt := func(key string, target *int) {
		valueStr := os.Getenv(key)
		if valueStr == "" {
			return
		}
		if value, err := strconv.Atoi(valueStr); err == nil {
			*target = value
		}
	}

	getEnv("GEMINI_API_KEY", &cfg.APIKey)
	getEnv("GEMINI_MODEL", &cfg.ModelName)
	getEnv("OLLAMA_URL", &cfg.Embedder.BaseURL)
	getEnv("EMBEDDING_MODEL", &cfg.Embedder.Model)
	getEnv("CATALOG_SOURCE", &cfg.Catalog.Source)
	getEnv("INDEX_PATH", &cfg.Index.Path)
	getEnvInt("TOP_K", &cfg.Retrieval.TopK)
	getEnv("PORT", &cfg.Server.Port)
	getEnv("ENVIRONMENT", &cfg.Server.Environment)
	getEnv("MONGO_URI", &cfg.Mongo.URI)
}

func applyDefaults(cfg *Config) {
	setDefault := func(target *string, value string) {
		if *target == "" {
			*target = value
		}
	}

	setDefault(&cfg.Generator.BaseURL, "https://generativelanguage.googleapis.com/v1beta")
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}

	setDefault(&cfg.Embedder.Model, SimpleEmbeddingModel)
	setDefault(&cfg.Embedder.BaseURL, "http://localhost:11434")
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 60
	}

	setDefault(&cfg.Catalog.Source, SourceCSV)
	setDefault(&cfg.Catalog.Path, "music_db.csv")
	setDefault(&cfg.Catalog.SQLitePath, "music.db")
	setDefault(&cfg.Index.Path, "faiss_index.bin")

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}

	setDefault(&cfg.Server.Port, "5000")
	setDefault(&cfg.Server.Environment, "development")

	setDefault(&cfg.Mongo.URI, "mongodb://localhost:27017")
	setDefault(&cfg.Mongo.Database, "music_db")
	setDefault(&cfg.Mongo.Collection, "songs")
}
