package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		Provider      string        `yaml:"provider"`
		BaseURL       string        `yaml:"base_url"`
		Model         string        `yaml:"model"`
		APIKey        string        `yaml:"api_key"`
		MaxTokens     int           `yaml:"max_tokens"`
		Temperature   float64       `yaml:"temperature"`
		Timeout       time.Duration `yaml:"timeout"`
		MaxRetries    int           `yaml:"max_retries"`
		RateLimit     float64       `yaml:"rate_limit"`
		ContextBudget int           `yaml:"context_budget"`
	} `yaml:"llm"`

	Embedder struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"embedder"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"processor"`

	Server struct {
		Port           int           `yaml:"port"`
		BodyLimit      string        `yaml:"body_limit"`
		SessionTTL     time.Duration `yaml:"session_ttl"`
		MaxUploads     int           `yaml:"max_uploads"`
		AnalyzeTimeout time.Duration `yaml:"analyze_timeout"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/insight/config.yaml"),
			"/etc/insight/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "llama-3.1-8b-instant"
		}
	}
	if config.LLM.BaseURL == "" {
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = "http://localhost:11434"
		} else {
			config.LLM.BaseURL = "https://api.groq.com/openai/v1"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}
	if config.LLM.MaxRetries == 0 {
		config.LLM.MaxRetries = 2
	}
	if config.LLM.RateLimit == 0 {
		config.LLM.RateLimit = 5
	}
	if config.LLM.ContextBudget == 0 {
		config.LLM.ContextBudget = 12000
	}

	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Model == "" {
		config.Embedder.Model = "nomic-embed-text:latest"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "document_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 100
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
	if config.Server.BodyLimit == "" {
		config.Server.BodyLimit = "50M"
	}
	if config.Server.SessionTTL == 0 {
		config.Server.SessionTTL = 30 * time.Minute
	}
	if config.Server.MaxUploads == 0 {
		config.Server.MaxUploads = 64
	}
	if config.Server.AnalyzeTimeout == 0 {
		config.Server.AnalyzeTimeout = 2 * time.Minute
	}
}

func mergeWithEnv(config *Config) {
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
		if config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		config.Server.Port = port
	}
}
