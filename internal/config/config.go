package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr     string
	DBPath         string
	ModelBackend   string
	GCPProject     string
	GCPLocation    string
	VertexModel    string
	OllamaHost     string
	OllamaModel    string
	ClaudeAPIKey   string
	ClaudeModel    string
	CredentialsDir string
	PhotoBackend   string
	PhotoPath      string
	PhotoBucket    string
	LogLevel       string
	LogFormat      string
	LogFile        string
}

// Load reads configuration from the environment. Variables in a .env file in
// the working directory are applied first but never override the real
// environment.
func Load() *Config {
	_ = godotenv.Load()
	return fromEnv()
}

// LoadFile is Load with an explicit dotenv path. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return fromEnv(), nil
}

func fromEnv() *Config {
	return &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DBPath:         getEnv("DB_PATH", "/data/nutrilens.db"),
		ModelBackend:   getEnv("MODEL_BACKEND", "vertex"),
		GCPProject:     getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GCPLocation:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		VertexModel:    getEnv("VERTEX_MODEL", "gemini-2.0-flash-001"),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llava"),
		ClaudeAPIKey:   getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:    getEnv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		CredentialsDir: getEnv("CREDENTIALS_DIR", "config"),
		PhotoBackend:   getEnv("PHOTO_BACKEND", "local"),
		PhotoPath:      getEnv("PHOTO_LOCAL_PATH", "/data/photos"),
		PhotoBucket:    getEnv("PHOTO_BUCKET", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		LogFile:        getEnv("LOG_FILE", ""),
	}
}

// Validate rejects unknown backends and missing settings a backend needs.
// A model backend whose credentials are absent is not an error here; the
// model handle degrades at startup instead.
func (c *Config) Validate() error {
	var errs []error
	switch c.ModelBackend {
	case "vertex", "ollama", "claude":
	default:
		errs = append(errs, fmt.Errorf("unknown MODEL_BACKEND %q", c.ModelBackend))
	}
	switch c.PhotoBackend {
	case "local":
	case "gcs":
		if c.PhotoBucket == "" {
			errs = append(errs, errors.New("PHOTO_BUCKET is required when PHOTO_BACKEND=gcs"))
		}
	case "none":
	default:
		errs = append(errs, fmt.Errorf("unknown PHOTO_BACKEND %q", c.PhotoBackend))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}
