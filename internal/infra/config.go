package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport values accepted by MCP_TRANSPORT.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents application configuration loaded from environment
// variables, optionally seeded from a YAML file named by VERTEX_MCP_CONFIG.
// Environment variables always win over file values.
type Config struct {
	AppEnv    string
	Transport string
	Port      string

	GoogleAPIKey  string
	VertexBaseURL string
	ImageModel    string
	VideoModel    string

	// DatabaseURL enables the generation ledger when set.
	DatabaseURL string
	// OutputDir is the artifact storage root. Empty disables persistence.
	OutputDir string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// RateLimitPerMinute caps HTTP tool calls per client IP. Zero disables
	// the limit.
	RateLimitPerMinute int
}

type fileConfig struct {
	AppEnv             string `yaml:"app_env"`
	Transport          string `yaml:"transport"`
	Port               string `yaml:"port"`
	GoogleAPIKey       string `yaml:"google_api_key"`
	VertexBaseURL      string `yaml:"vertex_base_url"`
	ImageModel         string `yaml:"image_model"`
	VideoModel         string `yaml:"video_model"`
	DatabaseURL        string `yaml:"database_url"`
	OutputDir          string `yaml:"output_dir"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	file, err := loadFileConfig(os.Getenv("VERTEX_MCP_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", firstNonEmpty(file.AppEnv, "development")),
		Transport:       getEnv("MCP_TRANSPORT", firstNonEmpty(file.Transport, TransportStdio)),
		Port:            getEnv("PORT", firstNonEmpty(file.Port, "8080")),
		GoogleAPIKey:    getEnv("GOOGLE_API_KEY", firstNonEmpty(os.Getenv("GEMINI_API_KEY"), file.GoogleAPIKey)),
		VertexBaseURL:   getEnv("VERTEX_BASE_URL", firstNonEmpty(file.VertexBaseURL, "https://generativelanguage.googleapis.com/v1beta")),
		ImageModel:      getEnv("IMAGE_MODEL", firstNonEmpty(file.ImageModel, "imagen-3.0-generate-002")),
		VideoModel:      getEnv("VIDEO_MODEL", firstNonEmpty(file.VideoModel, "veo-2.0-generate-001")),
		DatabaseURL:     getEnv("DATABASE_URL", file.DatabaseURL),
		OutputDir:       getEnv("OUTPUT_DIR", firstNonEmpty(file.OutputDir, "./generated")),
		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Video calls block until the remote operation finishes, up to the
		// ten minute polling ceiling. The write timeout must outlive that.
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 630)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", file.RateLimitPerMinute),
	}

	if cfg.GoogleAPIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required")
	}

	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return nil, fmt.Errorf("MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, cfg.Transport)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	path = strings.TrimSpace(path)
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fc, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
