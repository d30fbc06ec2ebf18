package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Detector backends
const (
	BackendPigo     = "pigo"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendNone     = "none"
)

// Config holds the application configuration
type Config struct {
	Loader   LoaderConfig   `json:"loader"`
	Detector DetectorConfig `json:"detector"`
	Region   RegionConfig   `json:"region"`
	Sampler  SamplerConfig  `json:"sampler"`
	Catalog  CatalogConfig  `json:"catalog"`
	Server   ServerConfig   `json:"server"`
	Output   OutputConfig   `json:"output"`
}

// LoaderConfig holds configuration for image decoding
type LoaderConfig struct {
	SupportedFormats []string `json:"supported_formats"`
	MaxPixels        int      `json:"max_pixels"`
}

// DetectorConfig holds configuration for face detection
type DetectorConfig struct {
	// Backend defaults to none. No cascade ships with the module, so pigo
	// needs a facefinder file at ModelPath.
	Backend string `json:"backend"`
	// ModelPath is the pigo cascade file
	ModelPath      string  `json:"model_path"`
	URL            string  `json:"url"`
	Model          string  `json:"model"`
	InputSize      int     `json:"input_size"`
	ScoreThreshold float64 `json:"score_threshold"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Timeout returns TimeoutSeconds as a duration
func (d DetectorConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds * float64(time.Second))
}

// RegionConfig holds configuration for sampling region selection
type RegionConfig struct {
	Padding int `json:"padding"`
}

// SamplerConfig holds configuration for color sampling
type SamplerConfig struct {
	PaletteSize int  `json:"palette_size"`
	Palette     bool `json:"palette"`
}

// CatalogConfig points at a product catalog; empty uses the built-in one
type CatalogConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds configuration for the HTTP server
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	MaxUploadMB     int    `json:"max_upload_mb"`
	RequestTimeoutS int    `json:"request_timeout_seconds"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OutputConfig holds configuration for debug overlays
type OutputConfig struct {
	DebugFormat string `json:"debug_format"`
	Quality     int    `json:"quality"`
	Suffix      string `json:"suffix"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp", "bmp", "tiff"},
			MaxPixels:        40_000_000,
		},
		Detector: DetectorConfig{
			Backend:        BackendNone,
			ModelPath:      "models/facefinder",
			InputSize:      416,
			ScoreThreshold: 0.5,
			TimeoutSeconds: 3,
		},
		Region: RegionConfig{
			Padding: 20,
		},
		Sampler: SamplerConfig{
			PaletteSize: 5,
			Palette:     true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxUploadMB:     20,
			RequestTimeoutS: 60,
		},
		Output: OutputConfig{
			DebugFormat: "png",
			Quality:     90,
			Suffix:      "_undertone",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename if it exists (defaults otherwise), applies UNDERTONE_*
// environment overrides and validates the result.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		loaded, err := LoadFromFile(filename)
		switch {
		case err == nil:
			config = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	config.ApplyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from UNDERTONE_* environment variables
func (c *Config) ApplyEnv() {
	c.Detector.Backend = envString("UNDERTONE_DETECTOR", c.Detector.Backend)
	c.Detector.ModelPath = envString("UNDERTONE_MODEL_PATH", c.Detector.ModelPath)
	c.Detector.URL = envString("UNDERTONE_DETECTOR_URL", c.Detector.URL)
	c.Detector.Model = envString("UNDERTONE_DETECTOR_MODEL", c.Detector.Model)
	c.Detector.InputSize = envInt("UNDERTONE_INPUT_SIZE", c.Detector.InputSize)
	c.Detector.ScoreThreshold = envFloat("UNDERTONE_SCORE_THRESHOLD", c.Detector.ScoreThreshold)
	c.Detector.TimeoutSeconds = envFloat("UNDERTONE_DETECT_TIMEOUT", c.Detector.TimeoutSeconds)
	c.Region.Padding = envInt("UNDERTONE_PADDING", c.Region.Padding)
	c.Catalog.Path = envString("UNDERTONE_CATALOG", c.Catalog.Path)
	c.Server.Host = envString("UNDERTONE_HOST", c.Server.Host)
	c.Server.Port = envInt("UNDERTONE_PORT", c.Server.Port)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.Loader.SupportedFormats) == 0 {
		return fmt.Errorf("loader.supported_formats cannot be empty")
	}

	if c.Loader.MaxPixels < 0 {
		return fmt.Errorf("loader.max_pixels cannot be negative")
	}

	switch strings.ToLower(c.Detector.Backend) {
	case BackendPigo, BackendOllama, BackendLlamaCpp, BackendNone:
	default:
		return fmt.Errorf("detector.backend must be one of pigo, ollama, llamacpp, none (got %q)", c.Detector.Backend)
	}

	if c.Detector.ScoreThreshold < 0 || c.Detector.ScoreThreshold > 1 {
		return fmt.Errorf("detector.score_threshold must be between 0 and 1")
	}

	if c.Detector.InputSize < 0 {
		return fmt.Errorf("detector.input_size cannot be negative")
	}

	if c.Detector.TimeoutSeconds < 0 {
		return fmt.Errorf("detector.timeout_seconds cannot be negative")
	}

	if c.Region.Padding < 0 {
		return fmt.Errorf("region.padding cannot be negative")
	}

	if c.Sampler.PaletteSize < 0 {
		return fmt.Errorf("sampler.palette_size cannot be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "undertone-analyzer", "config.json")
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads a non-negative integer, keeping defaultVal when unset or invalid
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}
