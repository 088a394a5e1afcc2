package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/menta2k/headshot/pkg/geometry"
	"github.com/menta2k/headshot/pkg/processing"
	"github.com/menta2k/headshot/pkg/types"
)

// Detector backends
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendOpenAI   = "openai"
	BackendPigo     = "pigo"
)

// Config holds the application configuration
type Config struct {
	Composition CompositionConfig `json:"composition"`
	Detector    DetectorConfig    `json:"detector"`
	Background  BackgroundConfig  `json:"background"`
	Output      OutputConfig      `json:"output"`
	Server      ServerConfig      `json:"server"`
	Log         LogConfig         `json:"log"`
}

// CompositionConfig selects a preset and optionally overrides its ratios.
// A nil override keeps the preset value; a present one, zero included, replaces it.
type CompositionConfig struct {
	Preset               string   `json:"preset"`
	HeadDominanceRatio   *float64 `json:"head_dominance_ratio,omitempty"`
	HeadroomRatio        *float64 `json:"headroom_ratio,omitempty"`
	TargetAspectRatio    *float64 `json:"target_aspect_ratio,omitempty"`
	MinCropWidth         *float64 `json:"min_crop_width,omitempty"`
	MaxAnalysisDimension *int     `json:"max_analysis_dimension,omitempty"`
}

// DetectorConfig holds configuration for face detection
type DetectorConfig struct {
	Backend     string `json:"backend"`
	URL         string `json:"url"`
	Model       string `json:"model"`
	APIKey      string `json:"api_key,omitempty"`
	CascadePath string `json:"cascade_path,omitempty"`
}

// BackgroundConfig holds configuration for background removal
type BackgroundConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format    string `json:"format"`
	Quality   int    `json:"quality"`
	Lossless  bool   `json:"lossless"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Flatten   bool   `json:"flatten"`
	Backfill  string `json:"backfill"`
	OutputDir string `json:"output_dir"`
	Suffix    string `json:"suffix"`
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Port        int `json:"port"`
	BodyLimitMB int `json:"body_limit_mb"`
	Concurrency int `json:"concurrency"`

	// AllowPrivateURLs lets the "url" input reach loopback and private networks.
	AllowPrivateURLs bool `json:"allow_private_urls"`
}

// LogConfig holds configuration for log output
type LogConfig struct {
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Composition: CompositionConfig{
			Preset: geometry.Portrait.Name,
		},
		Detector: DetectorConfig{
			Backend: BackendOllama,
			URL:     "http://localhost:11434",
			Model:   "qwen2.5vl:7b",
		},
		Background: BackgroundConfig{
			URL: "http://localhost:7000",
		},
		Output: OutputConfig{
			Format:    "jpg",
			Quality:   90,
			Backfill:  "#ffffff",
			OutputDir: "./output",
			Suffix:    "_headshot",
		},
		Server: ServerConfig{
			Port:        8080,
			BodyLimitMB: 32,
			Concurrency: 4,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 28,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their defaults.
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

// Load reads filename when it exists, otherwise starts from defaults, then
// applies HEADSHOT_* environment overrides.
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			config, err = LoadFromFile(filename)
			if err != nil {
				return nil, err
			}
		}
	}
	if err := config.ApplyEnv(); err != nil {
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

func getEnv(k, d string) string {
	if val, ok := os.LookupEnv(k); ok {
		return val
	}
	return d
}

func getEnvInt(k string, d int) (int, error) {
	val, ok := os.LookupEnv(k)
	if !ok {
		return d, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return d, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getEnvBool(k string, d bool) (bool, error) {
	val, ok := os.LookupEnv(k)
	if !ok {
		return d, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return d, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

// ApplyEnv overrides fields from HEADSHOT_* environment variables.
func (c *Config) ApplyEnv() error {
	c.Composition.Preset = getEnv("HEADSHOT_PRESET", c.Composition.Preset)
	c.Detector.Backend = getEnv("HEADSHOT_DETECTOR", c.Detector.Backend)
	c.Detector.URL = getEnv("HEADSHOT_DETECTOR_URL", c.Detector.URL)
	c.Detector.Model = getEnv("HEADSHOT_MODEL", c.Detector.Model)
	c.Detector.APIKey = getEnv("HEADSHOT_API_KEY", c.Detector.APIKey)
	c.Detector.CascadePath = getEnv("HEADSHOT_CASCADE", c.Detector.CascadePath)
	c.Background.URL = getEnv("HEADSHOT_BACKGROUND_URL", c.Background.URL)
	c.Output.Format = getEnv("HEADSHOT_FORMAT", c.Output.Format)
	c.Output.Backfill = getEnv("HEADSHOT_BACKFILL", c.Output.Backfill)
	c.Log.File = getEnv("HEADSHOT_LOG_FILE", c.Log.File)

	var err error
	if c.Background.Enabled, err = getEnvBool("HEADSHOT_REMOVE_BACKGROUND", c.Background.Enabled); err != nil {
		return err
	}
	if c.Output.Quality, err = getEnvInt("HEADSHOT_QUALITY", c.Output.Quality); err != nil {
		return err
	}
	if c.Server.Port, err = getEnvInt("HEADSHOT_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Server.AllowPrivateURLs, err = getEnvBool("HEADSHOT_ALLOW_PRIVATE_URLS", c.Server.AllowPrivateURLs); err != nil {
		return err
	}
	return nil
}

// CompositionFor resolves a preset name with the configured ratio overrides
// applied. An empty name uses the configured preset.
func (c *Config) CompositionFor(preset string) (types.CompositionConfig, error) {
	if preset == "" {
		preset = c.Composition.Preset
	}
	comp, err := geometry.Preset(preset)
	if err != nil {
		return comp, err
	}

	o := c.Composition
	if o.HeadDominanceRatio != nil {
		comp.HeadDominanceRatio = *o.HeadDominanceRatio
	}
	if o.HeadroomRatio != nil {
		comp.HeadroomRatio = *o.HeadroomRatio
	}
	if o.TargetAspectRatio != nil {
		comp.TargetAspectRatio = *o.TargetAspectRatio
	}
	if o.MinCropWidth != nil {
		comp.MinCropWidth = *o.MinCropWidth
	}
	if o.MaxAnalysisDimension != nil {
		comp.MaxAnalysisDimension = *o.MaxAnalysisDimension
	}
	return comp, comp.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.CompositionFor(""); err != nil {
		return fmt.Errorf("composition: %w", err)
	}

	switch c.Detector.Backend {
	case BackendOllama, BackendLlamaCpp, BackendOpenAI:
		if c.Detector.URL == "" {
			return fmt.Errorf("detector.url is required for backend %s", c.Detector.Backend)
		}
		if c.Detector.Model == "" {
			return fmt.Errorf("detector.model is required for backend %s", c.Detector.Backend)
		}
	case BackendPigo:
		if c.Detector.CascadePath == "" {
			return fmt.Errorf("detector.cascade_path is required for backend pigo")
		}
	default:
		return fmt.Errorf("detector.backend must be one of ollama, llamacpp, openai, pigo; got %q", c.Detector.Backend)
	}

	if c.Background.Enabled && c.Background.URL == "" {
		return fmt.Errorf("background.url is required when background removal is enabled")
	}

	switch processing.NormalizeFormat(c.Output.Format) {
	case "jpg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp; got %q", c.Output.Format)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Output.Width < 0 || c.Output.Height < 0 {
		return fmt.Errorf("output.width and output.height must not be negative")
	}
	if c.Output.Width > processing.MaxCanvasSide || c.Output.Height > processing.MaxCanvasSide {
		return fmt.Errorf("output.width and output.height must be at most %d", processing.MaxCanvasSide)
	}

	if _, err := ParseColor(c.Output.Backfill); err != nil {
		return fmt.Errorf("output.backfill: %w", err)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "headshot", "config.json")
}
