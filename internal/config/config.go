package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server ServerConfig `json:"server" yaml:"server"`
	Model  ModelConfig  `json:"model" yaml:"model"`
	Upload UploadConfig `json:"upload" yaml:"upload"`
	Output OutputConfig `json:"output" yaml:"output"`
	Log    LogConfig    `json:"log" yaml:"log"`
}

// ServerConfig holds configuration for the HTTP host
type ServerConfig struct {
	Addr              string `json:"addr" yaml:"addr"`
	SessionTTLMinutes int    `json:"session_ttl_minutes" yaml:"session_ttl_minutes"`
}

// ModelConfig holds configuration for the pretrained model backend
type ModelConfig struct {
	Backend           string  `json:"backend" yaml:"backend"`
	URL               string  `json:"url" yaml:"url"`
	DetectionModel    string  `json:"detection_model" yaml:"detection_model"`
	SegmentationModel string  `json:"segmentation_model" yaml:"segmentation_model"`
	Confidence        float64 `json:"confidence" yaml:"confidence"`
	SendFormat        string  `json:"send_format" yaml:"send_format"`
	SendSize          int     `json:"send_size" yaml:"send_size"`
	SendQuality       int     `json:"send_quality" yaml:"send_quality"`
}

// UploadConfig holds configuration for accepted uploads
type UploadConfig struct {
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
	MinImageSize     int      `json:"min_image_size" yaml:"min_image_size"`
	MaxUploadMB      int      `json:"max_upload_mb" yaml:"max_upload_mb"`
}

// OutputConfig holds configuration for exported artifacts
type OutputConfig struct {
	// OutputDir receives every annotation label and crop
	OutputDir   string `json:"output_dir" yaml:"output_dir"`
	ImageFormat string `json:"image_format" yaml:"image_format"`
	Quality     int    `json:"quality" yaml:"quality"`
	// DetectDir receives rendered detection results from the CLI
	DetectDir string `json:"detect_dir" yaml:"detect_dir"`
}

// LogConfig holds configuration for logging
type LogConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8501",
			SessionTTLMinutes: 60,
		},
		Model: ModelConfig{
			Backend:           "ollama",
			URL:               "http://localhost:11434",
			DetectionModel:    "dental-detect",
			SegmentationModel: "dental-segment",
			Confidence:        0.40,
			SendFormat:        "jpg",
			SendSize:          1536,
			SendQuality:       85,
		},
		Upload: UploadConfig{
			SupportedFormats: []string{"jpg", "jpeg", "png", "bmp", "webp"},
			MinImageSize:     32,
			MaxUploadMB:      50,
		},
		Output: OutputConfig{
			OutputDir:   "annotations",
			ImageFormat: "jpg",
			Quality:     95,
			DetectDir:   "out",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional file (JSON or
// YAML), .env files and DENTAL_* environment variables, in that order.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env file is not an error; a malformed one is
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON or YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from DENTAL_* variables found by lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"DENTAL_ADDR":               &c.Server.Addr,
		"DENTAL_MODEL_BACKEND":      &c.Model.Backend,
		"DENTAL_MODEL_URL":          &c.Model.URL,
		"DENTAL_DETECTION_MODEL":    &c.Model.DetectionModel,
		"DENTAL_SEGMENTATION_MODEL": &c.Model.SegmentationModel,
		"DENTAL_OUTPUT_DIR":         &c.Output.OutputDir,
		"DENTAL_IMAGE_FORMAT":       &c.Output.ImageFormat,
		"DENTAL_LOG_LEVEL":          &c.Log.Level,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("DENTAL_CONFIDENCE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DENTAL_CONFIDENCE: %w", err)
		}
		c.Model.Confidence = f
	}
	if v, ok := lookup("DENTAL_LOG_DEVELOPMENT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DENTAL_LOG_DEVELOPMENT: %w", err)
		}
		c.Log.Development = b
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.SessionTTLMinutes < 1 {
		return fmt.Errorf("server.session_ttl_minutes must be positive")
	}

	switch c.Model.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("model.backend must be ollama or llamacpp, got %q", c.Model.Backend)
	}

	if c.Model.Confidence < 0.25 || c.Model.Confidence > 1 {
		return fmt.Errorf("model.confidence must be between 0.25 and 1")
	}

	if c.Model.SendQuality < 1 || c.Model.SendQuality > 100 {
		return fmt.Errorf("model.send_quality must be between 1 and 100")
	}

	if len(c.Upload.SupportedFormats) == 0 {
		return fmt.Errorf("upload.supported_formats cannot be empty")
	}

	if c.Upload.MinImageSize < 1 {
		return fmt.Errorf("upload.min_image_size must be positive")
	}

	if c.Upload.MaxUploadMB < 1 {
		return fmt.Errorf("upload.max_upload_mb must be positive")
	}

	if strings.TrimSpace(c.Output.OutputDir) == "" {
		return fmt.Errorf("output.output_dir cannot be empty")
	}

	switch strings.ToLower(c.Output.ImageFormat) {
	case "jpg", "png", "webp":
	default:
		return fmt.Errorf("output.image_format must be jpg, png or webp")
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
	return filepath.Join(home, ".config", "dental-vision", "config.json")
}
