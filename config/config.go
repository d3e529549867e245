// Package config loads pipeline configuration from an optional YAML file,
// an optional .env file, and environment-variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the capture-selection-classification
// pipeline. Zero values are replaced by defaults in Load.
type Config struct {
	// Capture policy
	DetectionThreshold      float64 `yaml:"detection_threshold"`
	ClassificationThreshold float64 `yaml:"classification_threshold"`
	DebounceMillis          int     `yaml:"debounce_ms"`
	PadRatio                float64 `yaml:"pad_ratio"`
	TopK                    int     `yaml:"top_k"`

	// Frame geometry
	WorkingWidth    int `yaml:"working_width"`
	WorkingHeight   int `yaml:"working_height"`
	ClassifierInput int `yaml:"classifier_input"`

	// Display-orientation correction: when true, the on-screen indicator
	// box is reflected on both axes. The capture crop never flips.
	FlipDisplay bool `yaml:"flip_display"`

	// Devices and models
	CameraDevice        int    `yaml:"camera_device"`
	ModelCacheDir       string `yaml:"model_cache_dir"`
	DetectorModelPath   string `yaml:"detector_model"`
	DetectorModelURL    string `yaml:"detector_model_url"`
	ClassifierModelPath string `yaml:"classifier_model"`
	ClassifierModelURL  string `yaml:"classifier_model_url"`

	// Persistence
	DatabasePath string `yaml:"database"`

	// Diagnostics
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"logfile"`
}

// Default returns the pipeline defaults used when no file or environment
// override is present.
func Default() Config {
	return Config{
		DetectionThreshold:      0.80,
		ClassificationThreshold: 0.5,
		DebounceMillis:          300,
		PadRatio:                0.10,
		TopK:                    5,
		WorkingWidth:            640,
		WorkingHeight:           480,
		ClassifierInput:         224,
		CameraDevice:            0,
		ModelCacheDir:           defaultCacheDir(),
		DetectorModelPath:       "models/detector.onnx",
		ClassifierModelPath:     "models/classifier.onnx",
		DatabasePath:            "odescreen.db",
		LogFile:                 "odescreen.log",
	}
}

// Load reads the configuration. path may be empty, in which case only the
// defaults, .env and environment apply. A missing .env is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional; ignore absence but report a malformed file.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		if _, statErr := os.Stat(".env"); statErr == nil {
			return cfg, fmt.Errorf("failed to load .env: %v", err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("cannot read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("cannot parse config file %s: %v", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("detection_threshold %v outside [0,1]", c.DetectionThreshold)
	}
	if c.ClassificationThreshold < 0 || c.ClassificationThreshold > 1 {
		return fmt.Errorf("classification_threshold %v outside [0,1]", c.ClassificationThreshold)
	}
	if c.DebounceMillis < 0 {
		return fmt.Errorf("debounce_ms must not be negative, got %d", c.DebounceMillis)
	}
	if c.PadRatio < 0 {
		return fmt.Errorf("pad_ratio must not be negative, got %v", c.PadRatio)
	}
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1, got %d", c.TopK)
	}
	if c.WorkingWidth < 1 || c.WorkingHeight < 1 {
		return fmt.Errorf("invalid working resolution %dx%d", c.WorkingWidth, c.WorkingHeight)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ODESCREEN_DB"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("ODESCREEN_MODEL_CACHE"); v != "" {
		cfg.ModelCacheDir = v
	}
	if v := os.Getenv("ODESCREEN_DETECTOR_MODEL"); v != "" {
		cfg.DetectorModelPath = v
	}
	if v := os.Getenv("ODESCREEN_CLASSIFIER_MODEL"); v != "" {
		cfg.ClassifierModelPath = v
	}
	if v := os.Getenv("ODESCREEN_DETECTOR_URL"); v != "" {
		cfg.DetectorModelURL = v
	}
	if v := os.Getenv("ODESCREEN_CLASSIFIER_URL"); v != "" {
		cfg.ClassifierModelURL = v
	}
	if v := os.Getenv("ODESCREEN_CAMERA"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			cfg.CameraDevice = idx
		}
	}
	if v := os.Getenv("ODESCREEN_DETECTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DetectionThreshold = f
		}
	}
	if v := os.Getenv("ODESCREEN_DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".odescreen-cache"
	}
	return base + string(os.PathSeparator) + "odescreen"
}
