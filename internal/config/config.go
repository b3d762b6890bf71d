// Package config loads the service configuration.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults
//  2. a YAML file named by EXOPLANET_CONFIG
//  3. a .env file (it only sets variables that are not already set)
//  4. EXOPLANET_* environment variables
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "EXOPLANET"

// FileEnv names the variable holding the YAML config path.
const FileEnv = EnvPrefix + "_CONFIG"

// DatasetFile is the staged training dataset under DataDir.
const DatasetFile = "nasa_exoplanets.csv"

// Config is the service configuration.
type Config struct {
	HTTPAddr     string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`

	DataDir   string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ModelDir  string `yaml:"model_dir" envconfig:"MODEL_DIR"`
	HistoryDB string `yaml:"history_db" envconfig:"HISTORY_DB"`

	LogLevel  string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
	LogFile   string `yaml:"log_file" envconfig:"LOG_FILE"`

	CORSOrigins   []string `yaml:"cors_origins" envconfig:"CORS_ORIGINS"`
	MaxUploadMB   int64    `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB"`
	InfoCacheSize int      `yaml:"info_cache_size" envconfig:"INFO_CACHE_SIZE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:      ":8000",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  5 * time.Minute, // training runs inside the request
		DataDir:       "./data",
		ModelDir:      "./models",
		HistoryDB:     "./data/history.db",
		LogLevel:      "info",
		LogFormat:     "console",
		CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		MaxUploadMB:   32,
		InfoCacheSize: 16,
	}
}

// Load builds the configuration. envFiles default to ".env"; missing files
// are skipped.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load %s", f)
		}
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to process env config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("config file", path)
		}
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()
	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}
	return nil
}

// Validate checks the values that cannot be repaired with a default.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.NewValidationError("http_addr", "must not be empty", nil)
	}
	if c.DataDir == "" || c.ModelDir == "" {
		return errors.NewValidationError("data_dir/model_dir", "must not be empty", nil)
	}
	if c.HistoryDB != "" && within(c.HistoryDB, c.ModelDir) {
		// the artifact directory is replaced wholesale on every save
		return errors.NewValidationError("history_db", "must not be inside model_dir", c.HistoryDB)
	}
	if c.MaxUploadMB <= 0 {
		return errors.NewValidationError("max_upload_mb", "must be positive", c.MaxUploadMB)
	}
	if c.InfoCacheSize <= 0 {
		return errors.NewValidationError("info_cache_size", "must be positive", c.InfoCacheSize)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return errors.NewValidationError("log_format", "must be console or json", c.LogFormat)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("log_level", "must be debug, info, warn or error", c.LogLevel)
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DatasetPath is where uploads are staged and training reads from.
func (c Config) DatasetPath() string {
	return filepath.Join(c.DataDir, DatasetFile)
}

// MaxUploadBytes is the upload body limit.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Logging returns the logger configuration.
func (c Config) Logging() log.Config {
	return log.Config{Level: c.LogLevel, Format: c.LogFormat, File: c.LogFile}
}
