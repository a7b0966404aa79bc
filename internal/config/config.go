package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the tandem configuration.
type Config struct {
	Provider string `yaml:"provider" validate:"required"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"baseURL,omitempty"`
	Format   string `yaml:"format" validate:"oneof=text json sarif"`
	FailOn   string `yaml:"failOn" validate:"oneof=none gate critical high medium low info"`

	LLM       LLMConfig       `yaml:"llm"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Fixes     FixesConfig     `yaml:"fixes"`
	Static    StaticConfig    `yaml:"static"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LLMConfig controls provider requests.
type LLMConfig struct {
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `yaml:"maxRetries" validate:"gte=0"`
	BaseDelay  time.Duration `yaml:"baseDelay"`
	MaxDelay   time.Duration `yaml:"maxDelay"`
}

// AnalysisConfig bounds a run.
type AnalysisConfig struct {
	SemanticTimeout    time.Duration `yaml:"semanticTimeout" validate:"gtfield=StaticTimeout"`
	StaticTimeout      time.Duration `yaml:"staticTimeout" validate:"gt=0"`
	MaxContextFiles    int           `yaml:"maxContextFiles" validate:"gte=0"`
	ContextConcurrency int           `yaml:"contextConcurrency" validate:"gte=1"`
	ContextChars       int           `yaml:"contextChars" validate:"gte=0"`
	ContextLines       int           `yaml:"contextLines" validate:"gte=0"`
	MaxDiffBytes       int           `yaml:"maxDiffBytes" validate:"gte=0"`
	Exclude            []string      `yaml:"exclude"`
	// RulesFile points at a YAML review rules pack; empty disables it.
	RulesFile          string        `yaml:"rulesFile,omitempty"`
}

// FixesConfig controls the fix backfill pass.
type FixesConfig struct {
	Enabled       bool    `yaml:"enabled"`
	MaxPerRun     int     `yaml:"maxPerRun" validate:"gte=0"`
	RatePerSecond float64 `yaml:"ratePerSecond" validate:"gte=0"`
	Burst         int     `yaml:"burst" validate:"gte=0"`
}

// StaticConfig locates the static-analysis service.
type StaticConfig struct {
	ServiceURL string `yaml:"serviceURL" validate:"omitempty,url"`
}

// ServerConfig controls tandem serve.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	JobRetention    time.Duration `yaml:"jobRetention" validate:"gt=0"`
	JanitorInterval time.Duration `yaml:"janitorInterval" validate:"gt=0"`
	MaxUploadBytes  int64         `yaml:"maxUploadBytes" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// CacheConfig controls the fix response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir,omitempty"`
	TTL     time.Duration `yaml:"ttl"`
}

// PrivacyConfig controls redaction of outbound prompts.
type PrivacyConfig struct {
	RedactSecrets bool     `yaml:"redactSecrets"`
	RedactPaths   []string `yaml:"redactPaths,omitempty"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint,omitempty"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sampleRatio" validate:"gte=0,lte=1"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		Format:   "text",
		FailOn:   "gate",
		LLM: LLMConfig{
			Timeout:    120 * time.Second,
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   30 * time.Second,
		},
		Analysis: AnalysisConfig{
			SemanticTimeout:    180 * time.Second,
			StaticTimeout:      120 * time.Second,
			MaxContextFiles:    10,
			ContextConcurrency: 4,
			ContextChars:       2000,
			ContextLines:       3,
			MaxDiffBytes:       500000,
			Exclude:            []string{"vendor/*", "**/*.gen.go", "**/*.min.js"},
		},
		Fixes: FixesConfig{
			Enabled:       true,
			MaxPerRun:     25,
			RatePerSecond: 2,
			Burst:         1,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			JobRetention:    24 * time.Hour,
			JanitorInterval: 10 * time.Minute,
			MaxUploadBytes:  200 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*", "**/*.pem"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			SampleRatio: 1,
		},
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ConfigDir returns the platform-appropriate config directory for tandem.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tandem"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "tandem"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "tandem"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "tandem"), nil
	default:
		return filepath.Join(home, ".config", "tandem"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadFile decodes the config file at path on top of cfg. Keys absent from
// the file keep their current values. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes cfg to the default config path.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(path, cfg)
}

// SaveTo writes cfg as YAML to path.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config: defaults <- file <- env <- overrides.
// Overrides use SetField keys and come from CLI flags; empty values are ignored.
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	if err := LoadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps TANDEM_* variables to SetField keys.
var envKeys = map[string]string{
	"TANDEM_PROVIDER":         "provider",
	"TANDEM_MODEL":            "model",
	"TANDEM_BASE_URL":         "baseURL",
	"TANDEM_FORMAT":           "format",
	"TANDEM_FAIL_ON":          "failOn",
	"TANDEM_STATIC_URL":       "staticURL",
	"TANDEM_ADDR":             "addr",
	"TANDEM_SEMANTIC_TIMEOUT": "semanticTimeout",
	"TANDEM_STATIC_TIMEOUT":   "staticTimeout",
	"TANDEM_MAX_FIXES":        "maxFixes",
	"TANDEM_LOG_LEVEL":        "logLevel",
	"TANDEM_LOG_FORMAT":       "logFormat",
	"TANDEM_OTLP_ENDPOINT":    "otlpEndpoint",
	"TANDEM_RULES":            "rules",
}

func mergeEnv(cfg *Config) error {
	for env, key := range envKeys {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists the keys accepted by SetField.
func Keys() []string {
	return []string{
		"provider", "model", "baseURL", "format", "failOn", "staticURL", "addr",
		"semanticTimeout", "staticTimeout", "maxContextFiles", "maxFixes", "fixes",
		"cache", "redactSecrets", "logLevel", "logFormat", "otlpEndpoint", "rules",
	}
}

// SetField sets a single config field by key name.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "provider":
		cfg.Provider = value
	case "model":
		cfg.Model = value
	case "baseURL":
		cfg.BaseURL = value
	case "format":
		cfg.Format = value
	case "failOn":
		cfg.FailOn = strings.ToLower(value)
	case "staticURL":
		cfg.Static.ServiceURL = value
	case "addr":
		cfg.Server.Addr = value
	case "semanticTimeout":
		cfg.Analysis.SemanticTimeout, err = parseDuration(key, value)
	case "staticTimeout":
		cfg.Analysis.StaticTimeout, err = parseDuration(key, value)
	case "maxContextFiles":
		cfg.Analysis.MaxContextFiles, err = parseInt(key, value)
	case "maxFixes":
		cfg.Fixes.MaxPerRun, err = parseInt(key, value)
	case "fixes":
		cfg.Fixes.Enabled, err = parseBool(key, value)
	case "cache":
		cfg.Cache.Enabled, err = parseBool(key, value)
	case "redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "logLevel":
		cfg.Log.Level = strings.ToLower(value)
	case "logFormat":
		cfg.Log.Format = strings.ToLower(value)
	case "otlpEndpoint":
		cfg.Telemetry.Endpoint = value
		cfg.Telemetry.Enabled = true
	case "rules":
		cfg.Analysis.RulesFile = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 90s: %w", key, err)
	}
	return d, nil
}
