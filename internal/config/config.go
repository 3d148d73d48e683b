package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	EnvPrefix      = "VERILOGAI_"
	APIKeyEnv      = "GEMINI_API_KEY"
	DefaultPath    = "verilogai.toml"
	envLevelMarker = "__"
)

type Config struct {
	Server ServerConfig `koanf:"server"`
	Gemini GeminiConfig `koanf:"gemini"`
	Log    LogConfig    `koanf:"log"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type GeminiConfig struct {
	APIKey            string        `koanf:"api_key"`
	APIKeyParam       string        `koanf:"api_key_param"`
	BaseURL           string        `koanf:"base_url"`
	Model             string        `koanf:"model"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxAttempts       int           `koanf:"max_attempts"`
	BaseDelay         time.Duration `koanf:"base_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
	Temperature       float64       `koanf:"temperature"`
	MaxOutputTokens   int           `koanf:"max_output_tokens"`
	TopP              float64       `koanf:"top_p"`
	TopK              int           `koanf:"top_k"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	SystemInstruction bool          `koanf:"system_instruction"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr": ":8000",
		"server.allowed_origins": []string{
			"http://localhost:5173",
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:8000",
		},
		"server.max_upload_bytes":    int64(1 << 20),
		"server.shutdown_timeout":    10 * time.Second,
		"gemini.base_url":            "https://generativelanguage.googleapis.com/v1beta",
		"gemini.model":               "gemini-2.0-flash",
		"gemini.timeout":             120 * time.Second,
		"gemini.max_attempts":        3,
		"gemini.base_delay":          time.Second,
		"gemini.max_delay":           30 * time.Second,
		"gemini.temperature":         0.3,
		"gemini.max_output_tokens":   8192,
		"gemini.top_p":               0.95,
		"gemini.top_k":               40,
		"gemini.requests_per_second": 0.0,
		"gemini.system_instruction":  false,
		"log.level":                  "info",
		"log.format":                 "json",
	}
}

// Load reads .env, then defaults, then the TOML file, then VERILOGAI_*
// environment variables, each layer overriding the previous one. An empty
// configPath falls back to ./verilogai.toml when it exists.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", configPath, err)
		}
	} else if _, err := os.Stat(DefaultPath); err == nil {
		if err := k.Load(file.Provider(DefaultPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", DefaultPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		cfg.Gemini.APIKey = os.Getenv(APIKeyEnv)
	}
	return &cfg, nil
}

// envKey maps VERILOGAI_GEMINI__MAX_ATTEMPTS to gemini.max_attempts.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, envLevelMarker, ".")
}

// Validate checks value ranges. It does not require an API key; commands
// that call the LLM check that with RequireAPIKeySource.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}
	var errs []error
	if strings.TrimSpace(cfg.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if strings.TrimSpace(cfg.Gemini.Model) == "" {
		errs = append(errs, errors.New("gemini.model is required"))
	}
	if cfg.Gemini.Timeout <= 0 {
		errs = append(errs, errors.New("gemini.timeout must be positive"))
	}
	if cfg.Gemini.MaxAttempts < 1 {
		errs = append(errs, errors.New("gemini.max_attempts must be at least 1"))
	}
	if cfg.Gemini.BaseDelay <= 0 {
		errs = append(errs, errors.New("gemini.base_delay must be positive"))
	}
	if cfg.Gemini.MaxDelay < 0 {
		errs = append(errs, errors.New("gemini.max_delay must not be negative"))
	}
	if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
		errs = append(errs, errors.New("gemini.temperature must be within [0, 2]"))
	}
	if cfg.Gemini.TopP < 0 || cfg.Gemini.TopP > 1 {
		errs = append(errs, errors.New("gemini.top_p must be within [0, 1]"))
	}
	if cfg.Gemini.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("gemini.requests_per_second must not be negative"))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", cfg.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// RequireAPIKeySource fails when neither a literal key nor a parameter name
// to resolve one from is configured.
func RequireAPIKeySource(cfg *Config) error {
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" && strings.TrimSpace(cfg.Gemini.APIKeyParam) == "" {
		return fmt.Errorf("config: no API key: set %s, %sGEMINI__API_KEY or gemini.api_key_param", APIKeyEnv, EnvPrefix)
	}
	return nil
}

// InitConfig writes a sample configuration file.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# VerilogAI configuration

[server]
addr = ":8000"
allowed_origins = ["http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000", "http://127.0.0.1:8000"]
max_upload_bytes = 1048576
shutdown_timeout = "10s"

[gemini]
# api_key = "your-gemini-api-key"
# api_key_param = "/verilogai/gemini-api-key"
model = "gemini-2.0-flash"
timeout = "120s"
max_attempts = 3
base_delay = "1s"
max_delay = "30s"
temperature = 0.3
max_output_tokens = 8192
top_p = 0.95
top_k = 40
requests_per_second = 0
system_instruction = false

[log]
level = "info"
format = "json"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0o644)
}
