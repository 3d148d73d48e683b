package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv(APIKeyEnv, "")
	t.Setenv(EnvPrefix+"GEMINI__API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	clearKeyEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":8000", cfg.Server.Addr)
	require.Equal(t, []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8000",
	}, cfg.Server.AllowedOrigins)
	require.Equal(t, int64(1<<20), cfg.Server.MaxUploadBytes)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	require.Equal(t, 120*time.Second, cfg.Gemini.Timeout)
	require.Equal(t, 3, cfg.Gemini.MaxAttempts)
	require.Equal(t, time.Second, cfg.Gemini.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.Gemini.MaxDelay)
	require.Equal(t, 0.3, cfg.Gemini.Temperature)
	require.Equal(t, 8192, cfg.Gemini.MaxOutputTokens)
	require.Equal(t, 0.95, cfg.Gemini.TopP)
	require.Equal(t, 40, cfg.Gemini.TopK)
	require.Zero(t, cfg.Gemini.RequestsPerSecond)
	require.False(t, cfg.Gemini.SystemInstruction)
	require.Empty(t, cfg.Gemini.APIKey)

	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.NoError(t, Validate(cfg))
}

func TestLoad_TOMLFile(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "verilogai.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9000"
allowed_origins = ["https://app.example"]

[gemini]
api_key_param = "/verilogai/key"
model = "gemini-2.5-pro"
base_delay = "250ms"
max_attempts = 5
system_instruction = true

[log]
format = "console"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, []string{"https://app.example"}, cfg.Server.AllowedOrigins)
	require.Equal(t, "/verilogai/key", cfg.Gemini.APIKeyParam)
	require.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model)
	require.Equal(t, 250*time.Millisecond, cfg.Gemini.BaseDelay)
	require.Equal(t, 5, cfg.Gemini.MaxAttempts)
	require.True(t, cfg.Gemini.SystemInstruction)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, 120*time.Second, cfg.Gemini.Timeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearKeyEnv(t)
	t.Setenv("VERILOGAI_GEMINI__MODEL", "gemini-env")
	t.Setenv("VERILOGAI_GEMINI__MAX_ATTEMPTS", "7")
	t.Setenv("VERILOGAI_GEMINI__TIMEOUT", "45s")
	t.Setenv("VERILOGAI_GEMINI__REQUESTS_PER_SECOND", "2.5")
	t.Setenv("VERILOGAI_SERVER__ADDR", ":7000")
	t.Setenv("VERILOGAI_LOG__LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "gemini-env", cfg.Gemini.Model)
	require.Equal(t, 7, cfg.Gemini.MaxAttempts)
	require.Equal(t, 45*time.Second, cfg.Gemini.Timeout)
	require.Equal(t, 2.5, cfg.Gemini.RequestsPerSecond)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-plain-env")
	t.Setenv(EnvPrefix+"GEMINI__API_KEY", "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "from-plain-env", cfg.Gemini.APIKey)

	t.Setenv(EnvPrefix+"GEMINI__API_KEY", "from-prefixed-env")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "from-prefixed-env", cfg.Gemini.APIKey)
}

func TestEnvKey(t *testing.T) {
	require.Equal(t, "gemini.max_attempts", envKey("VERILOGAI_GEMINI__MAX_ATTEMPTS"))
	require.Equal(t, "server.allowed_origins", envKey("VERILOGAI_SERVER__ALLOWED_ORIGINS"))
}

func TestValidate(t *testing.T) {
	clearKeyEnv(t)
	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "addr", mutate: func(c *Config) { c.Server.Addr = "" }, want: "server.addr"},
		{name: "upload", mutate: func(c *Config) { c.Server.MaxUploadBytes = 0 }, want: "max_upload_bytes"},
		{name: "model", mutate: func(c *Config) { c.Gemini.Model = " " }, want: "gemini.model"},
		{name: "attempts", mutate: func(c *Config) { c.Gemini.MaxAttempts = 0 }, want: "max_attempts"},
		{name: "temperature", mutate: func(c *Config) { c.Gemini.Temperature = 3 }, want: "temperature"},
		{name: "rps", mutate: func(c *Config) { c.Gemini.RequestsPerSecond = -1 }, want: "requests_per_second"},
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			tc.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	require.Error(t, Validate(nil))
}

func TestRequireAPIKeySource(t *testing.T) {
	cfg := &Config{}
	require.Error(t, RequireAPIKeySource(cfg))
	cfg.Gemini.APIKeyParam = "/p"
	require.NoError(t, RequireAPIKeySource(cfg))
	cfg = &Config{Gemini: GeminiConfig{APIKey: "k"}}
	require.NoError(t, RequireAPIKeySource(cfg))
}

func TestInitConfig_WritesLoadableFile(t *testing.T) {
	clearKeyEnv(t)
	path := filepath.Join(t.TempDir(), "verilogai.toml")
	require.NoError(t, InitConfig(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	err = InitConfig(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")
}
