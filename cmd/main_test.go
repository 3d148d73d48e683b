package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"verilogai/internal/config"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"verilogai"}, args...))
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top.sv")
	require.NoError(t, os.WriteFile(path, []byte(`module top(input clk, output reg q);
  always_ff @(posedge clk) begin q = 1; end
endmodule
`), 0o600))

	out, err := runApp(t, "analyze", path)
	require.NoError(t, err)

	var got fileAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, path, got.File)
	require.Equal(t, "low", got.Complexity)
	require.Equal(t, []string{"top"}, got.Analysis.ModuleNames())
	require.Equal(t, []string{"clk"}, got.Analysis.ClockDomains)
	require.Len(t, got.Analysis.StyleIssues, 1)
	require.Equal(t, 3, got.Analysis.LinesOfCode)
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	_, err := runApp(t, "analyze")
	require.Error(t, err)

	_, err = runApp(t, "analyze", filepath.Join(t.TempDir(), "missing.v"))
	require.Error(t, err)
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "")
	t.Setenv(config.EnvPrefix+"GEMINI__API_KEY", "")
	path := filepath.Join(t.TempDir(), "verilogai.toml")

	out, err := runApp(t, "config", "init", "--output", path)
	require.NoError(t, err)
	require.Contains(t, out, path)

	_, err = runApp(t, "--config", path, "config", "validate")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no API key")

	t.Setenv(config.APIKeyEnv, "test-key")
	out, err = runApp(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	require.Contains(t, out, "Configuration is valid")
}

func TestServeFailsWithoutKey(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "")
	t.Setenv(config.EnvPrefix+"GEMINI__API_KEY", "")
	t.Setenv(config.EnvPrefix+"GEMINI__API_KEY_PARAM", "")

	_, err := runApp(t, "serve")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no API key")
}

func TestBuildServer_WithLiteralKey(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Gemini.APIKey = "literal"
	cfg.Gemini.RequestsPerSecond = 1.5

	e, err := buildServer(context.Background(), cfg)
	require.NoError(t, err)

	routes := map[string]bool{}
	for _, r := range e.Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"GET /health", "POST /chat", "POST /generate", "POST /debug",
		"POST /explain", "POST /optimize", "POST /testbench", "POST /analyze", "POST /upload"} {
		require.True(t, routes[want], want)
	}
}
