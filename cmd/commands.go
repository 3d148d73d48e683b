package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"verilogai/handler"
	"verilogai/internal/analyzer"
	"verilogai/internal/config"
	"verilogai/internal/domain"
	"verilogai/internal/integrations/gemini"
	"verilogai/internal/integrations/paramstore"
	"verilogai/internal/logging"
	"verilogai/internal/retry"
	"verilogai/internal/usecase"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides server.addr",
			},
		},
		Action: runServe,
	}
}

func lambdaCommand() *cli.Command {
	return &cli.Command{
		Name:   "lambda",
		Usage:  "Serve API Gateway proxy events on AWS Lambda",
		Action: runLambda,
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Run the static analyzer on local files and print JSON",
		ArgsUsage: "FILE...",
		Action:    runAnalyze,
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   config.DefaultPath,
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration",
				Action: runConfigValidate,
			},
		},
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	return handler.Serve(ctx, e, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
}

func runLambda(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	e, err := buildServer(c.Context, cfg)
	if err != nil {
		return err
	}
	adapter, err := handler.NewLambdaAdapter(e)
	if err != nil {
		return err
	}
	lambda.Start(adapter.Handle)
	return nil
}

type fileAnalysis struct {
	File       string                `json:"file"`
	Complexity string                `json:"complexity"`
	Analysis   domain.AnalysisResult `json:"analysis"`
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("analyze: at least one FILE is required")
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	for _, path := range c.Args().Slice() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		result := analyzer.Analyze(string(raw))
		if err := enc.Encode(fileAnalysis{
			File:       path,
			Complexity: analyzer.Complexity(result.LinesOfCode),
			Analysis:   result,
		}); err != nil {
			return fmt.Errorf("analyze: write result: %w", err)
		}
	}
	return nil
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")
	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := config.RequireAPIKeySource(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Fprintln(c.App.Writer, "Configuration is valid")
	return nil
}

// loadConfig reads and validates configuration and sets up logging. It is
// shared by the commands that talk to the LLM.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := config.RequireAPIKeySource(cfg); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildServer(ctx context.Context, cfg *config.Config) (*echo.Echo, error) {
	apiKey, err := resolveAPIKey(ctx, cfg.Gemini)
	if err != nil {
		return nil, err
	}

	client, err := newGeminiClient(apiKey, cfg.Gemini)
	if err != nil {
		return nil, err
	}
	svc, err := usecase.NewAssistantService(client)
	if err != nil {
		return nil, err
	}
	h, err := handler.NewHandler(svc,
		handler.WithVersion(version),
		handler.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("model", cfg.Gemini.Model).
		Int("max_attempts", cfg.Gemini.MaxAttempts).
		Strs("allowed_origins", cfg.Server.AllowedOrigins).
		Msg("verilogai configured")
	return handler.NewServer(h, handler.ServerConfig{AllowedOrigins: cfg.Server.AllowedOrigins}), nil
}

func newGeminiClient(apiKey string, g config.GeminiConfig) (*gemini.Client, error) {
	return gemini.NewClient(apiKey,
		gemini.WithBaseURL(g.BaseURL),
		gemini.WithModel(g.Model),
		gemini.WithTimeout(g.Timeout),
		gemini.WithGenerationConfig(gemini.GenerationConfig{
			Temperature:     g.Temperature,
			MaxOutputTokens: g.MaxOutputTokens,
			TopP:            g.TopP,
			TopK:            g.TopK,
		}),
		gemini.WithRetry(retry.Config{
			MaxAttempts: g.MaxAttempts,
			BaseDelay:   g.BaseDelay,
			MaxDelay:    g.MaxDelay,
			Multiplier:  2,
		}),
		gemini.WithRateLimit(g.RequestsPerSecond, int(math.Ceil(g.RequestsPerSecond))),
		gemini.WithSystemInstruction(g.SystemInstruction),
	)
}

// resolveAPIKey prefers a literal key and otherwise reads the configured
// SSM parameter.
func resolveAPIKey(ctx context.Context, g config.GeminiConfig) (string, error) {
	if key := strings.TrimSpace(g.APIKey); key != "" {
		return key, nil
	}
	if strings.TrimSpace(g.APIKeyParam) == "" {
		return "", errors.New("no Gemini API key configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("load AWS config: %w", err)
	}
	store, err := paramstore.NewKeyStore(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return "", err
	}
	key, err := store.APIKey(ctx, g.APIKeyParam)
	if err != nil {
		return "", err
	}
	log.Info().Str("param", g.APIKeyParam).Msg("gemini api key resolved from parameter store")
	return key, nil
}
