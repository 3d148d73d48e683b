package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"verilogai/internal/domain"
	"verilogai/internal/usecase"
)

const (
	correlationHeader     = "X-Correlation-Id"
	defaultMaxUploadBytes = 1 << 20
)

// Features is the list advertised by GET /health.
var Features = []string{"chat", "generate", "debug", "explain", "optimize", "testbench", "analyze", "upload"}

type AssistantUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Generate(ctx context.Context, in usecase.GenerateInput) (usecase.GenerateOutput, error)
	Debug(ctx context.Context, in usecase.DebugInput) (usecase.DebugOutput, error)
	Explain(ctx context.Context, in usecase.ExplainInput) (usecase.ExplainOutput, error)
	Optimize(ctx context.Context, in usecase.OptimizeInput) (usecase.OptimizeOutput, error)
	Testbench(ctx context.Context, in usecase.TestbenchInput) (usecase.TestbenchOutput, error)
	Analyze(ctx context.Context, in usecase.AnalyzeInput) (usecase.AnalyzeOutput, error)
	Upload(ctx context.Context, in usecase.UploadInput) (usecase.UploadOutput, error)
}

type Handler struct {
	uc             AssistantUseCase
	version        string
	maxUploadBytes int64
	now            func() time.Time
}

type Option func(*Handler)

func WithVersion(version string) Option {
	return func(h *Handler) {
		h.version = version
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

func NewHandler(uc AssistantUseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:             uc,
		version:        "dev",
		maxUploadBytes: defaultMaxUploadBytes,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.POST("/chat", h.Chat)
	e.POST("/generate", h.Generate)
	e.POST("/debug", h.Debug)
	e.POST("/explain", h.Explain)
	e.POST("/optimize", h.Optimize)
	e.POST("/testbench", h.Testbench)
	e.POST("/analyze", h.Analyze)
	e.POST("/upload", h.Upload)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status    string   `json:"status"`
	Timestamp string   `json:"timestamp"`
	Version   string   `json:"version"`
	Features  []string `json:"features"`
}

type chatRequest struct {
	Prompt  string               `json:"prompt"`
	History []domain.ChatMessage `json:"history"`
	Context string               `json:"context"`
}

type chatResponse struct {
	Reply     string `json:"reply"`
	Timestamp string `json:"timestamp"`
}

type generateRequest struct {
	Spec              string `json:"spec"`
	Language          string `json:"language"`
	Target            string `json:"target"`
	Optimization      string `json:"optimization"`
	IncludeAssertions *bool  `json:"include_assertions"`
	IncludeCoverage   *bool  `json:"include_coverage"`
}

type generateMetadata struct {
	Language string `json:"language"`
	Target   string `json:"target"`
}

type generateResponse struct {
	Reply    string           `json:"reply"`
	Metadata generateMetadata `json:"metadata"`
}

type codeRequest struct {
	Code          string `json:"code"`
	FileName      string `json:"file_name"`
	AnalysisDepth string `json:"analysis_depth"`
}

type analysisDetails struct {
	Modules      []domain.ExtractedModule `json:"modules"`
	ClockDomains []string                 `json:"clock_domains"`
	StyleIssues  []domain.StyleIssue      `json:"style_issues"`
}

type debugResponse struct {
	Reply          string          `json:"reply"`
	StaticAnalysis analysisDetails `json:"static_analysis"`
}

type explainContext struct {
	Modules    int    `json:"modules"`
	Complexity string `json:"complexity"`
}

type explainResponse struct {
	Reply   string         `json:"reply"`
	Context explainContext `json:"context"`
}

type optimizeRequest struct {
	Code        string         `json:"code"`
	Target      string         `json:"target"`
	Objective   string         `json:"objective"`
	Constraints map[string]any `json:"constraints"`
}

type optimizationTarget struct {
	Target    string `json:"target"`
	Objective string `json:"objective"`
}

type optimizeResponse struct {
	Reply              string             `json:"reply"`
	OptimizationTarget optimizationTarget `json:"optimization_target"`
}

type testbenchRequest struct {
	DUTCode         string `json:"dut_code"`
	TestType        string `json:"test_type"`
	Language        string `json:"language"`
	IncludeCoverage *bool  `json:"include_coverage"`
}

type testbenchResponse struct {
	Reply      string   `json:"reply"`
	DUTModules []string `json:"dut_modules"`
}

type analyzeMetrics struct {
	Modules      int `json:"modules"`
	ClockDomains int `json:"clock_domains"`
	LinesOfCode  int `json:"lines_of_code"`
	StyleIssues  int `json:"style_issues"`
}

type analyzeResponse struct {
	Reply   string          `json:"reply"`
	Metrics analyzeMetrics  `json:"metrics"`
	Details analysisDetails `json:"details"`
}

type uploadResponse struct {
	Filename string   `json:"filename"`
	Size     int      `json:"size"`
	Modules  []string `json:"modules"`
	Preview  string   `json:"preview"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Features:  Features,
	})
}

func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Chat(c.Request().Context(), usecase.ChatInput{
		Prompt:  req.Prompt,
		History: req.History,
		Context: req.Context,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, chatResponse{
		Reply:     out.Reply,
		Timestamp: out.Timestamp.Format(time.RFC3339),
	})
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Generate(c.Request().Context(), usecase.GenerateInput{
		Spec:              req.Spec,
		Language:          req.Language,
		Target:            req.Target,
		Optimization:      req.Optimization,
		IncludeAssertions: req.IncludeAssertions,
		IncludeCoverage:   req.IncludeCoverage,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, generateResponse{
		Reply:    out.Reply,
		Metadata: generateMetadata{Language: out.Language, Target: out.Target},
	})
}

func (h *Handler) Debug(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Debug(c.Request().Context(), usecase.DebugInput{
		Code:          req.Code,
		FileName:      req.FileName,
		AnalysisDepth: req.AnalysisDepth,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, debugResponse{
		Reply:          out.Reply,
		StaticAnalysis: detailsOf(out.Analysis),
	})
}

func (h *Handler) Explain(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Explain(c.Request().Context(), usecase.ExplainInput{
		Code:          req.Code,
		AnalysisDepth: req.AnalysisDepth,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, explainResponse{
		Reply:   out.Reply,
		Context: explainContext{Modules: out.ModuleCount, Complexity: out.Complexity},
	})
}

func (h *Handler) Optimize(c echo.Context) error {
	var req optimizeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Optimize(c.Request().Context(), usecase.OptimizeInput{
		Code:        req.Code,
		Target:      req.Target,
		Objective:   req.Objective,
		Constraints: req.Constraints,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, optimizeResponse{
		Reply:              out.Reply,
		OptimizationTarget: optimizationTarget{Target: out.Target, Objective: out.Objective},
	})
}

func (h *Handler) Testbench(c echo.Context) error {
	var req testbenchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Testbench(c.Request().Context(), usecase.TestbenchInput{
		DUTCode:         req.DUTCode,
		TestType:        req.TestType,
		Language:        req.Language,
		IncludeCoverage: req.IncludeCoverage,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, testbenchResponse{Reply: out.Reply, DUTModules: out.DUTModules})
}

func (h *Handler) Analyze(c echo.Context) error {
	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	out, err := h.uc.Analyze(c.Request().Context(), usecase.AnalyzeInput{Code: req.Code})
	if err != nil {
		return err
	}
	a := out.Analysis
	return c.JSON(http.StatusOK, analyzeResponse{
		Reply: out.Reply,
		Metrics: analyzeMetrics{
			Modules:      len(a.Modules),
			ClockDomains: len(a.ClockDomains),
			LinesOfCode:  a.LinesOfCode,
			StyleIssues:  len(a.StyleIssues),
		},
		Details: detailsOf(a),
	})
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"file\" is required")
	}
	if fh.Size > h.maxUploadBytes {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("handler: open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("handler: read upload: %w", err)
	}
	if int64(len(content)) > h.maxUploadBytes {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}

	out, err := h.uc.Upload(c.Request().Context(), usecase.UploadInput{Filename: fh.Filename, Content: content})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, uploadResponse{
		Filename: out.Filename,
		Size:     out.Size,
		Modules:  out.Modules,
		Preview:  out.Preview,
	})
}

func detailsOf(a domain.AnalysisResult) analysisDetails {
	return analysisDetails{
		Modules:      a.Modules,
		ClockDomains: a.ClockDomains,
		StyleIssues:  a.StyleIssues,
	}
}

// ErrorHandler renders every error as {"detail": message}. Validation
// failures, unsupported content types and oversized bodies are 400, echo's
// other HTTP errors keep their status, everything else is 500.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, detail := errorStatus(err)

	event := log.Error()
	if status < http.StatusInternalServerError {
		event = log.Warn()
	}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		event = event.Str("code", string(ucErr.Code)).Str("reason", ucErr.Reason)
	}
	event.Err(err).
		Int("status", status).
		Str("path", c.Path()).
		Str("correlation_id", c.Response().Header().Get(correlationHeader)).
		Msg("request failed")

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, errorResponse{Detail: detail})
	}
	if err != nil {
		log.Error().Err(err).Msg("write error response")
	}
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, echo.ErrUnsupportedMediaType):
		return http.StatusBadRequest, "unsupported content type, expected application/json"
	case errors.Is(err, echo.ErrStatusRequestEntityTooLarge):
		return http.StatusBadRequest, "request body too large"
	}
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorInvalidInput:
			return http.StatusBadRequest, ucErr.Detail()
		default:
			return http.StatusInternalServerError, ucErr.Detail()
		}
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	}
	return http.StatusInternalServerError, err.Error()
}
