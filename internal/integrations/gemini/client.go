package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"verilogai/internal/domain"
	"verilogai/internal/retry"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 120 * time.Second

	maxErrorBody   = 4096
	maxSuccessBody = 4 << 20
	maxRawInError  = 1024
)

// GenerationConfig holds the fixed sampling parameters attached to every call.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.3,
		MaxOutputTokens: 8192,
		TopP:            0.95,
		TopK:            40,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

// generateRequest is the request shape for models/{model}:generateContent.
type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
}

// generateResponse keeps only the path we read. Text is a pointer so an
// absent field is distinguishable from an empty reply.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client sends conversations to the Gemini generateContent endpoint, retrying
// rate-limited and transport-failed attempts with exponential backoff.
type Client struct {
	apiKey            string
	baseURL           string
	model             string
	httpClient        *http.Client
	generation        GenerationConfig
	retry             retry.Config
	sleep             retry.Sleeper
	limiter           *rate.Limiter
	systemInstruction bool
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout bounds each individual attempt, not the whole retry loop.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

func WithGenerationConfig(cfg GenerationConfig) Option {
	return func(c *Client) {
		c.generation = cfg
	}
}

func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg.Normalize()
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = n
		c.retry = c.retry.Normalize()
	}
}

// WithSleeper replaces the backoff wait. Tests use it to record delays.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithRateLimit caps outbound attempts per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSystemInstruction sends system-role messages as the endpoint's
// systemInstruction. Off by default: system messages then travel as model turns.
func WithSystemInstruction(enabled bool) Option {
	return func(c *Client) {
		c.systemInstruction = enabled
	}
}

// NewClient creates a Client for the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini: api key must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		generation: DefaultGenerationConfig(),
		retry:      retry.DefaultConfig(),
		sleep:      retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.model == "" {
		return nil, errors.New("gemini: model must not be empty")
	}
	return c, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func generateURL(baseURL, model string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return base + "/models/" + model + ":generateContent"
}

// Send delivers messages in order and returns the first candidate's text.
func (c *Client) Send(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("gemini: messages must not be empty")
	}
	body, err := json.Marshal(c.buildRequest(messages))
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}
	url := generateURL(c.baseURL, c.model)

	attempts := c.retry.MaxAttempts
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", &APIError{Attempts: attempt, Err: fmt.Errorf("rate limiter: %w", err)}
			}
		}

		text, err := c.do(ctx, url, body)
		if err == nil {
			return text, nil
		}
		lastErr = stampAttempts(err, attempt+1)

		if !c.retryable(ctx, err) || attempt == attempts-1 {
			break
		}

		delay := c.retry.Delay(attempt)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("backoff", delay).
			Msg("gemini: retrying request")
		if err := c.sleep(ctx, delay); err != nil {
			return "", &APIError{Attempts: attempt + 1, Err: fmt.Errorf("backoff interrupted: %w", err)}
		}
	}
	return "", lastErr
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.RateLimited() || apiErr.StatusCode == 0
}

func stampAttempts(err error, n int) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		apiErr.Attempts = n
	}
	return err
}

func (c *Client) buildRequest(messages []domain.ChatMessage) generateRequest {
	req := generateRequest{
		Contents:         make([]content, 0, len(messages)),
		GenerationConfig: c.generation,
	}
	var system []part
	for _, m := range messages {
		if c.systemInstruction && m.Role == domain.RoleSystem {
			system = append(system, part{Text: m.Content})
			continue
		}
		req.Contents = append(req.Contents, content{
			Role:  wireRole(m.Role),
			Parts: []part{{Text: m.Content}},
		})
	}
	if len(system) > 0 {
		req.SystemInstruction = &content{Parts: system}
	}
	return req
}

// wireRole maps caller roles onto the endpoint's two-role vocabulary. Anything
// that is not "user", system included, is sent as "model".
func wireRole(role string) string {
	if role == domain.RoleUser {
		return "user"
	}
	return "model"
}

func (c *Client) do(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &APIError{Attempts: 1, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return "", &APIError{Attempts: 1, Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody+1))
		return "", &APIError{
			StatusCode: res.StatusCode,
			Body:       truncate(string(buf), maxErrorBody),
			Attempts:   1,
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxSuccessBody))
	if err != nil {
		return "", &APIError{Attempts: 1, Err: fmt.Errorf("read response body: %w", err)}
	}
	return parseReply(raw)
}

func parseReply(raw []byte) (string, error) {
	var payload generateResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &MalformedResponseError{Body: truncate(string(raw), maxRawInError), Err: err}
	}
	if len(payload.Candidates) == 0 {
		return "", &MalformedResponseError{Body: truncate(string(raw), maxRawInError), Err: errors.New("no candidates")}
	}
	parts := payload.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == nil {
		return "", &MalformedResponseError{Body: truncate(string(raw), maxRawInError), Err: errors.New("first candidate has no text part")}
	}
	return *parts[0].Text, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
