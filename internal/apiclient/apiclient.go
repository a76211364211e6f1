// Package apiclient implements a provider-agnostic external generation
// client over the Anthropic and OpenAI HTTP APIs, with secret redaction
// and circuit-breaker protection on every outbound call.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"

	"github.com/mhesketh/srag-ml/internal/secretfilter"
)

// ErrNotConfigured is returned when no API key is available at call time.
var ErrNotConfigured = errors.New("apiclient: not configured")

// ErrBadProvider is returned for any provider value outside {anthropic, openai}.
var ErrBadProvider = errors.New("apiclient: unknown provider")

const defaultTemperature = 0.1

// Config carries the construction-time parameters for a Client.
type Config struct {
	Provider      string // "anthropic" or "openai"
	Model         string
	APIKey        string
	APIKeyFile    string
	MaxTokens     int
	RedactSecrets bool
}

// Client dispatches generate() to whichever provider it was configured
// for. The underlying provider SDK client is constructed lazily on first
// use so that an unconfigured client (no key available) never touches
// the network.
type Client struct {
	provider      string
	model         string
	apiKey        string
	maxTokens     int
	redactSecrets bool
	logger        *slog.Logger

	breaker *providerBreaker

	redactions atomic.Int64

	anthropicClient *anthropic.Client
	openaiClient    *openai.Client
}

// New constructs a Client. If cfg.APIKey is empty and cfg.APIKeyFile is
// set, the file is read now and trailing whitespace stripped; a missing
// file is non-fatal and simply leaves the client unconfigured.
func New(cfg Config, logger *slog.Logger) *Client {
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyFile != "" {
		if b, err := os.ReadFile(cfg.APIKeyFile); err == nil {
			apiKey = strings.TrimRight(string(b), " \t\r\n")
		}
	}
	return &Client{
		provider:      cfg.Provider,
		model:         cfg.Model,
		apiKey:        apiKey,
		maxTokens:     cfg.MaxTokens,
		redactSecrets: cfg.RedactSecrets,
		logger:        logger,
		breaker:       newProviderBreaker(cfg.Provider, logger),
	}
}

// TotalRedactions returns the process-lifetime count of secret occurrences
// masked before network egress.
func (c *Client) TotalRedactions() int64 {
	return c.redactions.Load()
}

// Generate dispatches to the configured provider, applying secret
// redaction to prompt first when enabled. maxTokens <= 0 selects the
// constructor default; a negative temperature selects 0.1.
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error) {
	if c.apiKey == "" {
		return "", 0, fmt.Errorf("%w: no API key for %s; set --api-key-file to a file holding one", ErrNotConfigured, c.provider)
	}
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if temperature < 0 {
		temperature = defaultTemperature
	}

	if c.redactSecrets {
		redacted, n := secretfilter.Redact(prompt)
		prompt = redacted
		if n > 0 {
			c.redactions.Add(int64(n))
			c.logger.Info("redacted secrets from outbound prompt", "count", n)
		}
	}

	var text string
	var tokens int
	var genErr error

	err := c.breaker.attempt(func() error {
		switch c.provider {
		case "anthropic":
			text, tokens, genErr = c.generateAnthropic(ctx, prompt, maxTokens, temperature)
		case "openai":
			text, tokens, genErr = c.generateOpenAI(ctx, prompt, maxTokens, temperature, stop)
		default:
			genErr = fmt.Errorf("%w: %q", ErrBadProvider, c.provider)
		}
		return genErr
	})
	if err != nil {
		return "", 0, err
	}
	return text, tokens, nil
}

func (c *Client) generateAnthropic(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, int, error) {
	if c.anthropicClient == nil {
		client := anthropic.NewClient(anthropicoption.WithAPIKey(c.apiKey))
		c.anthropicClient = &client
	}

	resp, err := c.anthropicClient.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("apiclient: anthropic: %w", err)
	}

	text := ""
	if len(resp.Content) > 0 {
		text = resp.Content[0].Text
	}
	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	return text, tokens, nil
}

func (c *Client) generateOpenAI(ctx context.Context, prompt string, maxTokens int, temperature float64, stop []string) (string, int, error) {
	if c.openaiClient == nil {
		client := openai.NewClient(openaioption.WithAPIKey(c.apiKey))
		c.openaiClient = &client
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}
	if len(stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stop}
	}

	resp, err := c.openaiClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", 0, fmt.Errorf("apiclient: openai: %w", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	tokens := 0
	if resp.Usage.TotalTokens > 0 {
		tokens = int(resp.Usage.TotalTokens)
	}
	return text, tokens, nil
}
