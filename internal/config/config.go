// Package config provides CLI flag parsing for the srag-ml sidecar.
// Precedence: defaults < environment (XDG_DATA_HOME/HOME, read only by the
// model store) < CLI flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Provider selects which backend serves the generate RPC.
type Provider string

const (
	ProviderLocal     Provider = "local"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config holds all launch-time configuration for the sidecar.
type Config struct {
	Host     string
	Port     int
	PortFile string

	ModelsDir     string
	AuthToken     string
	ModelFilename string
	ModelURL      string
	ModelSHA256   string

	LLMThreads     int
	LLMContextSize int

	APIProvider   Provider
	APIModel      string
	APIMaxTokens  int
	RedactSecrets bool
	APIKeyFile    string

	LogLevel string
}

// Defaults returns the zero-configuration baseline.
func Defaults() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           0,
		ModelFilename:  "Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		ModelURL:       "https://huggingface.co/bartowski/Llama-3.2-1B-Instruct-GGUF/resolve/main/Llama-3.2-1B-Instruct-Q4_K_M.gguf",
		LLMThreads:     0,
		LLMContextSize: 4096,
		APIProvider:    ProviderLocal,
		APIModel:       "claude-sonnet-4-20250514",
		APIMaxTokens:   2048,
		RedactSecrets:  true,
		LogLevel:       "info",
	}
}

// Parse parses args (typically os.Args[1:]) into a Config, starting from
// Defaults().
func Parse(args []string) (Config, error) {
	cfg := Defaults()

	fs := flag.NewFlagSet("srag-ml", flag.ContinueOnError)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host to bind to")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port to bind to (0 = OS-assigned)")
	fs.StringVar(&cfg.PortFile, "port-file", cfg.PortFile, "file to write the assigned port to")
	fs.StringVar(&cfg.ModelsDir, "models-dir", cfg.ModelsDir, "directory for model files")
	fs.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "shared bearer token for request validation")
	fs.StringVar(&cfg.ModelFilename, "model-filename", cfg.ModelFilename, "local LLM model filename")
	fs.StringVar(&cfg.ModelURL, "model-url", cfg.ModelURL, "URL to download the local LLM model from if absent")
	fs.StringVar(&cfg.ModelSHA256, "model-sha256", cfg.ModelSHA256, "expected SHA-256 of the downloaded model file")
	fs.IntVar(&cfg.LLMThreads, "llm-threads", cfg.LLMThreads, "thread count for local LLM inference (0 = auto)")
	fs.IntVar(&cfg.LLMContextSize, "llm-context-size", cfg.LLMContextSize, "local LLM context window size")

	var provider string
	fs.StringVar(&provider, "api-provider", string(cfg.APIProvider), "generation backend: local, anthropic, or openai")
	fs.StringVar(&cfg.APIModel, "api-model", cfg.APIModel, "model name for the external API provider")
	fs.IntVar(&cfg.APIMaxTokens, "api-max-tokens", cfg.APIMaxTokens, "default max tokens for external API responses")

	var redact string
	fs.StringVar(&redact, "redact-secrets", "true", "redact secrets from prompts before sending to an external provider")
	fs.StringVar(&cfg.APIKeyFile, "api-key-file", cfg.APIKeyFile, "path to a file containing the external API key")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "logging level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	cfg.APIProvider = Provider(provider)
	cfg.RedactSecrets = strings.EqualFold(redact, "true")

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.APIProvider {
	case ProviderLocal, ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown --api-provider %q", cfg.APIProvider)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return errors.New("--port must be in [0, 65535]")
	}
	return nil
}
