package config_test

import (
	"testing"

	"github.com/mhesketh/srag-ml/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Host)
	}
	if cfg.Port != 0 {
		t.Errorf("Port = %d, want 0", cfg.Port)
	}
	if cfg.APIProvider != config.ProviderLocal {
		t.Errorf("APIProvider = %q, want local", cfg.APIProvider)
	}
	if !cfg.RedactSecrets {
		t.Error("RedactSecrets should default true")
	}
	if cfg.LLMContextSize != 4096 {
		t.Errorf("LLMContextSize = %d, want 4096", cfg.LLMContextSize)
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := config.Parse([]string{
		"--port", "9000",
		"--api-provider", "anthropic",
		"--redact-secrets", "FALSE",
		"--auth-token", "s3cr3t",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.APIProvider != config.ProviderAnthropic {
		t.Errorf("APIProvider = %q, want anthropic", cfg.APIProvider)
	}
	if cfg.RedactSecrets {
		t.Error("RedactSecrets should be false")
	}
	if cfg.AuthToken != "s3cr3t" {
		t.Errorf("AuthToken = %q", cfg.AuthToken)
	}
}

func TestParse_RejectsUnknownProvider(t *testing.T) {
	_, err := config.Parse([]string{"--api-provider", "bedrock"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestParse_RejectsBadPort(t *testing.T) {
	_, err := config.Parse([]string{"--port", "70000"})
	if err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
