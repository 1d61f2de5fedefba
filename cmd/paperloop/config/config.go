// Package config loads the paperloop CLI runtime configuration from
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config controls the paperloop CLI runtime.
type Config struct {
	Model              string
	APIKey             string
	SystemPrompt       string
	MaxIterations      int
	MaxTokens          int
	Temperature        *float64
	PaperDir           string
	StudyDir           string
	ToolTimeoutSeconds int
	RunTimeoutSeconds  int
}

// Load reads configuration from environment variables. Malformed values are
// errors, not silent fallbacks.
func Load() (Config, error) {
	maxIterations, err := intEnvStrict("PAPERLOOP_MAX_ITERATIONS", 16)
	if err != nil {
		return Config{}, err
	}
	maxTokens, err := intEnvStrict("ANTHROPIC_MAX_TOKENS", 0)
	if err != nil {
		return Config{}, err
	}
	toolTimeoutSeconds, err := intEnvStrict("PAPERLOOP_TOOL_TIMEOUT_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}
	runTimeoutSeconds, err := intEnvStrict("PAPERLOOP_RUN_TIMEOUT_SECONDS", 300)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIKey:             trimmedEnv("ANTHROPIC_API_KEY"),
		Model:              trimmedEnv("ANTHROPIC_MODEL"),
		SystemPrompt:       trimmedEnv("PAPERLOOP_SYSTEM_PROMPT"),
		MaxIterations:      maxIterations,
		MaxTokens:          maxTokens,
		PaperDir:           trimmedEnv("PAPERLOOP_PAPER_DIR"),
		StudyDir:           trimmedEnv("PAPERLOOP_STUDY_DIR"),
		ToolTimeoutSeconds: toolTimeoutSeconds,
		RunTimeoutSeconds:  runTimeoutSeconds,
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "You are a research assistant with access to arXiv search and clinical study analysis tools. Be concise and accurate."
	}
	if cfg.PaperDir == "" {
		cfg.PaperDir = "papers"
	}
	if cfg.StudyDir == "" {
		cfg.StudyDir = "studies"
	}
	if cfg.APIKey == "" {
		return Config{}, errors.New("config: ANTHROPIC_API_KEY is required")
	}
	if cfg.Model == "" {
		return Config{}, errors.New("config: ANTHROPIC_MODEL is required")
	}
	if temp := trimmedEnv("ANTHROPIC_TEMPERATURE"); temp != "" {
		parsed, err := strconv.ParseFloat(temp, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid ANTHROPIC_TEMPERATURE: %w", err)
		}
		if parsed < 0 || parsed > 1 {
			return Config{}, errors.New("config: ANTHROPIC_TEMPERATURE must be between 0 and 1")
		}
		cfg.Temperature = &parsed
	}
	if cfg.MaxIterations <= 0 {
		return Config{}, errors.New("config: PAPERLOOP_MAX_ITERATIONS must be greater than 0")
	}
	if cfg.MaxTokens < 0 {
		return Config{}, errors.New("config: ANTHROPIC_MAX_TOKENS must be zero or greater")
	}
	if cfg.ToolTimeoutSeconds <= 0 {
		return Config{}, errors.New("config: PAPERLOOP_TOOL_TIMEOUT_SECONDS must be greater than 0")
	}
	if cfg.RunTimeoutSeconds <= 0 {
		return Config{}, errors.New("config: PAPERLOOP_RUN_TIMEOUT_SECONDS must be greater than 0")
	}
	return cfg, nil
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func intEnvStrict(key string, fallback int) (int, error) {
	value := trimmedEnv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return parsed, nil
}
