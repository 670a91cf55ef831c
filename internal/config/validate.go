package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateProofing(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InputDir) == "" {
		return errors.New("paths.input_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.InputDir == c.Paths.OutputDir {
		return errors.New("paths.output_dir must differ from paths.input_dir")
	}
	if strings.TrimSpace(c.Paths.GlossaryPath) == "" {
		return errors.New("paths.glossary_path must be set")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/loom/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set LOOM_API_KEY env var or edit %s (create with 'loom config init')", defaultPath)
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	return ensurePositiveMap(map[string]int{
		"llm.timeout_seconds": c.LLM.TimeoutSeconds,
	})
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.batch_size":                c.Pipeline.BatchSize,
		"pipeline.primary_attempts":          c.Pipeline.PrimaryAttempts,
		"pipeline.secondary_attempts":        c.Pipeline.SecondaryAttempts,
		"pipeline.primary_backoff_seconds":   c.Pipeline.PrimaryBackoffSeconds,
		"pipeline.secondary_backoff_seconds": c.Pipeline.SecondaryBackoffSeconds,
		"pipeline.size_retry_limit":          c.Pipeline.SizeRetryLimit,
	}); err != nil {
		return err
	}
	if c.Pipeline.PrimaryBackoffFactor <= 1 {
		return errors.New("pipeline.primary_backoff_factor must be greater than 1")
	}
	if c.Pipeline.SecondaryBackoffFactor <= 1 {
		return errors.New("pipeline.secondary_backoff_factor must be greater than 1")
	}
	if c.Pipeline.SizeRatioPercent < 0 {
		return errors.New("pipeline.size_ratio_percent must not be negative")
	}
	return nil
}

func (c *Config) validateProofing() error {
	if c.Proofing.MinLineRatioPercent <= 0 || c.Proofing.MinLineRatioPercent > 100 {
		return errors.New("proofing.min_line_ratio_percent must be between 1 and 100")
	}
	return ensurePositiveMap(map[string]int{
		"proofing.min_line_floor":           c.Proofing.MinLineFloor,
		"proofing.max_line_delta":           c.Proofing.MaxLineDelta,
		"proofing.batch_timeout_seconds":    c.Proofing.BatchTimeoutSeconds,
		"proofing.copyedit_timeout_seconds": c.Proofing.CopyEditTimeoutSeconds,
	})
}

func (c *Config) validateNotifications() error {
	return ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
