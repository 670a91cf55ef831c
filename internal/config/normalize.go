package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeLLM(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeGlossary()
	c.normalizeProofing()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InputDir, err = expandPath(c.Paths.InputDir); err != nil {
		return fmt.Errorf("paths.input_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.GlossaryPath) == "" {
		c.Paths.GlossaryPath = defaultGlossaryPath
	}
	if c.Paths.GlossaryPath, err = expandPath(c.Paths.GlossaryPath); err != nil {
		return fmt.Errorf("paths.glossary_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.JournalPath) == "" {
		c.Paths.JournalPath = defaultJournalPath
	}
	if c.Paths.JournalPath, err = expandPath(c.Paths.JournalPath); err != nil {
		return fmt.Errorf("paths.journal_path: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() error {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("LOOM_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = defaultBatchSize
	}
	if c.Pipeline.PrimaryAttempts <= 0 {
		c.Pipeline.PrimaryAttempts = defaultPrimaryAttempts
	}
	if c.Pipeline.SecondaryAttempts <= 0 {
		c.Pipeline.SecondaryAttempts = defaultSecondaryAttempts
	}
	if c.Pipeline.PrimaryBackoffSeconds <= 0 {
		c.Pipeline.PrimaryBackoffSeconds = defaultPrimaryBackoffSeconds
	}
	if c.Pipeline.SecondaryBackoffSeconds <= 0 {
		c.Pipeline.SecondaryBackoffSeconds = defaultSecondaryBackoffSeconds
	}
	if c.Pipeline.PrimaryBackoffFactor <= 1 {
		c.Pipeline.PrimaryBackoffFactor = defaultPrimaryBackoffFactor
	}
	if c.Pipeline.SecondaryBackoffFactor <= 1 {
		c.Pipeline.SecondaryBackoffFactor = defaultSecondaryBackoffFactor
	}
	if c.Pipeline.SizeRetryLimit <= 0 {
		c.Pipeline.SizeRetryLimit = defaultSizeRetryLimit
	}
	// SizeRatioPercent of 0 disables the size guard; negatives are nonsense.
	if c.Pipeline.SizeRatioPercent < 0 {
		c.Pipeline.SizeRatioPercent = defaultSizeRatioPercent
	}
	if c.Pipeline.SizeMarginBytes < 0 {
		c.Pipeline.SizeMarginBytes = defaultSizeMarginBytes
	}
}

func (c *Config) normalizeGlossary() {
	if c.Glossary.ProofChunkBytes <= 0 {
		c.Glossary.ProofChunkBytes = defaultProofChunkBytes
	}
	if c.Glossary.LatinMaxPercent <= 0 || c.Glossary.LatinMaxPercent > 100 {
		c.Glossary.LatinMaxPercent = defaultLatinMaxPercent
	}
	if c.Glossary.TimeoutSeconds <= 0 {
		c.Glossary.TimeoutSeconds = defaultGlossaryTimeoutSeconds
	}
}

func (c *Config) normalizeProofing() {
	if c.Proofing.MinLineRatioPercent <= 0 || c.Proofing.MinLineRatioPercent > 100 {
		c.Proofing.MinLineRatioPercent = defaultMinLineRatioPercent
	}
	if c.Proofing.MinLineFloor <= 0 {
		c.Proofing.MinLineFloor = defaultMinLineFloor
	}
	if c.Proofing.MaxLineDelta <= 0 {
		c.Proofing.MaxLineDelta = defaultMaxLineDelta
	}
	if c.Proofing.BatchTimeoutSeconds <= 0 {
		c.Proofing.BatchTimeoutSeconds = defaultBatchTimeoutSeconds
	}
	if c.Proofing.CopyEditTimeoutSeconds <= 0 {
		c.Proofing.CopyEditTimeoutSeconds = defaultCopyEditTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
