package config

const (
	defaultInputDir     = "~/loom/input"
	defaultOutputDir    = "~/loom/output"
	defaultGlossaryPath = "~/loom/glossary.txt"
	defaultJournalPath  = "~/.local/share/loom/journal.db"
	defaultLogDir       = "~/.local/share/loom/logs"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/loom-translate/loom"
	defaultLLMTitle          = "Loom Translator"
	defaultLLMTimeoutSeconds = 90

	defaultBatchSize               = 10
	defaultPrimaryAttempts         = 3
	defaultSecondaryAttempts       = 2
	defaultPrimaryBackoffSeconds   = 60
	defaultSecondaryBackoffSeconds = 5
	defaultPrimaryBackoffFactor    = 2.0
	defaultSecondaryBackoffFactor  = 2.5
	defaultSizeRetryLimit          = 4
	defaultSizeRatioPercent        = 125
	defaultSizeMarginBytes         = 10240

	defaultProofChunkBytes        = 10240
	defaultLatinMaxPercent        = 70
	defaultGlossaryTimeoutSeconds = 90

	defaultMinLineRatioPercent    = 20
	defaultMinLineFloor           = 5
	defaultMaxLineDelta           = 10
	defaultBatchTimeoutSeconds    = 150
	defaultCopyEditTimeoutSeconds = 180

	defaultNotifyRequestTimeout = 10

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InputDir:     defaultInputDir,
			OutputDir:    defaultOutputDir,
			GlossaryPath: defaultGlossaryPath,
			JournalPath:  defaultJournalPath,
			LogDir:       defaultLogDir,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Pipeline: Pipeline{
			BatchSize:               defaultBatchSize,
			PrimaryAttempts:         defaultPrimaryAttempts,
			SecondaryAttempts:       defaultSecondaryAttempts,
			PrimaryBackoffSeconds:   defaultPrimaryBackoffSeconds,
			SecondaryBackoffSeconds: defaultSecondaryBackoffSeconds,
			PrimaryBackoffFactor:    defaultPrimaryBackoffFactor,
			SecondaryBackoffFactor:  defaultSecondaryBackoffFactor,
			SizeRetryLimit:          defaultSizeRetryLimit,
			SizeRatioPercent:        defaultSizeRatioPercent,
			SizeMarginBytes:         defaultSizeMarginBytes,
		},
		Glossary: Glossary{
			ProofChunkBytes: defaultProofChunkBytes,
			LatinMaxPercent: defaultLatinMaxPercent,
			TimeoutSeconds:  defaultGlossaryTimeoutSeconds,
		},
		Proofing: Proofing{
			MinLineRatioPercent:    defaultMinLineRatioPercent,
			MinLineFloor:           defaultMinLineFloor,
			MaxLineDelta:           defaultMaxLineDelta,
			BatchTimeoutSeconds:    defaultBatchTimeoutSeconds,
			CopyEditTimeoutSeconds: defaultCopyEditTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RunLifecycle:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
