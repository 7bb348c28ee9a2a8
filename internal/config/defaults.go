package config

const (
	defaultConfigPath            = "~/.config/homebox-scan/config.toml"
	projectConfigName            = "homebox-scan.toml"
	defaultDataDir               = "~/.local/share/homebox-scan"
	defaultLogDir                = "~/.local/share/homebox-scan/logs"
	defaultHomeboxURL            = "https://demo.homebox.software/api/v1"
	defaultHomeboxTimeoutSeconds = 30
	defaultHomeboxRetryAttempts  = 3
	defaultVisionBaseURL         = "https://api.openai.com/v1/chat/completions"
	defaultVisionModel           = "gpt-4o-mini"
	defaultVisionTitle           = "Homebox Scan"
	defaultVisionTimeoutSeconds  = 120
	defaultGeminiModel           = "gemini-1.5-flash"
	defaultDetectionConcurrency  = 2
	defaultSubmissionConcurrency = 2
	defaultAttachmentRetryLimit  = 3
	defaultMaxSnapshotBytes      = 64 << 20
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultSessionFileName       = "session.db"
	defaultPreviewDirName        = "previews"
	defaultS3Prefix              = "homebox-scan/"
	defaultHomeboxDemoUsername   = "demo@example.com"
	defaultHomeboxDemoPassword   = "demo"
)

// Vision providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Session blob backends.
const (
	BlobBackendSQLite = "sqlite"
	BlobBackendS3     = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Homebox: Homebox{
			StayLoggedIn:   true,
			TimeoutSeconds: defaultHomeboxTimeoutSeconds,
			RetryAttempts:  defaultHomeboxRetryAttempts,
		},
		Vision: Vision{
			Provider:       ProviderOpenAI,
			BaseURL:        defaultVisionBaseURL,
			Model:          defaultVisionModel,
			Title:          defaultVisionTitle,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
		},
		Gemini: Gemini{
			Model: defaultGeminiModel,
		},
		Detection: Detection{
			Concurrency:    defaultDetectionConcurrency,
			TimeoutSeconds: defaultVisionTimeoutSeconds,
			ExtendedFields: true,
			SuggestLabels:  true,
			DuplicateCheck: true,
		},
		Submission: Submission{
			Concurrency:          defaultSubmissionConcurrency,
			AttachmentRetryLimit: defaultAttachmentRetryLimit,
			UploadPhotos:         true,
		},
		Session: Session{
			MaxSnapshotBytes: defaultMaxSnapshotBytes,
			BlobBackend:      BlobBackendSQLite,
			S3: S3{
				Prefix: defaultS3Prefix,
				UseSSL: true,
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Submission:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
