package config

const (
	defaultConfigPath             = "~/.config/platewatch/config.toml"
	defaultStateDir               = "~/.local/share/platewatch"
	defaultLogDir                 = "~/.local/share/platewatch/logs"
	defaultLogRetentionDays       = 14
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultCameraID               = "cam-unknown"
	defaultPollInterval           = 1.0
	defaultReconnectDelay         = 1.0
	defaultReconnectSettle        = 0.5
	defaultMaxWorkers             = 1
	defaultRTSPTransport          = "tcp"
	defaultFrameRate              = 5
	defaultDetectorEndpoint       = "http://127.0.0.1:8081/detect"
	defaultRecognizerEndpoint     = "http://127.0.0.1:8082/recognize"
	defaultInferenceTimeout       = 10
	defaultMinDetConfidence       = 0.3
	defaultMinCropWidth           = 30
	defaultMinCropHeight          = 10
	defaultMinCropArea            = 300
	defaultMinCropRatio           = 2.0
	defaultMaxCropRatio           = 12.0
	defaultPlateRegex             = `^[A-Z0-9]{3,8}$`
	defaultMinCharConfidence      = 0.30
	defaultMinCharConfidenceRatio = 0.6
	defaultConfirmFrames          = 3
	defaultConfirmSeconds         = 5.0
	defaultSightingsTTL           = 30.0
	defaultDedupSeconds           = 10.0
	defaultEmittedTTL             = 300.0
	defaultScoringAlpha           = 0.75
	defaultOCRHighConfidence      = 0.98
	defaultDetHighConfidence      = 0.55
	defaultDetPathMinOCR          = 0.5
	defaultCombinedThreshold      = 0.3
	defaultBackendURL             = "http://127.0.0.1:3000/lpr/events"
	defaultEventTimeout           = 10
	defaultRetryAttempts          = 3
	defaultRetryBaseDelay         = 1.0
	defaultMinEventInterval       = 2.0
	defaultJWTTTLSeconds          = 300
	defaultJPEGQuality            = 90
	defaultCloudinaryFolder       = "platewatch"
	defaultCloudinaryRetries      = 3
	defaultCloudinaryBackoff      = 1.0
	defaultAPIBind                = "127.0.0.1:7490"
	defaultJournalRetentionDays   = 30
	defaultNtfyRequestTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Camera: Camera{
			ID: defaultCameraID,
		},
		Capture: Capture{
			PollInterval:    defaultPollInterval,
			ReconnectDelay:  defaultReconnectDelay,
			ReconnectSettle: defaultReconnectSettle,
			MaxWorkers:      defaultMaxWorkers,
			RTSPTransport:   defaultRTSPTransport,
			FrameRate:       defaultFrameRate,
		},
		Detector: Detector{
			Endpoint:       defaultDetectorEndpoint,
			MinConfidence:  defaultMinDetConfidence,
			TimeoutSeconds: defaultInferenceTimeout,
		},
		Recognizer: Recognizer{
			Endpoint:       defaultRecognizerEndpoint,
			TimeoutSeconds: defaultInferenceTimeout,
		},
		Quality: Quality{
			MinCropWidth:           defaultMinCropWidth,
			MinCropHeight:          defaultMinCropHeight,
			MinCropArea:            defaultMinCropArea,
			MinCropRatio:           defaultMinCropRatio,
			MaxCropRatio:           defaultMaxCropRatio,
			SaveOnlyOnPlate:        true,
			PlateRegex:             defaultPlateRegex,
			MinCharConfidence:      defaultMinCharConfidence,
			MinCharConfidenceRatio: defaultMinCharConfidenceRatio,
		},
		Confirmation: Confirmation{
			Frames:                  defaultConfirmFrames,
			Seconds:                 defaultConfirmSeconds,
			SightingsTTL:            defaultSightingsTTL,
			CountSuppressedSighting: true,
		},
		Dedup: Dedup{
			WindowSeconds: defaultDedupSeconds,
			EmittedTTL:    defaultEmittedTTL,
		},
		Scoring: Scoring{
			Alpha:             defaultScoringAlpha,
			OCRThreshold:      defaultOCRHighConfidence,
			DetThreshold:      defaultDetHighConfidence,
			DetPathMinOCR:     defaultDetPathMinOCR,
			CombinedThreshold: defaultCombinedThreshold,
		},
		Events: Events{
			BackendURL:       defaultBackendURL,
			JWTTTLSeconds:    defaultJWTTTLSeconds,
			TimeoutSeconds:   defaultEventTimeout,
			RetryAttempts:    defaultRetryAttempts,
			RetryBaseDelay:   defaultRetryBaseDelay,
			MinEventInterval: defaultMinEventInterval,
			IncludeSnapshot:  true,
		},
		Artifacts: Artifacts{
			JPEGQuality: defaultJPEGQuality,
		},
		Cloudinary: Cloudinary{
			Folder:        defaultCloudinaryFolder,
			UploadRetries: defaultCloudinaryRetries,
			RetryBackoff:  defaultCloudinaryBackoff,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNtfyRequestTimeout,
			HighConfidenceOnly: true,
			DeliveryFailures:   true,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		API: API{
			Enabled: true,
			Bind:    defaultAPIBind,
		},
		Journal: Journal{
			Enabled:       true,
			RetentionDays: defaultJournalRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
