package config

const (
	defaultWatchDir           = "~/.local/share/publishd/watch"
	defaultStagingDir         = "~/.local/share/publishd/staging"
	defaultPublicDir          = "~/.local/share/publishd/public"
	defaultLogDir             = "~/.local/share/publishd/logs"
	defaultVodDir             = "~/.local/share/publishd/vod"
	defaultMaxConcurrent      = 3
	defaultThumbnailOffset    = 5
	defaultCommandTimeout     = 120
	defaultWatchPollInterval  = 5
	defaultWatchSettleSeconds = 10
	defaultErrorRetryInterval = 10
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "auto"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir:   defaultWatchDir,
			StagingDir: defaultStagingDir,
			PublicDir:  defaultPublicDir,
			LogDir:     defaultLogDir,
		},
		Publish: Publish{
			MaxConcurrent:      defaultMaxConcurrent,
			AcceptedExtensions: []string{"tar", "mp4"},
			DefaultPlatform:    "local",
		},
		Platforms: Platforms{
			Local: LocalPlatform{VodDir: defaultVodDir},
		},
		Tools: Tools{
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			ThumbnailOffset: defaultThumbnailOffset,
			CommandTimeout:  defaultCommandTimeout,
		},
		Workflow: Workflow{
			WatchPollInterval:  defaultWatchPollInterval,
			WatchSettleSeconds: defaultWatchSettleSeconds,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Completions:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
