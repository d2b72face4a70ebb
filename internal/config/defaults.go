package config

const (
	defaultConfigPath           = "~/.config/dvrflow/config.toml"
	defaultStateDir             = "~/.local/state/dvrflow"
	defaultLogDir               = "~/.local/state/dvrflow/logs"
	defaultDownloadPauseSeconds = 30
	defaultDeviceTimeout        = 60
	defaultTVDBBaseURL          = "https://api.thetvdb.com"
	defaultTVDBTimeout          = 30
	defaultTivoDecoderPath      = "/opt/tivo/TivoDecoder.jar"
	defaultJavaBinary           = "java"
	defaultDecryptTimeout       = 3600
	defaultComskipTimeout       = 3600
	defaultFFmpegPath           = "ffmpeg"
	defaultContainer            = "mp4"
	defaultVideoCodec           = "libx264"
	defaultVideoQuality         = "20"
	defaultAudioCodec           = "aac"
	defaultAudioQuality         = "160k"
	defaultCompressionSpeed     = "medium"
	defaultTranscodeTimeout     = 4 * 3600
	defaultSettleSeconds        = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"

	// EngineFFmpeg transcodes with an external ffmpeg binary.
	EngineFFmpeg = "ffmpeg"
	// EngineDrapto transcodes in-process with the drapto AV1 library.
	EngineDrapto = "drapto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Device: Device{
			DownloadPauseSeconds: defaultDownloadPauseSeconds,
			RequestTimeout:       defaultDeviceTimeout,
		},
		TVDB: TVDB{
			BaseURL:        defaultTVDBBaseURL,
			RequestTimeout: defaultTVDBTimeout,
		},
		Decrypt: Decrypt{
			TivoDecoderPath: defaultTivoDecoderPath,
			JavaBinary:      defaultJavaBinary,
			Timeout:         defaultDecryptTimeout,
		},
		Comskip: Comskip{
			Timeout: defaultComskipTimeout,
		},
		Transcode: Transcode{
			FFmpegPath:       defaultFFmpegPath,
			Container:        defaultContainer,
			VideoCodec:       defaultVideoCodec,
			VideoQuality:     defaultVideoQuality,
			AudioCodec:       defaultAudioCodec,
			AudioQuality:     defaultAudioQuality,
			CompressionSpeed: defaultCompressionSpeed,
			Timeout:          defaultTranscodeTimeout,
		},
		Watch: Watch{
			SettleSeconds: defaultSettleSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
