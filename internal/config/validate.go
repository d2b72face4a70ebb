package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate ensures the configuration is structurally usable. Requirements
// that depend on the command being run (a destination directory for device
// fetches, a MAK for decryption) are checked by the pipeline instead.
func (c *Config) Validate() error {
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Device.DownloadPauseSeconds < 0 {
		return errors.New("device.download_pause_seconds must not be negative")
	}
	if c.Watch.SettleSeconds <= 0 {
		return errors.New("watch.settle_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositive([]namedInt{
		{"device.request_timeout", c.Device.RequestTimeout},
		{"tvdb.request_timeout", c.TVDB.RequestTimeout},
		{"decrypt.timeout", c.Decrypt.Timeout},
		{"comskip.timeout", c.Comskip.Timeout},
		{"transcode.timeout", c.Transcode.Timeout},
	})
}

func (c *Config) validateTranscode() error {
	switch c.Transcode.Engine {
	case "":
		return nil
	case EngineFFmpeg:
		if c.Transcode.VideoCodec == "" {
			return errors.New("transcode.video_codec must be set when transcode.engine is ffmpeg")
		}
		if c.Transcode.AudioCodec == "" {
			return errors.New("transcode.audio_codec must be set when transcode.engine is ffmpeg")
		}
		return nil
	case EngineDrapto:
		return nil
	default:
		return fmt.Errorf("transcode.engine: unsupported value %q (want ffmpeg or drapto)", c.Transcode.Engine)
	}
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

type namedInt struct {
	key   string
	value int
}

func ensurePositive(values []namedInt) error {
	for _, v := range values {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}
	return nil
}
