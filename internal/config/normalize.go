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
	c.normalizeDevice()
	c.normalizeTVDB()
	if err := c.normalizeStages(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

// Normalize re-applies path expansion and environment fallbacks. Callers that
// overlay values onto a loaded config should call it before Validate.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.dest_dir", &c.Paths.DestDir},
		{"paths.skip_if_in_path", &c.Paths.SkipIfInPath},
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"metrics.textfile_path", &c.Metrics.TextfilePath},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.Hostname = strings.TrimSpace(c.Device.Hostname)
	c.Device.MAK = strings.TrimSpace(c.Device.MAK)
	if c.Device.MAK == "" {
		if value, ok := os.LookupEnv("TIVO_MAK"); ok {
			c.Device.MAK = strings.TrimSpace(value)
		}
	}
	if c.Device.RequestTimeout <= 0 {
		c.Device.RequestTimeout = defaultDeviceTimeout
	}
}

func (c *Config) normalizeTVDB() {
	lookups := []struct {
		value *string
		env   string
	}{
		{&c.TVDB.APIKey, "TVDB_API_KEY"},
		{&c.TVDB.UserKey, "TVDB_USER_KEY"},
		{&c.TVDB.Username, "TVDB_USERNAME"},
	}
	for _, lookup := range lookups {
		*lookup.value = strings.TrimSpace(*lookup.value)
		if *lookup.value != "" {
			continue
		}
		if value, ok := os.LookupEnv(lookup.env); ok {
			*lookup.value = strings.TrimSpace(value)
		}
	}
	c.TVDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TVDB.BaseURL), "/")
	if c.TVDB.BaseURL == "" {
		c.TVDB.BaseURL = defaultTVDBBaseURL
	}
	if c.TVDB.RequestTimeout <= 0 {
		c.TVDB.RequestTimeout = defaultTVDBTimeout
	}
}

func (c *Config) normalizeStages() error {
	var err error
	if c.Decrypt.TivoDecoderPath, err = expandPath(strings.TrimSpace(c.Decrypt.TivoDecoderPath)); err != nil {
		return fmt.Errorf("decrypt.tivo_decoder_path: %w", err)
	}
	if c.Decrypt.Destination, err = expandPath(strings.TrimSpace(c.Decrypt.Destination)); err != nil {
		return fmt.Errorf("decrypt.destination: %w", err)
	}
	c.Decrypt.JavaBinary = strings.TrimSpace(c.Decrypt.JavaBinary)
	if c.Decrypt.JavaBinary == "" {
		c.Decrypt.JavaBinary = defaultJavaBinary
	}

	c.Comskip.Path = strings.TrimSpace(c.Comskip.Path)
	if c.Comskip.INI, err = expandPath(strings.TrimSpace(c.Comskip.INI)); err != nil {
		return fmt.Errorf("comskip.ini: %w", err)
	}

	c.Transcode.Engine = strings.ToLower(strings.TrimSpace(c.Transcode.Engine))
	if c.Transcode.Destination, err = expandPath(strings.TrimSpace(c.Transcode.Destination)); err != nil {
		return fmt.Errorf("transcode.destination: %w", err)
	}
	c.Transcode.FFmpegPath = strings.TrimSpace(c.Transcode.FFmpegPath)
	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = defaultFFmpegPath
	}
	c.Transcode.Container = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Transcode.Container), "."))
	if c.Transcode.Container == "" {
		c.Transcode.Container = defaultContainer
	}
	if c.Transcode.Engine == EngineDrapto {
		c.Transcode.Container = "mkv"
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
