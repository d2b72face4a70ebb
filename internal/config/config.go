package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DestDir      string `toml:"dest_dir"`
	SkipIfInPath string `toml:"skip_if_in_path"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
}

// Device contains connection settings for the DVR.
type Device struct {
	Hostname             string `toml:"hostname"`
	MAK                  string `toml:"mak"`
	DownloadPauseSeconds int    `toml:"download_pause_seconds"`
	RequestTimeout       int    `toml:"request_timeout"`
}

// TVDB contains credentials for The TVDB episode lookups.
type TVDB struct {
	APIKey         string `toml:"api_key"`
	UserKey        string `toml:"user_key"`
	Username       string `toml:"username"`
	IgnoreFailure  bool   `toml:"ignore_failure"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Decrypt configures TivoDecoder.
type Decrypt struct {
	TivoDecoderPath string `toml:"tivo_decoder_path"`
	JavaBinary      string `toml:"java_binary"`
	Destination     string `toml:"destination"`
	Replace         bool   `toml:"replace"`
	Timeout         int    `toml:"timeout"`
}

// Comskip configures commercial detection. An empty Path disables the stage.
type Comskip struct {
	Path    string `toml:"path"`
	INI     string `toml:"ini"`
	Timeout int    `toml:"timeout"`
}

// Transcode configures the final encode. An empty Engine disables the stage.
type Transcode struct {
	Engine           string `toml:"engine"`
	FFmpegPath       string `toml:"ffmpeg_path"`
	Container        string `toml:"container"`
	VideoCodec       string `toml:"video_codec"`
	VideoQuality     string `toml:"video_quality"`
	AudioCodec       string `toml:"audio_codec"`
	AudioQuality     string `toml:"audio_quality"`
	CompressionSpeed string `toml:"compression_speed"`
	Destination      string `toml:"destination"`
	Replace          bool   `toml:"replace"`
	Timeout          int    `toml:"timeout"`
}

// Watch configures the directory watcher.
type Watch struct {
	SettleSeconds int `toml:"settle_seconds"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	TextfilePath string `toml:"textfile_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dvrflow.
//
// Configuration sections by subsystem:
//   - Paths: destination, skip and state directories
//   - Device: DVR hostname, media access key and download pacing
//   - TVDB: episode metadata credentials
//   - Decrypt, Comskip, Transcode: per-stage tool settings
//   - Watch: directory watcher settle time
//   - Metrics: Prometheus textfile output
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Device    Device    `toml:"device"`
	TVDB      TVDB      `toml:"tvdb"`
	Decrypt   Decrypt   `toml:"decrypt"`
	Comskip   Comskip   `toml:"comskip"`
	Transcode Transcode `toml:"transcode"`
	Watch     Watch     `toml:"watch"`
	Metrics   Metrics   `toml:"metrics"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dvrflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// HistoryPath returns the SQLite ledger location under the state directory.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the run lock location under the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "dvrflow.lock")
}

// ReportPath returns the location of the most recent batch report.
func (c *Config) ReportPath() string {
	return filepath.Join(c.Paths.StateDir, "last_report.json")
}

// DownloadPause returns the minimum interval between device downloads.
func (c *Config) DownloadPause() time.Duration {
	return time.Duration(c.Device.DownloadPauseSeconds) * time.Second
}

// DecryptEnabled reports whether the decoder is configured.
func (c *Config) DecryptEnabled() bool {
	return strings.TrimSpace(c.Decrypt.TivoDecoderPath) != ""
}

// DetectEnabled reports whether commercial detection is configured.
func (c *Config) DetectEnabled() bool {
	return strings.TrimSpace(c.Comskip.Path) != ""
}

// TranscodeEnabled reports whether a transcode engine is configured.
func (c *Config) TranscodeEnabled() bool {
	return c.Transcode.Engine != ""
}

// TVDBCredentialsSet reports whether every TVDB credential is present.
func (c *Config) TVDBCredentialsSet() bool {
	return c.TVDB.APIKey != "" && c.TVDB.UserKey != "" && c.TVDB.Username != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration file to the specified location.
// An existing file is never overwritten.
func CreateSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
