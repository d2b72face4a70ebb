package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dvrflow/internal/config"
)

func TestLoadDefaultConfigUsesEnvFallbacksAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("TIVO_MAK", "1234567890")
	t.Setenv("TVDB_API_KEY", "api")
	t.Setenv("TVDB_USER_KEY", "user")
	t.Setenv("TVDB_USERNAME", "name")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "state", "dvrflow")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Device.MAK != "1234567890" {
		t.Fatalf("expected MAK from env, got %q", cfg.Device.MAK)
	}
	if !cfg.TVDBCredentialsSet() {
		t.Fatalf("expected TVDB credentials from env, got %+v", cfg.TVDB)
	}
	if cfg.TranscodeEnabled() {
		t.Fatal("expected transcoding disabled without a config file")
	}
	if cfg.DetectEnabled() {
		t.Fatal("expected comskip disabled by default")
	}
	if !cfg.DecryptEnabled() {
		t.Fatal("expected decoder path default")
	}
	if cfg.HistoryPath() != filepath.Join(wantState, "history.db") {
		t.Fatalf("unexpected history path %q", cfg.HistoryPath())
	}
}

func TestLoadCustomConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "dvrflow.toml")
	body := `
[paths]
dest_dir = "` + filepath.Join(dir, "dest") + `"

[transcode]
engine = "DRAPTO"
container = ".mp4"

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q %v", resolved, exists)
	}
	if cfg.Transcode.Engine != config.EngineDrapto {
		t.Fatalf("expected drapto engine, got %q", cfg.Transcode.Engine)
	}
	if cfg.Transcode.Container != "mkv" {
		t.Fatalf("drapto should force mkv container, got %q", cfg.Transcode.Container)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[paths]\nlibrary_dir = \"/x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"engine", func(c *config.Config) { c.Transcode.Engine = "handbrake" }, "transcode.engine"},
		{"timeout", func(c *config.Config) { c.Decrypt.Timeout = 0 }, "decrypt.timeout"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"pause", func(c *config.Config) { c.Device.DownloadPauseSeconds = -1 }, "download_pause_seconds"},
		{"settle", func(c *config.Config) { c.Watch.SettleSeconds = 0 }, "settle_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyOverridesRoutesDestinationByTarget(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	base := config.Default()
	replace := true
	ignore := true
	overrides := config.Overrides{
		Hostname:          "tivo.lan",
		MAK:               "999",
		Destination:       "/out",
		Replace:           &replace,
		TVDBIgnoreFailure: &ignore,
		VideoCodec:        "libx265",
		ComskipPath:       "comskip",
	}

	decrypt, err := base.Apply(overrides, config.TargetDecrypt)
	if err != nil {
		t.Fatalf("Apply decrypt: %v", err)
	}
	if decrypt.Decrypt.Destination != "/out" || !decrypt.Decrypt.Replace {
		t.Fatalf("expected decrypt destination/replace, got %+v", decrypt.Decrypt)
	}
	if decrypt.Transcode.Destination != "" || decrypt.Transcode.Replace {
		t.Fatalf("transcode settings should be untouched, got %+v", decrypt.Transcode)
	}

	transcode, err := base.Apply(overrides, config.TargetTranscode)
	if err != nil {
		t.Fatalf("Apply transcode: %v", err)
	}
	if transcode.Transcode.Destination != "/out" || !transcode.Transcode.Replace {
		t.Fatalf("expected transcode destination/replace, got %+v", transcode.Transcode)
	}
	if transcode.Transcode.Engine != config.EngineFFmpeg {
		t.Fatalf("codec override should enable ffmpeg, got %q", transcode.Transcode.Engine)
	}
	if transcode.Device.Hostname != "tivo.lan" || transcode.Device.MAK != "999" {
		t.Fatalf("unexpected device settings %+v", transcode.Device)
	}
	if !transcode.TVDB.IgnoreFailure || !transcode.DetectEnabled() {
		t.Fatalf("expected ignore failure and comskip enabled")
	}
	if base.Device.Hostname != "" {
		t.Fatal("Apply must not mutate the receiver")
	}
}

func TestSampleConfigParsesAndValidates(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config should decode: %v", err)
	}
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
	if cfg.Transcode.Engine != config.EngineFFmpeg {
		t.Fatalf("sample should enable ffmpeg, got %q", cfg.Transcode.Engine)
	}
}

func TestCreateSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[transcode]") {
		t.Fatalf("unexpected sample contents: %s", data)
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected second CreateSample to fail")
	}
}
