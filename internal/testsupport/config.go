package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dvrflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a per-test temp directory. Every
// stage is disabled until an option turns it on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Paths.DestDir = filepath.Join(base, "recordings")
	cfgVal.Device.DownloadPauseSeconds = 0
	cfgVal.Decrypt.TivoDecoderPath = ""
	cfgVal.Transcode.Engine = ""

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithDecoder points the decrypt stage at stub java and jar files.
func WithDecoder(script string) ConfigOption {
	return func(b *configBuilder) {
		jar := filepath.Join(b.baseDir, "bin", "TivoDecoder.jar")
		WriteFile(b.t, jar, 16)
		b.cfg.Decrypt.TivoDecoderPath = jar
		b.cfg.Decrypt.JavaBinary = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "java", script)
		b.cfg.Device.MAK = "0123456789"
	}
}

// WithComskip enables commercial detection through a stub binary.
func WithComskip(script string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Comskip.Path = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "comskip", script)
	}
}

// WithFFmpeg enables the ffmpeg engine through a stub binary.
func WithFFmpeg(script string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcode.Engine = config.EngineFFmpeg
		b.cfg.Transcode.FFmpegPath = WriteScript(b.t, filepath.Join(b.baseDir, "bin"), "ffmpeg", script)
	}
}

// WithStubbedBinaries writes no-op executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"java", "comskip", "ffmpeg"}
		}
		binDir := filepath.Join(b.baseDir, "path-bin")
		for _, name := range names {
			WriteScript(b.t, binDir, name, "exit 0\n")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
