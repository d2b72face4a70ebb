package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dvrflow/internal/config"
	"dvrflow/internal/deps"
	"dvrflow/internal/services/tvdb"
)

// devicePort is the HTTPS port the DVR serves its NowPlaying feed on.
const devicePort = "443"

// CheckTVDB verifies the TVDB credentials by logging in once.
func CheckTVDB(ctx context.Context, baseURL string, creds tvdb.Credentials) Result {
	const name = "TVDB"

	if !creds.Complete() {
		return Result{Name: name, Detail: "credentials incomplete"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := tvdb.New(tvdb.WithBaseURL(baseURL), tvdb.WithTimeout(10*time.Second))
	if _, err := client.Login(checkCtx, creds); err != nil {
		return Result{Name: name, Detail: summarizeNetError("login", err)}
	}
	return Result{Name: name, Passed: true, Detail: "login ok"}
}

// CheckDevice verifies the DVR accepts connections. It does not
// authenticate, so a wrong media access key is only caught on first use.
func CheckDevice(ctx context.Context, hostname string) Result {
	const name = "DVR"

	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return Result{Name: name, Detail: "hostname missing"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	addr := hostname
	if _, _, err := net.SplitHostPort(hostname); err != nil {
		addr = net.JoinHostPort(hostname, devicePort)
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(checkCtx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError("connect", err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", addr)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external tools the enabled stages need.
// Both the batch commands and the status command use this so the
// requirements list lives in one place. Disabled stages contribute optional
// entries so status output still shows them.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	decrypt := !cfg.DecryptEnabled()
	requirements := []deps.Requirement{
		{
			Name:        "Java",
			Command:     cfg.Decrypt.JavaBinary,
			Description: "Runs TivoDecoder for decrypting",
			Optional:    decrypt,
		},
		{
			Name:        "Comskip",
			Command:     cfg.Comskip.Path,
			Description: "Detects commercials",
			Optional:    !cfg.DetectEnabled(),
		},
	}
	results := deps.CheckBinaries(requirements)

	jar := deps.CheckFile("TivoDecoder", cfg.Decrypt.TivoDecoderPath, "Decoder jar for .TiVo recordings")
	jar.Optional = decrypt
	results = append(results, jar)

	ffmpeg := deps.CheckFFmpeg(ctx, cfg.Transcode.FFmpegPath, "Cut-list concat and transcoding")
	ffmpeg.Optional = !cfg.TranscodeEnabled()
	return append(results, ffmpeg)
}

// MissingRequired returns the names of required dependencies that are
// unavailable.
func MissingRequired(statuses []deps.Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

func summarizeNetError(operation string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return operation + " timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return operation + " timed out"
	}
	return fmt.Sprintf("%s failed (%v)", operation, err)
}
