package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// CheckFFmpeg resolves the configured ffmpeg binary and records the version
// banner it reports. An empty command falls back to "ffmpeg" on PATH.
func CheckFFmpeg(ctx context.Context, command, description string) Status {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "ffmpeg"
	}
	status := CheckBinaries([]Requirement{{Name: "FFmpeg", Command: command, Description: description}})[0]
	if !status.Available {
		return status
	}

	versionCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	output, err := exec.CommandContext(versionCtx, status.Command, "-version").Output()
	if err != nil {
		status.Detail = "version unknown"
		return status
	}
	status.Detail = versionLine(string(output))
	return status
}

// versionLine extracts "ffmpeg version X" from the banner's first line.
func versionLine(banner string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(banner), "\n")
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return "version " + fields[2]
	}
	return strings.TrimSpace(line)
}
