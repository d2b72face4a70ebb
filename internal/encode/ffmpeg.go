package encode

import (
	"fmt"
	"time"

	"dvrflow/internal/config"
	"dvrflow/internal/stagerun"
)

// TranscodeInput is either a plain source file or an ffconcat list built from
// a cut list.
type TranscodeInput struct {
	Path   string
	Concat bool
}

// FFmpegInvocation builds the ffmpeg run that encodes input into dst using
// the codec, quality and speed settings in cfg.
func FFmpegInvocation(cfg config.Transcode, input TranscodeInput, dst string) stagerun.Invocation {
	args := []string{"-hide_banner", "-nostdin", "-nostats", "-loglevel", "error", "-y"}
	if input.Concat {
		args = append(args, "-f", "concat", "-safe", "0")
	}
	args = append(args, "-i", input.Path, "-map", "0:v:0", "-map", "0:a?")
	args = append(args, "-c:v", cfg.VideoCodec)
	if cfg.VideoQuality != "" {
		args = append(args, "-crf", cfg.VideoQuality)
	}
	if cfg.CompressionSpeed != "" {
		args = append(args, "-preset", cfg.CompressionSpeed)
	}
	args = append(args, "-c:a", cfg.AudioCodec)
	if cfg.AudioQuality != "" {
		args = append(args, "-b:a", cfg.AudioQuality)
	}
	if cfg.Container == "mp4" || cfg.Container == "m4v" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, dst)

	required := []string{input.Path}
	return stagerun.Invocation{
		Tool:           fmt.Sprintf("ffmpeg/%s", cfg.VideoCodec),
		Binary:         cfg.FFmpegPath,
		Args:           args,
		Timeout:        time.Duration(cfg.Timeout) * time.Second,
		ExpectedOutput: dst,
		RequiredFiles:  required,
	}
}
