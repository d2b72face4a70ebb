package encode

import (
	"time"

	"dvrflow/internal/config"
	"dvrflow/internal/stagerun"
)

// comskipNoCommercials is the exit code comskip uses when it found nothing
// to cut.
const comskipNoCommercials = 1

// DetectInvocation builds the comskip run over src. Comskip names its cut
// list after the input, so edl must be outDir/<stem of src>.edl.
func DetectInvocation(cfg config.Comskip, src, outDir, edl string) stagerun.Invocation {
	args := make([]string, 0, 3)
	required := []string{src}
	if cfg.INI != "" {
		args = append(args, "--ini="+cfg.INI)
		required = append(required, cfg.INI)
	}
	args = append(args, "--output="+outDir, src)
	return stagerun.Invocation{
		Tool:              "comskip",
		Binary:            cfg.Path,
		Args:              args,
		Timeout:           time.Duration(cfg.Timeout) * time.Second,
		ExpectedOutput:    edl,
		RequiredFiles:     required,
		NoOutputExitCodes: []int{comskipNoCommercials},
	}
}
