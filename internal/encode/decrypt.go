package encode

import (
	"time"

	"dvrflow/internal/config"
	"dvrflow/internal/stagerun"
)

// DecryptInvocation builds the TivoDecoder run that writes dst from src.
func DecryptInvocation(cfg config.Decrypt, mak, src, dst string) stagerun.Invocation {
	return stagerun.Invocation{
		Tool:           "tivodecoder",
		Binary:         cfg.JavaBinary,
		Args:           []string{"-jar", cfg.TivoDecoderPath, "-i", src, "-o", dst, "-m", mak},
		Timeout:        time.Duration(cfg.Timeout) * time.Second,
		ExpectedOutput: dst,
		RequiredFiles:  []string{cfg.TivoDecoderPath, src},
	}
}
