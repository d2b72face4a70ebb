package logging

import (
	"io"
	"log/slog"
)

// TeeLoggerForTest returns a JSON logger writing to w at debug level.
func TeeLoggerForTest(w io.Writer) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	return slog.New(TeeHandler(newJSONHandler(w, lvl, false)))
}
