package writer

import (
	stdlog "log"
	"strings"

	"github.com/oddbit-project/walletguard/log"
	"github.com/rs/zerolog"
)

// ZerologWriter is an io.Writer that forwards each write as a log entry
type ZerologWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

// NewZerologWriter creates a writer emitting entries at the given level
func NewZerologWriter(logger *log.Logger, level zerolog.Level) *ZerologWriter {
	return &ZerologWriter{
		logger: logger.GetZerolog(),
		level:  level,
	}
}

func (w *ZerologWriter) Write(p []byte) (n int, err error) {
	w.logger.WithLevel(w.level).Msg(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewErrorLog creates a standard library logger suitable for http.Server.ErrorLog
func NewErrorLog(logger *log.Logger) *stdlog.Logger {
	return stdlog.New(NewZerologWriter(logger, zerolog.ErrorLevel), "", 0)
}
