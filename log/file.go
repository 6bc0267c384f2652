package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/oddbit-project/walletguard/utils"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ErrMissingFilePath = utils.Error("log file path is required when file output is enabled")
)

var (
	fileWriters   []io.Closer
	fileWritersMu sync.Mutex
)

// EnableFileOutput enables file logging at the given path
func EnableFileOutput(cfg *LogConfig, path string) *LogConfig {
	cfg.OutputToFile = true
	cfg.FilePath = path
	return cfg
}

// SetFileFormat sets the format used for file output ("json" or "console")
func SetFileFormat(cfg *LogConfig, format string) *LogConfig {
	cfg.FileFormat = format
	return cfg
}

// DisableFileAppend truncates the log file when it is opened
func DisableFileAppend(cfg *LogConfig) *LogConfig {
	cfg.FileAppend = false
	return cfg
}

func openFileWriter(cfg *LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, err
	}
	if !cfg.FileAppend {
		if err := os.Truncate(cfg.FilePath, 0); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMb,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	fileWritersMu.Lock()
	fileWriters = append(fileWriters, rotator)
	fileWritersMu.Unlock()

	if cfg.FileFormat == FormatConsole {
		return zerolog.ConsoleWriter{Out: rotator, NoColor: true, TimeFormat: LogTimestampFormat}, nil
	}
	return rotator, nil
}

// CloseLogFiles closes all open log files
func CloseLogFiles() {
	fileWritersMu.Lock()
	defer fileWritersMu.Unlock()
	for _, w := range fileWriters {
		_ = w.Close()
	}
	fileWriters = nil
}
