package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger, creating a console-only logger
// if InitLogger has not run yet.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter())
	}
	return globalLogger
}

// InitLogger builds the application logger from LoggingConfig and
// installs it as the global logger.
func InitLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := arbor.NewLogger()

	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			path, err := logFilePath(config.Logging.Directory)
			if err != nil {
				fmt.Printf("Warning: file logging disabled: %v\n", err)
				continue
			}
			logger = logger.WithFileWriter(fileWriter(path))
		case "stdout", "console":
			logger = logger.WithConsoleWriter(consoleWriter())
		}
	}

	logger = logger.WithLevelFromString(config.Logging.Level)

	globalLogger = logger
	return logger
}

// logFilePath resolves the log file location, creating the directory.
// An empty dir places logs/ next to the executable.
func logFilePath(dir string) (string, error) {
	if dir == "" {
		execPath, err := os.Executable()
		if err != nil {
			return "", fmt.Errorf("resolve executable path: %w", err)
		}
		dir = filepath.Join(filepath.Dir(execPath), "logs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "speculor.log"), nil
}

func consoleWriter() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		OutputType: models.OutputFormatLogfmt,
	}
}

func fileWriter(path string) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   path,
		TimeFormat: "15:04:05",
		MaxSize:    100 * 1024 * 1024,
		MaxBackups: 3,
		OutputType: models.OutputFormatLogfmt,
	}
}
