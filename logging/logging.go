package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const appDirName = "flm-companion"

var (
	DebugLogger zerolog.Logger
	InfoLogger  zerolog.Logger
	WarnLogger  zerolog.Logger
	ErrorLogger zerolog.Logger
)

// DefaultLogPath returns the log file location used when none is configured.
func DefaultLogPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, appDirName, appDirName+".log"), nil
}

func Init(logLevel string, logFilePath string) error {
	if logFilePath == "" {
		p, err := DefaultLogPath()
		if err != nil {
			return err
		}
		logFilePath = p
	}

	// Expand the ~ to the user's home directory
	if strings.HasPrefix(logFilePath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		logFilePath = filepath.Join(homeDir, logFilePath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	rotate := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    2,  // megabytes
		MaxBackups: 3,  // number of files
		MaxAge:     60, // days
		Compress:   false,
	}

	// lumberjack opens lazily; touch the file so a bad path fails here and not on first write
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	_ = f.Close()

	fileWriter := zerolog.MultiLevelWriter(rotate)

	log.Logger = zerolog.New(fileWriter).With().Timestamp().Logger()
	DebugLogger = log.Logger.Level(zerolog.DebugLevel)
	InfoLogger = log.Logger.Level(zerolog.InfoLevel)
	WarnLogger = log.Logger.Level(zerolog.WarnLevel)
	ErrorLogger = log.Logger.Level(zerolog.ErrorLevel)

	if logLevel == "debug" {
		DebugLogger.Debug().Msgf("Logging to: %s", logFilePath)
	}

	return nil
}
