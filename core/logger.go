package core

import (
	"github.com/flmcompanion/flmcompanion/logging"
)

// Logger wraps the logging package for the services
type Logger struct {
	level    string
	filePath string
}

// NewLogger initialises file logging and returns a logger using it
func NewLogger(level, filePath string) (*Logger, error) {
	if err := logging.Init(level, filePath); err != nil {
		return nil, err
	}

	return &Logger{
		level:    level,
		filePath: filePath,
	}, nil
}

func (l *Logger) Debug(msg string) {
	logging.DebugLogger.Debug().Msg(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	logging.DebugLogger.Debug().Msgf(format, args...)
}

func (l *Logger) Info(msg string) {
	logging.InfoLogger.Info().Msg(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	logging.InfoLogger.Info().Msgf(format, args...)
}

func (l *Logger) Warn(msg string) {
	logging.WarnLogger.Warn().Msg(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	logging.WarnLogger.Warn().Msgf(format, args...)
}

func (l *Logger) Error(msg string) {
	logging.ErrorLogger.Error().Msg(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	logging.ErrorLogger.Error().Msgf(format, args...)
}

// GetLevel returns the configured log level
func (l *Logger) GetLevel() string {
	return l.level
}

// GetFilePath returns the log file path, empty when the default is used
func (l *Logger) GetFilePath() string {
	return l.filePath
}
