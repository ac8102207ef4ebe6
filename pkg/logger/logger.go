package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the logging surface every component accepts. Args are alternating
// key/value pairs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name ("debug", "info", ...). Unknown names are ignored.
func (build *LogBuild) Level(name string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(name); err == nil && name != "" {
		build.level = lvl
	}
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Handler returns the Logger view of the built zerolog logger.
func (logData *LogData) Handler() Logger {
	return NewZerolog(logData.Logger)
}

// Close closes the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

type ZerologHandler struct {
	logger zerolog.Logger
}

func NewZerolog(l zerolog.Logger) *ZerologHandler {
	return &ZerologHandler{logger: l}
}

func (handler *ZerologHandler) Error(msg string, args ...any) {
	handler.logger.Error().Fields(args).Msg(msg)
}

func (handler *ZerologHandler) Warn(msg string, args ...any) {
	handler.logger.Warn().Fields(args).Msg(msg)
}

func (handler *ZerologHandler) Info(msg string, args ...any) {
	handler.logger.Info().Fields(args).Msg(msg)
}

func (handler *ZerologHandler) Debug(msg string, args ...any) {
	handler.logger.Debug().Fields(args).Msg(msg)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return NewZerolog(zerolog.Nop())
}
