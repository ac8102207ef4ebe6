package testenv

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/surrealdb/entitygraph/pkg/logger"
)

// TestLogger is a logger.Logger that prints message index (starting from 0),
// level and message with its key/value pairs, without the timestamp.
// This allows test log output to be deterministic.
type TestLogger struct {
	mu          sync.Mutex
	w           io.Writer
	index       int
	lines       []string
	ignoreDebug bool
}

var _ logger.Logger = (*TestLogger)(nil)

// TestLoggerOption is a function that configures a TestLogger
type TestLoggerOption func(*TestLogger)

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) TestLoggerOption {
	return func(l *TestLogger) {
		l.w = w
	}
}

// WithIgnoreDebug configures the logger to ignore DEBUG level messages
func WithIgnoreDebug() TestLoggerOption {
	return func(l *TestLogger) {
		l.ignoreDebug = true
	}
}

func NewTestLogger(opts ...TestLoggerOption) *TestLogger {
	l := &TestLogger{w: os.Stdout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *TestLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }
func (l *TestLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *TestLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }

func (l *TestLogger) Debug(msg string, args ...any) {
	if l.ignoreDebug {
		return
	}
	l.log("DEBUG", msg, args)
}

func (l *TestLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := level + ": " + msg
	if attrs := argsToString(args); attrs != "" {
		line += " " + attrs
	}
	l.lines = append(l.lines, line)
	if l.w != nil {
		fmt.Fprintf(l.w, "[%d] %s\n", l.index, line)
	}
	l.index++
}

// Lines returns every logged line, without the index.
func (l *TestLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether a logged line starts with prefix, such as
// "WARN: dropping field".
func (l *TestLogger) Contains(prefix string) bool {
	for _, line := range l.Lines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func argsToString(args []any) string {
	var sb strings.Builder
	for i := 0; i < len(args); i += 2 {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		if i+1 == len(args) {
			fmt.Fprintf(&sb, "!BADKEY=%v", args[i])
			break
		}
		fmt.Fprintf(&sb, "%v=%v", args[i], args[i+1])
	}
	return sb.String()
}
