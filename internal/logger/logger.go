package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents the logging level.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

var levelColors = map[Level]string{
	DEBUG: "\033[36m", // Cyan
	INFO:  "\033[32m", // Green
	WARN:  "\033[33m", // Yellow
	ERROR: "\033[31m", // Red
	FATAL: "\033[35m", // Magenta
}

const colorReset = "\033[0m"

// Logger writes levelled messages to an io.Writer.
type Logger struct {
	mu          sync.Mutex
	level       Level
	output      io.Writer
	colorEnable bool
	prefix      string
	exit        func(int)
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a standalone logger writing to w at the given level.
// Colors are disabled; use SetColorEnable to turn them on.
func New(w io.Writer, levelStr string) *Logger {
	return &Logger{
		level:  ParseLevel(levelStr),
		output: w,
		exit:   os.Exit,
	}
}

// Init initializes the default logger with the specified level.
func Init(levelStr string) {
	once.Do(func() {
		defaultLogger = &Logger{
			level:       ParseLevel(levelStr),
			output:      os.Stderr,
			colorEnable: true,
			exit:        os.Exit,
		}
	})
}

// Default returns the default logger, initializing it at INFO if needed.
func Default() *Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

// SetLevel sets the logging level for the default logger.
func SetLevel(levelStr string) {
	Default().SetLevel(levelStr)
}

// SetOutput sets the output destination for the default logger.
func SetOutput(w io.Writer) {
	Default().SetOutput(w)
}

// SetColorEnable enables or disables color output.
func SetColorEnable(enable bool) {
	Default().SetColorEnable(enable)
}

// SetLevel changes the minimum level l writes.
func (l *Logger) SetLevel(levelStr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = ParseLevel(levelStr)
}

// SetOutput changes the writer l writes to.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetColorEnable toggles ANSI colors.
func (l *Logger) SetColorEnable(enable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colorEnable = enable
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

// ParseLevel converts a string to a Level. Unknown strings map to INFO.
func ParseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// log writes a log message if the level is sufficient.
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	message := fmt.Sprintf(format, args...)
	levelName := levelNames[level]

	var output string
	if l.colorEnable {
		color := levelColors[level]
		output = fmt.Sprintf("%s[%s]%s %s", color, levelName, colorReset, message)
	} else {
		output = fmt.Sprintf("[%s] %s", levelName, message)
	}

	log.New(l.output, l.prefix, log.LstdFlags).Println(output)

	if level == FATAL && l.exit != nil {
		l.exit(1)
	}
}

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Infof logs an info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warnf logs a warning message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Fatalf logs a fatal message and exits the program.
func (l *Logger) Fatalf(format string, args ...interface{}) { l.log(FATAL, format, args...) }

// Debug logs a debug message.
func Debug(format string, args ...interface{}) {
	Default().log(DEBUG, format, args...)
}

// Debugf is an alias for Debug.
func Debugf(format string, args ...interface{}) {
	Debug(format, args...)
}

// Info logs an info message.
func Info(format string, args ...interface{}) {
	Default().log(INFO, format, args...)
}

// Infof is an alias for Info.
func Infof(format string, args ...interface{}) {
	Info(format, args...)
}

// Warn logs a warning message.
func Warn(format string, args ...interface{}) {
	Default().log(WARN, format, args...)
}

// Warnf is an alias for Warn.
func Warnf(format string, args ...interface{}) {
	Warn(format, args...)
}

// Error logs an error message.
func Error(format string, args ...interface{}) {
	Default().log(ERROR, format, args...)
}

// Errorf is an alias for Error.
func Errorf(format string, args ...interface{}) {
	Error(format, args...)
}

// Fatal logs a fatal message and exits the program.
func Fatal(format string, args ...interface{}) {
	Default().log(FATAL, format, args...)
}

// Fatalf is an alias for Fatal.
func Fatalf(format string, args ...interface{}) {
	Fatal(format, args...)
}
