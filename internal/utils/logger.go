package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
}

type logger struct {
	level  LogLevel
	format string
	mu     *sync.Mutex
	output io.Writer
	bound  []interface{}
}

func NewLogger(level, format, output string) Logger {
	var writer io.Writer
	switch output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Printf("Failed to open log file %s: %v, falling back to stdout", output, err)
			writer = os.Stdout
		} else {
			writer = file
		}
	}

	return &logger{
		level:  parseLogLevel(level),
		format: format,
		mu:     &sync.Mutex{},
		output: writer,
	}
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

func (l *logger) Debug(msg string, fields ...interface{}) { l.log(DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...interface{})  { l.log(InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...interface{})  { l.log(WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...interface{}) { l.log(ErrorLevel, msg, fields) }

func (l *logger) Fatal(msg string, fields ...interface{}) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *logger) WithField(key string, value interface{}) Logger {
	bound := make([]interface{}, 0, len(l.bound)+2)
	bound = append(bound, l.bound...)
	bound = append(bound, key, value)

	return &logger{
		level:  l.level,
		format: l.format,
		mu:     l.mu,
		output: l.output,
		bound:  bound,
	}
}

func (l *logger) WithError(err error) Logger {
	return l.WithField("error", err.Error())
}

func (l *logger) log(level LogLevel, msg string, fields []interface{}) {
	if level < l.level {
		return
	}

	timestamp := time.Now().UTC()

	all := make([]interface{}, 0, len(l.bound)+len(fields))
	all = append(all, l.bound...)
	all = append(all, fields...)

	var line string
	if l.format == "json" {
		line = l.renderJSON(level, msg, timestamp, all)
	} else {
		line = l.renderText(level, msg, timestamp, all)
	}

	l.mu.Lock()
	fmt.Fprintln(l.output, line)
	l.mu.Unlock()
}

func (l *logger) renderJSON(level LogLevel, msg string, timestamp time.Time, fields []interface{}) string {
	entry := map[string]interface{}{
		"timestamp": timestamp.Format(time.RFC3339Nano),
		"level":     level.String(),
		"message":   msg,
	}

	for i := 0; i+1 < len(fields); i += 2 {
		entry[fmt.Sprintf("%v", fields[i])] = fields[i+1]
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"timestamp":%q,"level":"ERROR","message":"Failed to marshal log entry: %v"}`,
			timestamp.Format(time.RFC3339Nano), err)
	}
	return string(data)
}

func (l *logger) renderText(level LogLevel, msg string, timestamp time.Time, fields []interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", timestamp.Format(time.RFC3339), level.String(), msg)

	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}

	return b.String()
}
