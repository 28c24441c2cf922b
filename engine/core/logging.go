package core

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// LogLevel is the severity attached to every report.
type LogLevel = log.Level

const (
	DebugLevel = log.DebugLevel
	InfoLevel  = log.InfoLevel
	WarnLevel  = log.WarnLevel
	ErrorLevel = log.ErrorLevel
	FatalLevel = log.FatalLevel
)

// DebugMessageCallback receives every warning and error report after it has
// been formatted, before it is written to the log output.
type DebugMessageCallback func(level LogLevel, msg string)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

var (
	callbackMu    sync.RWMutex
	debugCallback DebugMessageCallback
)

func getLogger() *logger {
	once.Do(
		func() {
			l := log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				TimeFormat:      time.RFC3339,
				Prefix:          "Binding 🔗 ",
				CallerOffset:    1,
			})
			l.SetLevel(log.DebugLevel)
			singleton = &logger{l}
		})
	return singleton
}

// ConfigureLogging applies the logging section of the engine configuration.
func ConfigureLogging(cfg LoggingConfig) error {
	l := getLogger()
	if cfg.Level != "" {
		lvl, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		l.SetLevel(lvl)
	}
	if cfg.Prefix != "" {
		l.SetPrefix(cfg.Prefix)
	}
	l.SetReportCaller(cfg.ReportCaller)
	l.SetReportTimestamp(cfg.ReportTimestamp)
	return nil
}

// SetLogOutput redirects the engine log.
func SetLogOutput(w io.Writer) {
	getLogger().SetOutput(w)
}

// SetLogLevel changes the minimum level written to the log output. Callbacks
// are invoked regardless of the level.
func SetLogLevel(level LogLevel) {
	getLogger().SetLevel(level)
}

// SetDebugMessageCallback installs cb and returns the previously installed
// callback so that callers can restore it.
func SetDebugMessageCallback(cb DebugMessageCallback) DebugMessageCallback {
	callbackMu.Lock()
	defer callbackMu.Unlock()
	prev := debugCallback
	debugCallback = cb
	return prev
}

func notify(level LogLevel, msg string) {
	callbackMu.RLock()
	cb := debugCallback
	callbackMu.RUnlock()
	if cb != nil {
		cb(level, msg)
	}
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debug(fmt.Sprintf(msg, args...))
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Info(fmt.Sprintf(msg, args...))
}

func LogWarn(msg string, args ...interface{}) {
	m := fmt.Sprintf(msg, args...)
	notify(WarnLevel, m)
	getLogger().Warn(m)
}

func LogError(msg string, args ...interface{}) {
	m := fmt.Sprintf(msg, args...)
	notify(ErrorLevel, m)
	getLogger().Error(m)
}

func LogFatal(msg string, args ...interface{}) {
	m := fmt.Sprintf(msg, args...)
	notify(FatalLevel, m)
	getLogger().Fatal(m)
}
