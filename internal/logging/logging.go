// Package logging configures the diagnostic logger. Logs go to stderr so that
// command envelopes on stdout stay machine readable.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	TimeFormat   = "2006-01-02 15:04:05"
	ComponentKey = "component"
	rootName     = "fusion"
)

var (
	mu     sync.RWMutex
	logger = New(os.Stderr, "info")
)

// Initialize replaces the process logger.
func Initialize(w io.Writer, level string) {
	l := New(w, level)
	mu.Lock()
	logger = l
	mu.Unlock()
}

// New builds a logger that writes `time - fusion.component - LEVEL - message k=v` lines.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(ConsoleWriter(w)).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ConsoleWriter renders events without color. The component field becomes the
// logger name part; remaining fields follow the message sorted by key.
func ConsoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           w,
		NoColor:       true,
		PartsOrder:    []string{zerolog.TimestampFieldName, ComponentKey, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{ComponentKey},
		FormatPrepare: func(evt map[string]any) error {
			name := rootName
			if c, ok := evt[ComponentKey].(string); ok && c != "" {
				name = rootName + "." + c
			}
			evt[ComponentKey] = name
			return nil
		},
		FormatTimestamp: func(i any) string {
			return formatTime(i) + " -"
		},
		FormatLevel: func(i any) string {
			level, _ := i.(string)
			if level == "" {
				level = zerolog.InfoLevel.String()
			}
			return "- " + strings.ToUpper(level) + " -"
		},
	}
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func Get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// For returns the process logger tagged with a component name.
func For(component string) zerolog.Logger {
	return Get().With().Str(ComponentKey, component).Logger()
}

// Nop is used by SDK callers that do not want diagnostics.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func formatTime(v any) string {
	s, ok := v.(string)
	if !ok {
		return time.Now().Format(TimeFormat)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.Local().Format(TimeFormat)
}
