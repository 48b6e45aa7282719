// Package obslog provides the package-level structured logger used
// throughout the protocol core and CLI. It follows the same
// configurable-global-zerolog-logger shape used elsewhere in the
// retrieval pack, trimmed to what a two-peer CLI tool needs: level
// control, console/JSON output, and field-carrying log calls for
// protocol events (state transitions, received messages, aborts).
package obslog

import (
	"cmp"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	TimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

var (
	logger zerolog.Logger
	mu     sync.RWMutex
)

func init() {
	Init(cmp.Or(os.Getenv("MENTALPOKER_LOG_LEVEL"), LevelInfo), "stderr")
}

// Init (re)configures the global logger. output is "stdout", "stderr",
// or a file path; a ".json" suffix switches to structured JSON lines
// instead of the human-readable console writer.
func Init(level, output string) {
	var out *os.File
	switch output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			panic(fmt.Sprintf("obslog: cannot open log output %q: %v", output, err))
		}
		out = f
	}

	var l zerolog.Logger
	if strings.HasSuffix(output, ".json") {
		l = zerolog.New(out).With().Timestamp().Logger()
	} else {
		var writer zerolog.ConsoleWriter
		writer.Out = out
		writer.TimeFormat = TimeFormat
		l = zerolog.New(writer).With().Timestamp().Logger()
	}

	switch level {
	case LevelDebug:
		l = l.Level(zerolog.DebugLevel)
	case LevelInfo:
		l = l.Level(zerolog.InfoLevel)
	case LevelWarn:
		l = l.Level(zerolog.WarnLevel)
	case LevelError:
		l = l.Level(zerolog.ErrorLevel)
	default:
		panic(fmt.Sprintf("obslog: invalid log level %q", level))
	}

	mu.Lock()
	logger = l
	mu.Unlock()
}

func get() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Logger returns the configured zerolog.Logger, for callers that want
// to attach their own fields via With().
func Logger() zerolog.Logger {
	return get()
}

func Debugf(template string, args ...any) { get().Debug().Msgf(template, args...) }
func Infof(template string, args ...any)  { get().Info().Msgf(template, args...) }
func Warnf(template string, args ...any)  { get().Warn().Msgf(template, args...) }
func Errorf(template string, args ...any) { get().Error().Msgf(template, args...) }

// Event logs a structured protocol event: a state-machine transition, a
// received message, or an abort reason, as key-value pairs alongside a
// short message.
func Event(msg string, fields map[string]any) {
	get().Info().Fields(fields).Msg(msg)
}

// ErrorEvent logs a fatal protocol error (spec §7's ABORT-triggering
// kinds) with its cause attached.
func ErrorEvent(msg string, err error, fields map[string]any) {
	get().Error().Err(err).Fields(fields).Msg(msg)
}
