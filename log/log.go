// Package log provides logging utilities.
//
// The scheduler reports every non-fatal failure through an injected
// [slog.Logger]; this package supplies the default, developer and noop
// loggers plus the process-wide default used as a fallback.
package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"
)

var newHandler = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
)

// Def is a default logger.
var Def = slog.New(newHandler(
	console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339Nano,
	}),
))

// Dev is a developer logger.
var Dev = slog.New(newHandler(
	devslog.NewHandler(os.Stderr, &devslog.Options{
		HandlerOptions: &slog.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		},
		SortKeys:   true,
		TimeFormat: time.RFC3339Nano,
	}),
))

type noopHandler struct{}

func (noopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (noopHandler) Handle(context.Context, slog.Record) error { return nil }

func (h noopHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h noopHandler) WithGroup(string) slog.Handler { return h }

// Noop is a noop logger.
var Noop = slog.New(noopHandler{})

var def atomic.Pointer[slog.Logger]

func init() {
	def.Store(Def)
}

// Default returns the process-wide default logger.
// It is used by components whose options carry no explicit logger.
func Default() *slog.Logger { return def.Load() }

// SetDefault replaces the process-wide default logger.
// A nil logger resets it back to [Def].
func SetDefault(l *slog.Logger) {
	if l == nil {
		l = Def
	}
	def.Store(l)
}

// Wrap decorates an arbitrary [slog.Handler] with the package's formatting
// chain, so injected sinks render errors the same way as the built-ins.
func Wrap(h slog.Handler) *slog.Logger {
	return slog.New(newHandler(h))
}
