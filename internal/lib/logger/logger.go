package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/linemk/bookstore/internal/lib/logger/handlers/slogpretty"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

const serviceName = "bookstore"

// SetupLogger логгер сервиса в stdout
func SetupLogger(env string) *slog.Logger {
	return New(env, os.Stdout)
}

// New локально цветной вывод без служебных полей. В dev и prod JSON, каждая запись
// несёт service и env, dev добавляет файл и строку вызова.
// Неизвестное окружение пишет как prod.
func New(env string, out io.Writer) *slog.Logger {
	if env == EnvLocal {
		return newPretty(out)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: replaceAttr}
	if env == EnvDev {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	return slog.New(slog.NewJSONHandler(out, opts)).With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
}

// replaceAttr время в UTC, чтобы записи разных подов сортировались одинаково
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.TimeValue(a.Value.Time().UTC())
	}
	return a
}

func newPretty(out io.Writer) *slog.Logger {
	color.NoColor = false

	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
	}
	return slog.New(opts.NewPrettyHandler(out))
}
