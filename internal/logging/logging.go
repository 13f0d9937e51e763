// Package logging builds the slog handler selected by log.format.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/golang-cz/devslog"
	"github.com/phsym/console-slog"
	slogformatter "github.com/samber/slog-formatter"

	"github.com/dantte-lp/goprotos/internal/netio"
	"github.com/dantte-lp/goprotos/internal/sipmsg"
)

// ErrUnknownFormat indicates an unsupported log format.
var ErrUnknownFormat = errors.New("unknown log format")

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
	FormatDev     = "dev"
)

var newFormatter = slogformatter.NewFormatterHandler(
	slogformatter.ErrorFormatter("error"),
	slogformatter.FormatByType(func(ap netip.AddrPort) slog.Value {
		return slog.StringValue(ap.String())
	}),
	slogformatter.FormatByType(func(d netio.Datagram) slog.Value {
		return slog.GroupValue(
			slog.String("src", d.Src.String()),
			slog.String("dst", d.Dst.String()),
			slog.Int("size", len(d.Data)),
			slog.String("first_line", sipmsg.FirstLine(string(d.Data))),
		)
	}),
)

// New returns a logger writing to w in format. level may be a
// *slog.LevelVar to allow changing it at run time.
func New(w io.Writer, format string, level slog.Leveler) (*slog.Logger, error) {
	var h slog.Handler

	switch format {
	case FormatJSON, "":
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatText:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case FormatConsole:
		h = console.NewHandler(w, &console.HandlerOptions{
			Level:      level,
			TimeFormat: time.RFC3339Nano,
		})
	case FormatDev:
		h = devslog.NewHandler(w, &devslog.Options{
			HandlerOptions: &slog.HandlerOptions{
				AddSource: true,
				Level:     level,
			},
			SortKeys:   true,
			TimeFormat: time.RFC3339Nano,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	return slog.New(newFormatter(h)), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
