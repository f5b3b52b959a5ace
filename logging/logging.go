// Package logging builds the structured loggers used across the server.
//
// Every component receives a log15.Logger and derives its own child with
// component specific context, e.g. logger.New("component", "writer").
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/inconshreveable/log15/v3"
)

// Options controls how New builds a logger
type Options struct {
	// Format is "logfmt" (default), "json" or "terminal"
	Format string
	Debug  bool
	Output io.Writer
}

// New creates a root logger writing to opts.Output (stderr by default).
// Stdout is left alone so the MCP stdio transport keeps a clean channel.
func New(opts Options, ctx ...interface{}) log15.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	lvl := log15.LvlInfo
	if opts.Debug {
		lvl = log15.LvlDebug
	}

	logger := log15.New(ctx...)
	logger.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(out, formatFor(opts.Format))))
	return logger
}

// Discard returns a logger that drops every record
func Discard() log15.Logger {
	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())
	return logger
}

func formatFor(name string) log15.Format {
	switch strings.ToLower(name) {
	case "json":
		return log15.JsonFormat()
	case "terminal", "term":
		return log15.TerminalFormat()
	default:
		return log15.LogfmtFormat()
	}
}
