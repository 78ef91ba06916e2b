package log

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

const (
	tokenVisibleSuffix = 4
	tokenMask          = "****"
)

type params struct {
	verbose bool
	json    bool
	attrs   []slog.Attr
	writer  io.Writer
}

type Option func(params *params)

// WithVerbose enables verbose logging (sets log level to Debug).
func WithVerbose(verbose bool) Option {
	return func(params *params) {
		params.verbose = verbose
	}
}

// WithJSONHandler formats log records as JSON.
func WithJSONHandler() Option {
	return func(params *params) {
		params.json = true
	}
}

// WithTextHandler formats log records as logfmt-style text. This is the default.
func WithTextHandler() Option {
	return func(params *params) {
		params.json = false
	}
}

// WithAttrs adds attributes to every log record.
func WithAttrs(attrs ...slog.Attr) Option {
	return func(params *params) {
		params.attrs = append(params.attrs, attrs...)
	}
}

// WithWriter sets the output writer for logs.
// If w is nil, records are discarded.
func WithWriter(w io.Writer) Option {
	return func(params *params) {
		params.writer = w
	}
}

// New creates a new slog.Logger.
// By default, logs are formatted as text, discarded, and use Info level.
//
// Example:
//
//	logger := log.New(
//	    log.WithWriter(os.Stderr),
//	    log.WithJSONHandler(),
//	    log.WithVerbose(true),
//	    log.WithAttrs(slog.String("build.version", "v1.2.0")),
//	)
func New(opts ...Option) *slog.Logger {
	var params params
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(&params)
	}

	if params.writer == nil {
		return slog.New(slog.DiscardHandler)
	}

	level := slog.LevelInfo
	if params.verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: ReplaceSourceAttr,
	}

	var handler slog.Handler
	if params.json {
		handler = slog.NewJSONHandler(params.writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(params.writer, handlerOpts)
	}

	return slog.New(handler.WithAttrs(params.attrs))
}

// ReplaceSourceAttr shortens the source attribute to "file.go:line".
func ReplaceSourceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}

	source, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}

	return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line))
}

// Token returns an attribute holding a masked access token.
// Only the last four characters are kept, e.g. "access-sandbox-1234abcd" becomes "****abcd".
func Token(key string, token string) slog.Attr {
	return slog.String(key, MaskToken(token))
}

func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= tokenVisibleSuffix {
		return tokenMask
	}

	return tokenMask + token[len(token)-tokenVisibleSuffix:]
}
