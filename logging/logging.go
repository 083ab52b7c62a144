// Package logging installs the process wide structured logger and hands out
// named, stateless emitters. Records are JSON, redacted, and tagged with the
// correlation id found in the context they are emitted with.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sirupsen/logrus"
)

// FormatErrorMessage is the message of the record written in place of a
// record that could not be produced.
const FormatErrorMessage = "log_format_error"

// Logger is the emitter handed to the rest of the service. Arguments after
// the message are key value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider resolves named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Options configure a Provider.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// File, when set, receives a copy of every record.
	File string
	// Output replaces stdout. Used by tests.
	Output io.Writer
	Hooks  []logrus.Hook
}

// Provider owns a configured logrus logger.
type Provider struct {
	base    *logrus.Logger
	closers []io.Closer
}

var (
	setupOnce sync.Once
	setupErr  error
	current   atomic.Pointer[Provider]
)

func init() {
	p, _ := NewProvider(Options{})
	current.Store(p)
}

// Setup installs the process wide provider. Only the first call has any
// effect; later calls return the installed provider.
func Setup(opts Options) (*Provider, error) {
	setupOnce.Do(func() {
		p, err := NewProvider(opts)
		if err != nil {
			setupErr = err
			return
		}
		current.Store(p)
	})
	return current.Load(), setupErr
}

// Default returns the installed provider.
func Default() *Provider {
	return current.Load()
}

// GetLogger returns a named logger backed by the installed provider.
func GetLogger(name string) Logger {
	return Default().GetLogger(name)
}

// NewProvider builds a provider that is not installed globally.
func NewProvider(opts Options) (*Provider, error) {
	base := logrus.New()
	base.SetFormatter(&Formatter{})
	base.SetReportCaller(false)

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	base.SetLevel(level)

	p := &Provider{base: base}

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open log file").
				WithMetadata(map[string]any{"file": opts.File})
		}
		p.closers = append(p.closers, f)
		out = io.MultiWriter(out, f)
	}

	base.SetOutput(out)

	for _, hook := range opts.Hooks {
		if hook != nil {
			base.AddHook(hook)
		}
	}

	return p, nil
}

// GetLogger returns a named logger. Loggers hold no state besides their name
// and an optional context.
func (p *Provider) GetLogger(name string) Logger {
	if name == "" {
		name = "root"
	}
	return &entryLogger{name: name, base: p.base}
}

// AddHook registers a logrus hook, e.g. a capturing hook in tests.
func (p *Provider) AddHook(hook logrus.Hook) {
	p.base.AddHook(hook)
}

// Close releases any log file opened by the provider.
func (p *Provider) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func parseLevel(level string) (logrus.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return logrus.InfoLevel, nil
	}
	if level == "warning" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid log level").
			WithMetadata(map[string]any{"level": level})
	}
	return lvl, nil
}

type entryLogger struct {
	name string
	base *logrus.Logger
	ctx  context.Context
}

func (l *entryLogger) Debug(msg string, args ...any) { l.log(logrus.DebugLevel, msg, args) }
func (l *entryLogger) Info(msg string, args ...any)  { l.log(logrus.InfoLevel, msg, args) }
func (l *entryLogger) Warn(msg string, args ...any)  { l.log(logrus.WarnLevel, msg, args) }
func (l *entryLogger) Error(msg string, args ...any) { l.log(logrus.ErrorLevel, msg, args) }

func (l *entryLogger) WithContext(ctx context.Context) Logger {
	return &entryLogger{name: l.name, base: l.base, ctx: ctx}
}

func (l *entryLogger) log(level logrus.Level, msg string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			l.fallback(msg, r)
		}
	}()

	if !l.base.IsLevelEnabled(level) {
		return
	}

	entry := l.base.WithFields(fieldsFromArgs(l.name, args))
	if l.ctx != nil {
		entry = entry.WithContext(l.ctx)
	}
	entry.Log(level, msg)
}

func (l *entryLogger) fallback(msg string, cause any) {
	defer func() { _ = recover() }()
	l.base.WithFields(logrus.Fields{
		"logger":       "logging",
		"error":        fmt.Sprint(cause),
		"original_msg": msg,
	}).Warn(FormatErrorMessage)
}

func fieldsFromArgs(name string, args []any) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = key
			break
		}
		fields[key] = args[i+1]
	}
	fields["logger"] = name
	return fields
}
