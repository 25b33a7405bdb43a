package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options configures a logging context.
type Options struct {
	Path   string    // log file, truncated on open; ignored if Output is set
	Output io.Writer // explicit destination (tests, TUI panes)
	Level  string    // logrus level name, default "debug"
}

// Context owns the log backend and the per-category loggers handed out
// from it. Create one at startup, pass it down, Close it on exit.
type Context struct {
	mu       sync.Mutex
	base     *logrus.Logger
	file     *os.File
	loggers  map[string]*Logger
	counters map[string]int
	enabled  bool
}

// Logger writes messages tagged with one category.
// A nil *Logger is valid and drops everything.
type Logger struct {
	ctx   *Context
	name  string
	entry *logrus.Entry
}

// New opens the backend described by opts.
func New(opts Options) (*Context, error) {
	base := logrus.New()
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   true,
	})

	level := logrus.DebugLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lvl
	}
	base.SetLevel(level)

	c := &Context{
		base:     base,
		loggers:  make(map[string]*Logger),
		counters: make(map[string]int),
		enabled:  true,
	}

	switch {
	case opts.Output != nil:
		base.SetOutput(opts.Output)
	case opts.Path != "":
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, err
		}
		c.file = f
		base.SetOutput(f)
	default:
		base.SetOutput(io.Discard)
	}

	c.Logger("debug").Log("=== Debug logging started ===")
	return c, nil
}

// Discard returns a context that drops every message.
func Discard() *Context {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Context{
		base:     base,
		loggers:  make(map[string]*Logger),
		counters: make(map[string]int),
	}
}

// Close flushes and closes the backing file, if any. Loggers obtained
// from c become no-ops, including calls already past their enabled check.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false
	// waits out any write holding logrus' own lock
	c.base.SetOutput(io.Discard)
	if c.file != nil {
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}

// Logger returns the logger for a category, creating it on first use.
func (c *Context) Logger(name string) *Logger {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.loggers[name]; ok {
		return l
	}
	l := &Logger{
		ctx:   c,
		name:  name,
		entry: c.base.WithField("cat", name),
	}
	c.loggers[name] = l
	return l
}

func (l *Logger) active() bool {
	if l == nil {
		return false
	}
	l.ctx.mu.Lock()
	defer l.ctx.mu.Unlock()
	return l.ctx.enabled
}

// Log writes a debug-level message.
func (l *Logger) Log(format string, args ...any) {
	if !l.active() {
		return
	}
	l.entry.Debugf(format, args...)
	l.ctx.sync()
}

// Info writes an info-level message.
func (l *Logger) Info(format string, args ...any) {
	if !l.active() {
		return
	}
	l.entry.Infof(format, args...)
	l.ctx.sync()
}

// Warn writes a warning.
func (l *Logger) Warn(format string, args ...any) {
	if !l.active() {
		return
	}
	l.entry.Warnf(format, args...)
	l.ctx.sync()
}

// Error writes an error with err attached.
func (l *Logger) Error(err error, format string, args ...any) {
	if !l.active() {
		return
	}
	l.entry.WithError(err).Errorf(format, args...)
	l.ctx.sync()
}

// LogEvery logs only every n-th call with the same format (use for
// high-frequency events).
func (l *Logger) LogEvery(n int, format string, args ...any) {
	if l == nil || n <= 0 {
		return
	}
	l.ctx.mu.Lock()
	key := l.name + format
	l.ctx.counters[key]++
	count := l.ctx.counters[key]
	l.ctx.mu.Unlock()

	if count%n == 0 {
		l.Log(format+" (every %d, count=%d)", append(args, n, count)...)
	}
}

// sync flushes the file so logs survive a crash.
func (c *Context) sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		c.file.Sync()
	}
}
