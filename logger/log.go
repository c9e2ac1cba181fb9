package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spirit-labs/docfetch/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the output format and minimum level of the process wide logger.
type Config struct {
	Format string `help:"Format to write log lines in" enum:"console,json" default:"console"`
	Level  string `help:"Lowest log level that will be emitted" enum:"debug,info,warn,error" default:"info"`
}

func (cfg *Config) Configure() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.Level))); err != nil {
		return err
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	switch format {
	case "console", "json":
	default:
		return errors.Errorf("invalid log format %q, must be one of 'console' or 'json'", cfg.Format)
	}
	Initialise(level, format)
	return nil
}

// DebugEnabled is true when the root logger emits debug lines. Callers check it before building expensive debug
// messages.
var DebugEnabled bool

var (
	lock   sync.RWMutex
	root   *zap.SugaredLogger
	byName map[string]*NamedLogger
)

func init() {
	Initialise(zapcore.InfoLevel, "console")
}

// Initialise replaces the root logger. Named loggers obtained before the call keep writing with the old settings.
func Initialise(level zapcore.Level, encoding string) {
	l := newZapLogger(level, encoding)
	lock.Lock()
	defer lock.Unlock()
	root = l.Sugar()
	byName = map[string]*NamedLogger{}
	DebugEnabled = l.Core().Enabled(zapcore.DebugLevel)
}

func newZapLogger(level zapcore.Level, encoding string) *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeTime: func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("2006-01-02 15:04:05.000000"))
		},
	}
	var enc zapcore.Encoder
	if encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level))
	return zap.New(core)
}

// NamedLogger is the logger of one component, e.g. "fetch-service". It shares the root level unless it was created
// by GetLoggerWithLevel with a higher one.
type NamedLogger struct {
	*zap.SugaredLogger
}

func (n *NamedLogger) DebugEnabled() bool {
	return n.Desugar().Core().Enabled(zapcore.DebugLevel)
}

// GetLogger returns the logger for name, creating it on first use.
func GetLogger(name string) (*NamedLogger, error) {
	return named(name, nil)
}

// GetLoggerWithLevel is like GetLogger but raises the level of a newly created logger to level. If a logger with
// the same name already exists it is returned unchanged.
func GetLoggerWithLevel(name string, level zapcore.Level) (*NamedLogger, error) {
	return named(name, zap.IncreaseLevel(level))
}

func named(name string, opt zap.Option) (*NamedLogger, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("logger name must not be empty")
	}
	lock.Lock()
	defer lock.Unlock()
	if nl, ok := byName[name]; ok {
		return nl, nil
	}
	l := root.Named(name)
	if opt != nil {
		l = l.Desugar().WithOptions(opt).Sugar()
	}
	nl := &NamedLogger{SugaredLogger: l}
	byName[name] = nl
	return nl, nil
}

func current() *zap.SugaredLogger {
	lock.RLock()
	defer lock.RUnlock()
	return root
}

func Debug(args ...interface{}) {
	if DebugEnabled {
		current().Debug(args...)
	}
}

func Debugf(format string, args ...interface{}) {
	if DebugEnabled {
		current().Debugf(format, args...)
	}
}

func Info(args ...interface{}) {
	current().Info(args...)
}

func Infof(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Warn(args ...interface{}) {
	current().Warn(args...)
}

func Warnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Error(args ...interface{}) {
	current().Error(args...)
}

func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

func Fatal(args ...interface{}) {
	current().Fatal(args...)
}

func Fatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
}
