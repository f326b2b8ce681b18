package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process logger.
type Options struct {
	Level    string // debug | info | warn | error
	JSON     bool
	File     string // optional rotating file, in addition to stdout
	MaxBytes int64
	// Stdout overrides the console destination. Tests use it to capture output.
	Stdout io.Writer
	// Fields are attached to every entry.
	Fields []zap.Field
}

// New builds a zap logger writing to stdout and, when File is set, to a
// RotatingWriter. The returned closer releases the file.
func New(opts Options) (*zap.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var stdout zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if opts.Stdout != nil {
		stdout = zapcore.AddSync(opts.Stdout)
	}
	sinks := []zapcore.WriteSyncer{stdout}

	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(opts.File) != "" && opts.File != "-" {
		rw, err := NewRotatingWriter(opts.File, opts.MaxBytes)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, rw)
		closer = rw
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	zopts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if level == zapcore.DebugLevel {
		zopts = append(zopts, zap.Development())
	}
	logger := zap.New(core, zopts...)
	if len(opts.Fields) > 0 {
		logger = logger.With(opts.Fields...)
	}
	return logger, closer, nil
}

// ParseLevel maps a configured level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
