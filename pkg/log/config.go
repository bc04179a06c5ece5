package log

import (
	"fmt"
	stdlog "log"
	"log/slog"
	"strings"
)

// Config declaratively describes a logger. It is embedded in the daemon
// config file and also built from environment variables by callers.
type Config struct {
	// Level is the minimum level to emit: debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Format selects the formatter: text (default) or json.
	Format string `json:"format" yaml:"format"`
	// Output selects the sink: console (default), stderr, file, null.
	Output string `json:"output" yaml:"output"`
	// File is the path used when Output is "file".
	File string `json:"file" yaml:"file"`
	// RedactKeys lists field keys whose values are replaced with [REDACTED].
	RedactKeys []string `json:"redact_keys" yaml:"redact_keys"`
	// SampleInitial and SampleThereafter enable per-message sampling: the
	// first SampleInitial occurrences pass, then one in SampleThereafter.
	SampleInitial    int `json:"sample_initial" yaml:"sample_initial"`
	SampleThereafter int `json:"sample_thereafter" yaml:"sample_thereafter"`
}

// ApplyConfig builds a logger from a declarative Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	var output Output
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "console", "stdout":
		output = NewConsoleOutput()
	case "stderr":
		output = NewStderrOutput()
	case "null", "discard":
		output = NullOutput{}
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("log output %q requires a file path", cfg.Output)
		}
		fo, err := NewFileOutput(cfg.File)
		if err != nil {
			return nil, err
		}
		output = fo
	default:
		return nil, fmt.Errorf("unknown log output %q", cfg.Output)
	}

	base := &BaseLogger{
		level:     level,
		formatter: formatter,
		outputs:   []Output{output},
	}
	handler := newBridgeHandler(base).
		withRedactions(cfg.RedactKeys).
		withSampler(cfg.SampleInitial, cfg.SampleThereafter)
	base.slogLogger = slog.New(handler)
	return base, nil
}

// RedirectStdLog routes the standard library's default logger through l at
// info level. Libraries that log via the stdlib (for example Pebble's default
// event listener) then share flare's format and sinks.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: l, level: InfoLevel})
}

// ToStdLogger returns a *log.Logger that forwards to l at the given level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(stdLogWriter{logger: l, level: level}, "", 0)
}

type stdLogWriter struct {
	logger Logger
	level  Level
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg == "" {
		return len(p), nil
	}
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}
