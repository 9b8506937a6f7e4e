package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New 创建一个新的 Logger 实例
//
// config - 日志配置，如果为 nil 会使用默认配置
func New(config *Config) (Logger, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := ParseLevel(config.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.toSlogLevel())

	w, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.ToLower(config.Format) == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return &slogLogger{
		s:        slog.New(handler),
		levelVar: levelVar,
	}, nil
}

// openOutput 解析输出目标（内部使用）
func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", output, err)
		}
		return f, nil
	}
}

// slogLogger 基于 slog 的 Logger 实现（内部使用）
type slogLogger struct {
	s         *slog.Logger
	levelVar  *slog.LevelVar
	namespace string
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.log(slog.LevelInfo, msg, fields) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.log(slog.LevelWarn, msg, fields) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

func (l *slogLogger) Fatal(msg string, fields ...Field) {
	l.log(LevelFatal.toSlogLevel(), msg, fields)
	os.Exit(1)
}

func (l *slogLogger) log(level slog.Level, msg string, fields []Field) {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	l.s.Log(context.Background(), level, msg, args...)
}

// With 创建带预设字段的子 Logger
func (l *slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, f)
	}
	return &slogLogger{
		s:         l.s.With(args...),
		levelVar:  l.levelVar,
		namespace: l.namespace,
	}
}

// WithNamespace 创建带层级命名空间的子 Logger
//
// 命名空间以 "." 连接并作为 namespace 字段输出，重复调用会继续追加层级。
func (l *slogLogger) WithNamespace(parts ...string) Logger {
	ns := l.namespace
	for _, p := range parts {
		if p == "" {
			continue
		}
		if ns == "" {
			ns = p
		} else {
			ns = ns + "." + p
		}
	}
	if ns == l.namespace {
		return l
	}
	return &slogLogger{
		s:         l.s.With(slog.String("namespace", ns)),
		levelVar:  l.levelVar,
		namespace: ns,
	}
}

// SetLevel 动态调整日志级别
func (l *slogLogger) SetLevel(level Level) error {
	if level < LevelDebug || level > LevelFatal {
		return fmt.Errorf("invalid level: %d", level)
	}
	l.levelVar.Set(level.toSlogLevel())
	return nil
}
