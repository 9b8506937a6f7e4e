// Package clog 为 Beacon 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，适配微服务架构
//   - 零外部依赖（仅依赖 Go 标准库）
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("service registered", clog.String("service_id", id))
//
// 创建子 Logger：
//
//	child := logger.With(clog.String("component", "registry"))
//	namespaced := logger.WithNamespace("registry")
package clog

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal。
// Fatal 在记录日志后终止进程。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger，预设字段会出现在所有日志中
	With(fields ...Field) Logger

	// WithNamespace 创建一个带有层级命名空间的子 Logger
	//
	// 示例：
	//   logger.WithNamespace("registry", "watch")
	//   // 日志中会包含 namespace=registry.watch
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别
	SetLevel(level Level) error
}
