package registry

import (
	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/discovery"
)

// Option 组件初始化选项函数
type Option[T any] func(*options[T])

// options 选项结构
type options[T any] struct {
	logger     clog.Logger
	serializer discovery.Serializer[T]
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 "registry" namespace
func WithLogger[T any](l clog.Logger) Option[T] {
	return func(o *options[T]) {
		if l != nil {
			o.logger = l.WithNamespace("registry")
		}
	}
}

// WithSerializer 指定实例记录的线格式序列化器，默认为 JSON
func WithSerializer[T any](s discovery.Serializer[T]) Option[T] {
	return func(o *options[T]) {
		if s != nil {
			o.serializer = s
		}
	}
}
