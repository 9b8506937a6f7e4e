package registry

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/ceyewan/beacon/discovery"
)

// Registry 服务实例记录的注册与发现接口，对负载类型 T 保持不透明
type Registry[T any] interface {
	// --- 服务注册 ---

	// Register 发布服务实例记录
	// ttl: 租约有效期，超时后若无续约实例将自动下线；传 0 使用配置默认值
	Register(ctx context.Context, instance *discovery.ServiceInstance[T], ttl time.Duration) error

	// Deregister 注销服务实例
	// instanceID: 实例唯一 ID
	Deregister(ctx context.Context, instanceID string) error

	// --- 服务发现 ---

	// GetService 获取服务实例列表
	// 启用缓存时优先读取本地缓存，未命中或过期时查询协调存储
	GetService(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance[T], error)

	// ListNames 列出命名空间下所有已注册的服务名
	ListNames(ctx context.Context) ([]string, error)

	// Watch 监听服务实例变化
	// 返回一个事件通道，接收实例变化事件 (PUT/DELETE)
	Watch(ctx context.Context, serviceName string) (<-chan ServiceEvent[T], error)

	// --- gRPC 集成 ---

	// GetConnection 获取到指定服务的 gRPC 连接
	// 内部封装了 Resolver 配置，支持自动服务发现和客户端负载均衡
	GetConnection(ctx context.Context, serviceName string, opts ...grpc.DialOption) (*grpc.ClientConn, error)

	// --- 资源管理 ---

	// Close 停止后台任务并清理资源（撤销租约、停止监听）
	Close() error
}
