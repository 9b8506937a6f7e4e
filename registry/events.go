package registry

import "github.com/ceyewan/beacon/discovery"

// ServiceEvent 服务实例变化事件
type ServiceEvent[T any] struct {
	Type     EventType                     // 事件类型 (PUT/DELETE)
	Instance *discovery.ServiceInstance[T] // 相关实例；DELETE 事件只携带 name 和 id
}

// EventType 事件类型
type EventType string

const (
	EventTypePut    EventType = "PUT"    // 实例注册或更新
	EventTypeDelete EventType = "DELETE" // 实例注销或租约过期
)
