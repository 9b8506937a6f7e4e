// Package discovery 定义服务发现系统的核心数据单元：服务实例记录。
//
// 一个运行中的服务进程通过 ServiceInstance 向协调存储（如 Etcd）发布自身信息，
// 其他进程据此定位该服务。记录是不可变值对象，跨进程、跨版本序列化稳定，
// 并提供确定性的相等与哈希语义，便于发现端去重、缓存和比对。
//
// 基本使用：
//
//	builder, err := discovery.NewBuilder[map[string]string]()
//	if err != nil {
//	    return err
//	}
//	instance, err := builder.Name("user-service").Port(8080).Build()
//
// 本包只定义数据单元及其构造、相等和序列化契约，不做任何网络 I/O 或持久化；
// 注册、监听等生命周期由 registry 包完成。
package discovery

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
)

// ServiceInstance 不可变的服务实例注册记录，对应用负载类型 T 保持不透明。
//
// 实例一经构造即只读，可在任意数量的 goroutine 间安全共享。
// 相等语义是全字段的结构化比较，负载类型 T 需支持值相等
// （以 reflect.DeepEqual 衡量），否则整条记录的相等没有意义。
type ServiceInstance[T any] struct {
	name                string
	id                  string
	address             string
	port                *int
	sslPort             *int
	payload             *T
	registrationTimeUTC int64
}

// NewServiceInstance 用完整字段构造服务实例记录。
//
// name 和 id 必填，其余字段可为空/nil。port、sslPort、payload 的指针值会被
// 拷贝，构造后对外部指针的修改不影响记录。
// 常规代码应通过 Builder 构造，本函数主要服务于序列化层和测试。
func NewServiceInstance[T any](name, id, address string, port, sslPort *int, payload *T, registrationTimeUTC int64) (*ServiceInstance[T], error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	if id == "" {
		return nil, ErrIDRequired
	}

	return &ServiceInstance[T]{
		name:                name,
		id:                  id,
		address:             address,
		port:                copyIntPtr(port),
		sslPort:             copyIntPtr(sslPort),
		payload:             copyPayload(payload),
		registrationTimeUTC: registrationTimeUTC,
	}, nil
}

// Name 返回逻辑服务名，同一服务的所有实例共享
func (s *ServiceInstance[T]) Name() string {
	return s.name
}

// ID 返回该实例的唯一标识（通常是 UUID）
func (s *ServiceInstance[T]) ID() string {
	return s.id
}

// Address 返回实例的网络地址，未设置时为空字符串
func (s *ServiceInstance[T]) Address() string {
	return s.address
}

// Port 返回明文端口，第二个返回值表示端口是否已设置
func (s *ServiceInstance[T]) Port() (int, bool) {
	if s.port == nil {
		return 0, false
	}
	return *s.port, true
}

// SSLPort 返回 TLS 端口，第二个返回值表示端口是否已设置
func (s *ServiceInstance[T]) SSLPort() (int, bool) {
	if s.sslPort == nil {
		return 0, false
	}
	return *s.sslPort, true
}

// Payload 返回应用负载的副本，第二个返回值表示负载是否已设置
func (s *ServiceInstance[T]) Payload() (T, bool) {
	if s.payload == nil {
		var zero T
		return zero, false
	}
	return *s.payload, true
}

// RegistrationTimeUTC 返回注册时刻（UNIX 毫秒），构造后不再变化
func (s *ServiceInstance[T]) RegistrationTimeUTC() int64 {
	return s.registrationTimeUTC
}

// Equal 全字段结构化相等比较。
//
// 可选字段做空值安全比较：两侧均未设置视为相等，一侧未设置则不等。
// 负载使用 reflect.DeepEqual 比较。不同时间构造的两条记录即使其余字段
// 全部相同，registrationTimeUTC 也会使其不等。
func (s *ServiceInstance[T]) Equal(other *ServiceInstance[T]) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return false
	}
	if s.registrationTimeUTC != other.registrationTimeUTC {
		return false
	}
	if s.name != other.name || s.id != other.id || s.address != other.address {
		return false
	}
	if !intPtrEqual(s.port, other.port) || !intPtrEqual(s.sslPort, other.sslPort) {
		return false
	}
	return payloadEqual(s.payload, other.payload)
}

// Hash 计算与 Equal 一致的结构化哈希：Equal 的两条记录哈希必然相同。
//
// 按字段声明顺序以 31*acc + fieldHash 折叠；registrationTimeUTC 拆成
// 高低 32 位异或后参与折叠。负载通过其规范 JSON 编码参与哈希。
func (s *ServiceInstance[T]) Hash() uint32 {
	h := hashString(s.name)
	h = 31*h + hashString(s.id)
	h = 31*h + hashString(s.address)
	h = 31*h + hashIntPtr(s.port)
	h = 31*h + hashIntPtr(s.sslPort)
	h = 31*h + s.payloadHash()
	ts := uint32(uint64(s.registrationTimeUTC)>>32) ^ uint32(uint64(s.registrationTimeUTC))
	h = 31*h + ts
	return h
}

// String 返回固定字段顺序的诊断性文本，仅用于人类阅读，不保证格式兼容
func (s *ServiceInstance[T]) String() string {
	return fmt.Sprintf("ServiceInstance{name=%q, id=%q, address=%q, port=%s, sslPort=%s, payload=%s, registrationTimeUTC=%d}",
		s.name, s.id, s.address,
		formatIntPtr(s.port), formatIntPtr(s.sslPort),
		s.formatPayload(), s.registrationTimeUTC)
}

func (s *ServiceInstance[T]) payloadHash() uint32 {
	if s.payload == nil {
		return 0
	}
	data, err := json.Marshal(*s.payload)
	if err != nil {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(data)
	return h.Sum32()
}

func (s *ServiceInstance[T]) formatPayload() string {
	if s.payload == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", *s.payload)
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func hashIntPtr(p *int) uint32 {
	if p == nil {
		return 0
	}
	return uint32(*p)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func payloadEqual[T any](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(*a, *b)
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyPayload[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func formatIntPtr(p *int) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", *p)
}
