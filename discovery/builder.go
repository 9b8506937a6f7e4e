package discovery

import (
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/beacon/xerrors"
)

// Builder 服务实例记录的可变装配对象，单协程顺序使用。
//
// 通过 NewBuilder 创建时会填充默认值（本机第一个枚举地址、随机 UUID、
// 当前时间戳），随后由调用方链式覆盖，最终 Build 产出不可变记录。
// Build 可多次调用，每次反映调用时刻的字段值。
// Builder 不做并发保护，跨协程共享需要调用方自行同步。
type Builder[T any] struct {
	name                string
	id                  string
	address             string
	port                *int
	sslPort             *int
	payload             *T
	registrationTimeUTC int64
}

// NewBuilder 创建带默认值的 Builder：
//   - address 取默认枚举器返回的第一个本机地址（枚举结果为空时不设置）
//   - id 取随机 UUID（v4，8-4-4-4-12 文本形式）
//   - registrationTimeUTC 取当前 UNIX 毫秒时间戳
//
// 地址枚举失败时返回 ErrEnumerateAddresses（底层原因保留在错误链中），
// 本包不做重试，重试策略属于调用方。
func NewBuilder[T any]() (*Builder[T], error) {
	return NewBuilderWith[T](LocalAddresses)
}

// NewBuilderWith 用自定义地址枚举策略创建 Builder。
//
// 枚举器的返回顺序即地址优先级：第一个地址作为默认 address。
// 需要排除特定网段或偏好 IPv4/IPv6 时，传入相应策略的枚举器。
func NewBuilderWith[T any](enumerate Enumerator) (*Builder[T], error) {
	ips, err := enumerate()
	if err != nil {
		return nil, xerrors.WithSentinel(ErrEnumerateAddresses, err)
	}

	b := &Builder[T]{
		id:                  uuid.NewString(),
		registrationTimeUTC: time.Now().UnixMilli(),
	}
	if len(ips) > 0 {
		b.address = ips[0].String()
	}
	return b, nil
}

// Name 设置逻辑服务名
func (b *Builder[T]) Name(name string) *Builder[T] {
	b.name = name
	return b
}

// ID 覆盖默认生成的实例 ID
func (b *Builder[T]) ID(id string) *Builder[T] {
	b.id = id
	return b
}

// Address 覆盖默认枚举得到的网络地址，空字符串表示不设置
func (b *Builder[T]) Address(address string) *Builder[T] {
	b.address = address
	return b
}

// Port 设置明文端口
func (b *Builder[T]) Port(port int) *Builder[T] {
	b.port = &port
	return b
}

// SSLPort 设置 TLS 端口
func (b *Builder[T]) SSLPort(port int) *Builder[T] {
	b.sslPort = &port
	return b
}

// Payload 设置应用自定义负载
func (b *Builder[T]) Payload(payload T) *Builder[T] {
	b.payload = &payload
	return b
}

// RegistrationTimeUTC 覆盖默认的注册时间戳（UNIX 毫秒）
func (b *Builder[T]) RegistrationTimeUTC(millis int64) *Builder[T] {
	b.registrationTimeUTC = millis
	return b
}

// Build 以当前字段值构造不可变的服务实例记录。
//
// name 或 id 未设置时返回 ErrNameRequired / ErrIDRequired。
// Build 本身无副作用，构造出的记录与 Builder 彼此独立。
func (b *Builder[T]) Build() (*ServiceInstance[T], error) {
	return NewServiceInstance(b.name, b.id, b.address, b.port, b.sslPort, b.payload, b.registrationTimeUTC)
}
