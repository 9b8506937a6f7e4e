package discovery

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/beacon/xerrors"
)

// Serializer 服务实例记录的线格式编解码接口。
//
// 编码必须无损保留全部字段，包括可选字段（address、port、sslPort、payload）
// 的"已设置/未设置"区分。往返性质：对任何合法记录 x，
// Deserialize(Serialize(x)) 与 x 在 Equal 语义下相等。
type Serializer[T any] interface {
	Serialize(instance *ServiceInstance[T]) ([]byte, error)
	Deserialize(data []byte) (*ServiceInstance[T], error)
}

// wireInstance 线格式载体（内部使用）。
//
// 这是规格中"仅供反序列化使用的零值记录"的落地方式：编解码库先填充本结构，
// 再经 NewServiceInstance 的必填字段校验转成公开的不可变记录，
// 半构造状态永远不会从本包的公开 API 流出。
type wireInstance[T any] struct {
	Name                string `json:"name" msgpack:"name"`
	ID                  string `json:"id" msgpack:"id"`
	Address             string `json:"address,omitempty" msgpack:"address,omitempty"`
	Port                *int   `json:"port,omitempty" msgpack:"port,omitempty"`
	SSLPort             *int   `json:"sslPort,omitempty" msgpack:"sslPort,omitempty"`
	Payload             *T     `json:"payload,omitempty" msgpack:"payload,omitempty"`
	RegistrationTimeUTC int64  `json:"registrationTimeUTC" msgpack:"registrationTimeUTC"`
}

func toWire[T any](instance *ServiceInstance[T]) *wireInstance[T] {
	return &wireInstance[T]{
		Name:                instance.name,
		ID:                  instance.id,
		Address:             instance.address,
		Port:                instance.port,
		SSLPort:             instance.sslPort,
		Payload:             instance.payload,
		RegistrationTimeUTC: instance.registrationTimeUTC,
	}
}

func fromWire[T any](w *wireInstance[T]) (*ServiceInstance[T], error) {
	return NewServiceInstance(w.Name, w.ID, w.Address, w.Port, w.SSLPort, w.Payload, w.RegistrationTimeUTC)
}

// JSONSerializer 基于 JSON 的序列化器，协调存储中的默认格式
type JSONSerializer[T any] struct{}

// Serialize 编码为 JSON
func (js *JSONSerializer[T]) Serialize(instance *ServiceInstance[T]) ([]byte, error) {
	if instance == nil {
		return nil, ErrNilInstance
	}
	return json.Marshal(toWire(instance))
}

// Deserialize 从 JSON 解码，缺失 name/id 的数据会被拒绝
func (js *JSONSerializer[T]) Deserialize(data []byte) (*ServiceInstance[T], error) {
	var w wireInstance[T]
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal service instance")
	}
	return fromWire(&w)
}

// MsgpackSerializer 基于 MessagePack 的序列化器
//
// 相比 JSON 编码体积更小、速度更快，适合实例数量大或变更频繁的部署。
type MsgpackSerializer[T any] struct{}

// Serialize 编码为 MessagePack
func (ms *MsgpackSerializer[T]) Serialize(instance *ServiceInstance[T]) ([]byte, error) {
	if instance == nil {
		return nil, ErrNilInstance
	}
	return msgpack.Marshal(toWire(instance))
}

// Deserialize 从 MessagePack 解码，缺失 name/id 的数据会被拒绝
func (ms *MsgpackSerializer[T]) Deserialize(data []byte) (*ServiceInstance[T], error) {
	var w wireInstance[T]
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, xerrors.Wrap(err, "unmarshal service instance")
	}
	return fromWire(&w)
}

// NewSerializer 按格式名创建序列化器
//
// 支持的格式:
//   - "json": 标准库 JSON 序列化，可读性和兼容性最好（默认）
//   - "msgpack": MessagePack 二进制序列化，性能更优
func NewSerializer[T any](format string) (Serializer[T], error) {
	switch format {
	case "json", "":
		return &JSONSerializer[T]{}, nil
	case "msgpack":
		return &MsgpackSerializer[T]{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedFormat, "format %q", format)
	}
}
