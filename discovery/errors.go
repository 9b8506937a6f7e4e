package discovery

import "github.com/ceyewan/beacon/xerrors"

var (
	// ErrNameRequired 服务名缺失，记录无法构造
	ErrNameRequired = xerrors.New("service name is required")

	// ErrIDRequired 实例 ID 缺失，记录无法构造
	ErrIDRequired = xerrors.New("instance id is required")

	// ErrEnumerateAddresses 本地网络地址枚举失败
	ErrEnumerateAddresses = xerrors.New("enumerate local addresses failed")

	// ErrNilInstance 传入的服务实例为 nil
	ErrNilInstance = xerrors.New("service instance is nil")

	// ErrUnsupportedFormat 不支持的序列化格式
	ErrUnsupportedFormat = xerrors.New("unsupported serializer format")
)
