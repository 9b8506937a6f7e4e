package registry

import "github.com/ceyewan/beacon/xerrors"

var (
	// ErrServiceNotFound 服务未找到
	ErrServiceNotFound = xerrors.New("service not found")

	// ErrServiceAlreadyRegistered 实例已注册
	ErrServiceAlreadyRegistered = xerrors.New("service already registered")

	// ErrInvalidServiceInstance 无效的服务实例
	ErrInvalidServiceInstance = xerrors.New("invalid service instance")

	// ErrRegistryClosed registry 已关闭
	ErrRegistryClosed = xerrors.New("registry is closed")

	// ErrInvalidTTL 无效的 TTL
	ErrInvalidTTL = xerrors.New("invalid ttl")

	// ErrNoInstanceAvailable 当前没有可用实例
	ErrNoInstanceAvailable = xerrors.New("no instance available")

	// ErrProviderClosed provider 已关闭
	ErrProviderClosed = xerrors.New("provider is closed")
)
