package registry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/resolver"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/discovery"
	"github.com/ceyewan/beacon/xerrors"
)

// registerResolver 将本 registry 注册为 gRPC resolver（内部使用）
// scheme 冲突时后注册者覆盖先注册者，这是 gRPC resolver 注册表的既有行为
func (r *etcdRegistry[T]) registerResolver() {
	resolver.Register(&resolverBuilder[T]{registry: r, scheme: r.cfg.Scheme})
}

// GetConnection 获取到指定服务的 gRPC 连接
//
// 当 ctx 带有 deadline 时，会主动触发连接并等待 Ready 或超时返回。
//
// 注意：必须传入 grpc.WithTransportCredentials() 或其他凭证选项。
func (r *etcdRegistry[T]) GetConnection(ctx context.Context, serviceName string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if serviceName == "" {
		return nil, ErrInvalidServiceInstance
	}
	if len(opts) == 0 {
		return nil, xerrors.New("dial options required, e.g., grpc.WithTransportCredentials()")
	}

	target := fmt.Sprintf("%s:///%s", r.cfg.Scheme, serviceName)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		r.logger.Error("failed to create grpc connection",
			clog.String("service_name", serviceName),
			clog.Error(err))
		return nil, xerrors.Wrap(err, "dial failed")
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		if err := waitForReady(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	if ctx.Err() != nil {
		return xerrors.Wrap(ctx.Err(), "connect canceled")
	}

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return xerrors.Wrap(ctx.Err(), "wait for connection ready")
			}
			return xerrors.New("wait for connection ready")
		}
	}
}

// resolverBuilder 实现 gRPC resolver.Builder 接口
type resolverBuilder[T any] struct {
	registry *etcdRegistry[T]
	scheme   string
}

// Build 创建 resolver
func (b *resolverBuilder[T]) Build(target resolver.Target, cc resolver.ClientConn, opts resolver.BuildOptions) (resolver.Resolver, error) {
	serviceName := target.Endpoint()
	if serviceName == "" {
		serviceName = strings.TrimPrefix(target.URL.Path, "/")
	}

	r := &serviceResolver[T]{
		registry:    b.registry,
		serviceName: serviceName,
		cc:          cc,
		closeCh:     make(chan struct{}),
		localCache:  make(map[string]resolver.Address),
	}

	go r.start()

	return r, nil
}

// Scheme 返回 scheme
func (b *resolverBuilder[T]) Scheme() string {
	return b.scheme
}

// serviceResolver 实现 gRPC resolver.Resolver 接口
// 使用本地缓存和增量更新机制，避免每次事件都全量拉取实例列表
type serviceResolver[T any] struct {
	registry    *etcdRegistry[T]
	serviceName string
	cc          resolver.ClientConn
	closeCh     chan struct{}
	localCache  map[string]resolver.Address // instanceID -> Address
	cacheMu     sync.Mutex
	initialized bool
	closeOnce   sync.Once
}

// start 启动 resolver
func (r *serviceResolver[T]) start() {
	ctx := context.Background()

	eventCh, err := r.registry.Watch(ctx, r.serviceName)
	if err != nil {
		r.registry.logger.Error("failed to watch service for resolver",
			clog.String("service_name", r.serviceName),
			clog.Error(err))
		return
	}

	// 初始全量拉取，之后按事件增量更新
	r.initializeCache()

	for {
		select {
		case <-r.closeCh:
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			r.handleEvent(event)
		}
	}
}

// initializeCache 初始化本地缓存（全量拉取一次）
func (r *serviceResolver[T]) initializeCache() {
	ctx := context.Background()
	instances, err := r.registry.GetService(ctx, r.serviceName)
	if err != nil {
		r.registry.logger.Error("failed to initialize resolver cache",
			clog.String("service_name", r.serviceName),
			clog.Error(err))
		return
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.localCache = make(map[string]resolver.Address)
	for _, instance := range instances {
		if addr, ok := instanceAddr(instance); ok {
			r.localCache[instance.ID()] = addr
		}
	}

	r.initialized = true
	r.pushStateLocked()
}

// handleEvent 处理实例变化事件，增量更新本地缓存
func (r *serviceResolver[T]) handleEvent(event ServiceEvent[T]) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if !r.initialized || event.Instance == nil {
		return
	}

	switch event.Type {
	case EventTypePut:
		if addr, ok := instanceAddr(event.Instance); ok {
			r.localCache[event.Instance.ID()] = addr
		}
	case EventTypeDelete:
		delete(r.localCache, event.Instance.ID())
	}

	r.pushStateLocked()
}

// pushStateLocked 推送当前状态到 gRPC（调用前必须持有 cacheMu 锁）
func (r *serviceResolver[T]) pushStateLocked() {
	addrs := make([]resolver.Address, 0, len(r.localCache))
	for _, addr := range r.localCache {
		addrs = append(addrs, addr)
	}

	// 地址列表为空时保留旧状态，避免连接被整体拆除
	if len(addrs) == 0 {
		r.registry.logger.Warn("no available instances in resolver cache",
			clog.String("service_name", r.serviceName))
		return
	}

	if err := r.cc.UpdateState(resolver.State{Addresses: addrs}); err != nil {
		r.registry.logger.Error("failed to update resolver state",
			clog.String("service_name", r.serviceName),
			clog.Error(err))
	}
}

// ResolveNow 立即重新解析，采用全量刷新作为兜底机制
func (r *serviceResolver[T]) ResolveNow(opts resolver.ResolveNowOptions) {
	r.initializeCache()
}

// Close 关闭 resolver
func (r *serviceResolver[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.closeCh)
	})
}

// instanceAddr 从实例记录拼出可拨号地址（内部使用）
// 优先使用明文端口，其次 TLS 端口；缺少地址或端口的实例不参与负载均衡
func instanceAddr[T any](instance *discovery.ServiceInstance[T]) (resolver.Address, bool) {
	host := instance.Address()
	if host == "" {
		return resolver.Address{}, false
	}

	port, ok := instance.Port()
	if !ok {
		port, ok = instance.SSLPort()
	}
	if !ok {
		return resolver.Address{}, false
	}

	return resolver.Address{
		Addr:       net.JoinHostPort(host, strconv.Itoa(port)),
		ServerName: instance.Name(),
	}, true
}
