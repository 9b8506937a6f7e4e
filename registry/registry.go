// Package registry 提供基于 Etcd 的服务实例注册与发现能力。
//
// registry 是 discovery 包定义的服务实例记录的协调存储客户端，在其之上提供：
// - 实例的租约注册、自动续约和优雅下线
// - 实例列表查询（可选本地缓存）与实时变化监听
// - gRPC Resolver 集成，支持 `beacon://<service_name>` 解析
// - 策略化的实例选择（轮询/随机/粘性）
//
// ## 基本使用
//
//	client, _ := clientv3.New(clientv3.Config{Endpoints: []string{"127.0.0.1:2379"}})
//	defer client.Close()
//
//	reg, _ := registry.New[map[string]string](client, &registry.Config{
//		Namespace:  "/beacon/services",
//		DefaultTTL: 30 * time.Second,
//	}, registry.WithLogger[map[string]string](logger))
//	defer reg.Close()
//
//	// 构造并注册实例
//	builder, _ := discovery.NewBuilder[map[string]string]()
//	instance, _ := builder.Name("user-service").Port(8080).Build()
//	err := reg.Register(ctx, instance, 30*time.Second)
//
//	// 服务发现
//	instances, err := reg.GetService(ctx, "user-service")
//
// ## Etcd 存储结构
//
// 实例记录在 Etcd 中的存储采用层级结构：
//
//	<namespace>/<service_name>/<instance_id> -> 序列化的 ServiceInstance
//
// 例如：
// - `/beacon/services/user-service/uuid-1234-5678`
//
// 线格式由注入的 discovery.Serializer 决定，默认 JSON。
//
// ## 设计原则
//
// - **借用模型**：registry 借用调用方的 Etcd 客户端，不负责其生命周期
// - **显式依赖**：通过构造函数显式注入客户端和选项
// - **记录不可变**：发现端拿到的 ServiceInstance 是只读值对象，可安全共享
package registry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/discovery"
	"github.com/ceyewan/beacon/xerrors"
)

// New 创建基于 Etcd 的 Registry 实例
//
// 参数:
//   - client: Etcd 客户端，由调用方创建并负责关闭
//   - cfg: Registry 配置，nil 时使用默认配置
//   - opts: 可选参数 (Logger, Serializer)
func New[T any](client *clientv3.Client, cfg *Config, opts ...Option[T]) (Registry[T], error) {
	if client == nil {
		return nil, xerrors.New("etcd client is required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := &options[T]{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Discard()
	}
	if opt.serializer == nil {
		opt.serializer = &discovery.JSONSerializer[T]{}
	}

	r := &etcdRegistry[T]{
		client:     client,
		cfg:        cfg,
		logger:     opt.logger,
		serializer: opt.serializer,
		keepAlives: make(map[string]*leaseKeepAlive),
		watchers:   make(map[uint64]context.CancelFunc),
		stopChan:   make(chan struct{}),
	}

	if cfg.EnableCache {
		cache, err := otter.New(&otter.Options[string, []*discovery.ServiceInstance[T]]{
			MaximumSize:      1024,
			ExpiryCalculator: otter.ExpiryWriting[string, []*discovery.ServiceInstance[T]](cfg.CacheExpiration),
		})
		if err != nil {
			return nil, xerrors.Wrap(err, "build discovery cache")
		}
		r.cache = cache
	}

	r.registerResolver()

	return r, nil
}

// leaseKeepAlive 租约保活信息
type leaseKeepAlive struct {
	leaseID     clientv3.LeaseID
	keepAliveCh <-chan *clientv3.LeaseKeepAliveResponse
	cancel      context.CancelFunc
	instanceID  string
	serviceName string
	closed      uint32
}

// etcdRegistry 基于 Etcd 的 Registry 实现
type etcdRegistry[T any] struct {
	client     *clientv3.Client
	cfg        *Config
	logger     clog.Logger
	serializer discovery.Serializer[T]
	cache      *otter.Cache[string, []*discovery.ServiceInstance[T]]

	// 后台任务管理
	keepAlives map[string]*leaseKeepAlive    // instanceID -> keepAlive info
	watchers   map[uint64]context.CancelFunc // watchID -> cancel
	watchSeq   uint64
	stopChan   chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     uint32
}

func (r *etcdRegistry[T]) isClosed() bool {
	return atomic.LoadUint32(&r.closed) == 1
}

func (r *etcdRegistry[T]) ensureOpen() error {
	if r.isClosed() {
		return ErrRegistryClosed
	}
	return nil
}

// Register 发布服务实例记录
func (r *etcdRegistry[T]) Register(ctx context.Context, instance *discovery.ServiceInstance[T], ttl time.Duration) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if instance == nil || instance.ID() == "" || instance.Name() == "" {
		return ErrInvalidServiceInstance
	}
	if ttl < 0 {
		return ErrInvalidTTL
	}
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	if ttl < time.Second {
		return ErrInvalidTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keepAlives[instance.ID()]; exists {
		return ErrServiceAlreadyRegistered
	}

	// 创建租约
	lease, err := r.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		r.logger.Error("failed to grant lease",
			clog.String("instance_id", instance.ID()),
			clog.Error(err))
		return xerrors.Wrap(err, "grant lease failed")
	}

	// 序列化实例记录
	value, err := r.serializer.Serialize(instance)
	if err != nil {
		r.revokeLease(ctx, lease.ID)
		return xerrors.Wrap(err, "serialize instance failed")
	}

	key := r.buildKey(instance.Name(), instance.ID())

	// 写入 Etcd
	if _, err = r.client.Put(ctx, key, string(value), clientv3.WithLease(lease.ID)); err != nil {
		r.revokeLease(ctx, lease.ID)
		r.logger.Error("failed to put instance",
			clog.String("key", key),
			clog.Error(err))
		return xerrors.Wrap(err, "put instance failed")
	}

	// 启动 KeepAlive 后台协程
	keepAliveCtx, keepAliveCancel := context.WithCancel(context.Background())
	keepAliveCh, err := r.client.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		keepAliveCancel()
		r.revokeLease(ctx, lease.ID)
		return xerrors.Wrap(err, "keepalive failed")
	}

	ka := &leaseKeepAlive{
		leaseID:     lease.ID,
		keepAliveCh: keepAliveCh,
		cancel:      keepAliveCancel,
		instanceID:  instance.ID(),
		serviceName: instance.Name(),
	}
	r.keepAlives[instance.ID()] = ka

	r.wg.Add(1)
	go r.monitorKeepAlive(ka)

	r.invalidateCache(instance.Name())

	r.logger.Info("instance registered",
		clog.String("instance_id", instance.ID()),
		clog.String("service_name", instance.Name()),
		clog.Duration("ttl", ttl))

	return nil
}

// Deregister 注销服务实例
func (r *etcdRegistry[T]) Deregister(ctx context.Context, instanceID string) error {
	if err := r.ensureOpen(); err != nil {
		return err
	}
	if instanceID == "" {
		return ErrInvalidServiceInstance
	}

	r.mu.Lock()
	ka, exists := r.keepAlives[instanceID]
	if !exists {
		r.mu.Unlock()
		return ErrServiceNotFound
	}
	leaseID := ka.leaseID
	serviceName := ka.serviceName
	atomic.StoreUint32(&ka.closed, 1)
	ka.cancel()
	delete(r.keepAlives, instanceID)
	r.mu.Unlock()

	// 撤销租约会自动删除关联的 key
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		r.logger.Error("failed to revoke lease",
			clog.String("instance_id", instanceID),
			clog.Error(err))
		return xerrors.Wrap(err, "revoke lease failed")
	}

	r.invalidateCache(serviceName)

	r.logger.Info("instance deregistered",
		clog.String("instance_id", instanceID))

	return nil
}

// GetService 获取服务实例列表
func (r *etcdRegistry[T]) GetService(ctx context.Context, serviceName string) ([]*discovery.ServiceInstance[T], error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if serviceName == "" {
		return nil, ErrInvalidServiceInstance
	}

	if r.cache != nil {
		if instances, ok := r.cache.GetIfPresent(serviceName); ok {
			return instances, nil
		}
	}

	prefix := r.buildPrefix(serviceName)
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		r.logger.Error("failed to get service",
			clog.String("service_name", serviceName),
			clog.Error(err))
		return nil, xerrors.Wrap(err, "get service failed")
	}

	var instances []*discovery.ServiceInstance[T]
	for _, kv := range resp.Kvs {
		instance, err := r.serializer.Deserialize(kv.Value)
		if err != nil {
			r.logger.Warn("failed to deserialize instance",
				clog.String("key", string(kv.Key)),
				clog.Error(err))
			continue
		}
		instances = append(instances, instance)
	}

	if r.cache != nil {
		r.cache.Set(serviceName, instances)
	}

	return instances, nil
}

// ListNames 列出命名空间下所有已注册的服务名
func (r *etcdRegistry[T]) ListNames(ctx context.Context) ([]string, error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}

	prefix := r.cfg.Namespace + "/"
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, xerrors.Wrap(err, "list service names failed")
	}

	seen := make(map[string]struct{})
	var names []string
	for _, kv := range resp.Kvs {
		name, _, ok := r.parseKey(string(kv.Key))
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Watch 监听服务实例变化
// 支持自动重连：当 watch channel 关闭或发生错误时，会自动重连。
// 使用 WithRev 从上次处理的位置继续监听，避免事件丢失。
func (r *etcdRegistry[T]) Watch(ctx context.Context, serviceName string) (<-chan ServiceEvent[T], error) {
	if err := r.ensureOpen(); err != nil {
		return nil, err
	}
	if serviceName == "" {
		return nil, ErrInvalidServiceInstance
	}

	eventCh := make(chan ServiceEvent[T], 100)
	prefix := r.buildPrefix(serviceName)

	watchCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.watchSeq++
	watchID := r.watchSeq
	r.watchers[watchID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(eventCh)
		defer func() {
			r.mu.Lock()
			delete(r.watchers, watchID)
			r.mu.Unlock()
		}()

		var lastRev int64
		retryInterval := r.cfg.RetryInterval

		// 外层循环：处理重连
		for {
			watchOpts := []clientv3.OpOption{clientv3.WithPrefix()}
			if lastRev > 0 {
				// 从上次处理的 revision 之后继续
				watchOpts = append(watchOpts, clientv3.WithRev(lastRev+1))
			}

			watchCh := r.client.Watch(watchCtx, prefix, watchOpts...)

			r.logger.Debug("watch started",
				clog.String("service_name", serviceName),
				clog.Int64("from_revision", lastRev+1))

		innerLoop:
			for watchCh != nil {
				select {
				case <-watchCtx.Done():
					return

				case wresp, ok := <-watchCh:
					if !ok {
						r.logger.Warn("watch channel closed, will retry",
							clog.String("service_name", serviceName),
							clog.Duration("retry_after", retryInterval))
						break innerLoop
					}

					if wresp.Err() != nil {
						if xerrors.Is(wresp.Err(), rpctypes.ErrCompacted) {
							// revision 已被压缩，重新同步到当前位置
							resp, err := r.client.Get(watchCtx, prefix, clientv3.WithPrefix())
							if err != nil {
								r.logger.Error("failed to resync after compaction",
									clog.String("service_name", serviceName),
									clog.Error(err))
							} else {
								lastRev = resp.Header.Revision
							}
							break innerLoop
						}
						r.logger.Error("watch error, will retry",
							clog.String("service_name", serviceName),
							clog.Error(wresp.Err()))
						break innerLoop
					}

					for _, ev := range wresp.Events {
						if ev.Kv.ModRevision > lastRev {
							lastRev = ev.Kv.ModRevision
						}

						event, ok := r.toServiceEvent(serviceName, ev)
						if !ok {
							continue
						}

						r.invalidateCache(serviceName)

						select {
						case eventCh <- event:
						case <-watchCtx.Done():
							return
						}
					}
				}
			}

			select {
			case <-watchCtx.Done():
				return
			default:
				r.logger.Warn("retrying watch",
					clog.String("service_name", serviceName),
					clog.Duration("after", retryInterval))
				time.Sleep(retryInterval)
			}
		}
	}()

	return eventCh, nil
}

// toServiceEvent 将 Etcd 事件转成 ServiceEvent（内部使用）
func (r *etcdRegistry[T]) toServiceEvent(serviceName string, ev *clientv3.Event) (ServiceEvent[T], bool) {
	switch ev.Type {
	case clientv3.EventTypePut:
		instance, err := r.serializer.Deserialize(ev.Kv.Value)
		if err != nil {
			r.logger.Warn("failed to deserialize watch event",
				clog.String("key", string(ev.Kv.Key)),
				clog.Error(err))
			return ServiceEvent[T]{}, false
		}
		return ServiceEvent[T]{Type: EventTypePut, Instance: instance}, true

	case clientv3.EventTypeDelete:
		// DELETE 事件只有 key，从中提取 name/id 构造占位记录
		name, id, ok := r.parseKey(string(ev.Kv.Key))
		if !ok {
			name, id = serviceName, "unknown"
		}
		instance, err := discovery.NewServiceInstance[T](name, id, "", nil, nil, nil, 0)
		if err != nil {
			return ServiceEvent[T]{}, false
		}
		return ServiceEvent[T]{Type: EventTypeDelete, Instance: instance}, true
	}
	return ServiceEvent[T]{}, false
}

// Close 停止后台任务并清理资源（撤销租约、停止监听）
// 此方法是幂等的，可以安全地多次调用
func (r *etcdRegistry[T]) Close() error {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.mu.Lock()
	close(r.stopChan)

	for _, cancelFunc := range r.watchers {
		cancelFunc()
	}
	r.watchers = make(map[uint64]context.CancelFunc)

	leaseSnapshot := make(map[string]clientv3.LeaseID, len(r.keepAlives))
	for instanceID, ka := range r.keepAlives {
		leaseSnapshot[instanceID] = ka.leaseID
		atomic.StoreUint32(&ka.closed, 1)
		ka.cancel()
		delete(r.keepAlives, instanceID)
	}
	r.mu.Unlock()

	var errs []error
	for instanceID, leaseID := range leaseSnapshot {
		if _, err := r.client.Revoke(ctx, leaseID); err != nil {
			r.logger.Warn("failed to revoke lease during shutdown",
				clog.String("instance_id", instanceID),
				clog.Error(err))
			errs = append(errs, err)
		}
	}

	r.wg.Wait()

	r.logger.Info("registry stopped")
	return xerrors.Combine(errs...)
}

// monitorKeepAlive 监控租约续约
// 该协程持续消费 KeepAlive 响应，channel 关闭表示租约失效或网络中断
func (r *etcdRegistry[T]) monitorKeepAlive(ka *leaseKeepAlive) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return

		case kaResp, ok := <-ka.keepAliveCh:
			if !ok {
				// 正常关闭（Deregister/Close）不记录为错误
				if atomic.LoadUint32(&ka.closed) == 1 {
					return
				}

				r.logger.Error("keepalive channel closed, lease expired or connection lost",
					clog.String("instance_id", ka.instanceID),
					clog.String("service_name", ka.serviceName),
					clog.Int64("lease_id", int64(ka.leaseID)))

				r.mu.Lock()
				delete(r.keepAlives, ka.instanceID)
				r.mu.Unlock()

				// 此处不自动重新注册：租约过期说明进程可能已异常，
				// 网络中断则 Etcd 客户端会在重连后自动恢复，重注册
				// 可能产生僵尸实例。调用方可监控此日志触发告警。
				return
			}

			r.logger.Debug("keepalive renewed",
				clog.String("instance_id", ka.instanceID),
				clog.Int64("ttl", kaResp.TTL))
		}
	}
}

// revokeLease 撤销租约并记录失败（内部使用，调用方已持锁或无需锁）
func (r *etcdRegistry[T]) revokeLease(ctx context.Context, leaseID clientv3.LeaseID) {
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		r.logger.Error("failed to revoke lease",
			clog.Int64("lease_id", int64(leaseID)),
			clog.Error(err))
	}
}

func (r *etcdRegistry[T]) invalidateCache(serviceName string) {
	if r.cache != nil {
		r.cache.Invalidate(serviceName)
	}
}

// buildKey 构建存储键
func (r *etcdRegistry[T]) buildKey(serviceName, instanceID string) string {
	return r.cfg.Namespace + "/" + serviceName + "/" + instanceID
}

// buildPrefix 构建服务前缀
func (r *etcdRegistry[T]) buildPrefix(serviceName string) string {
	return r.cfg.Namespace + "/" + serviceName + "/"
}

// parseKey 从存储键解析服务名和实例 ID
func (r *etcdRegistry[T]) parseKey(key string) (name, id string, ok bool) {
	rest, found := strings.CutPrefix(key, r.cfg.Namespace+"/")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
