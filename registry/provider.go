package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ceyewan/beacon/clog"
	"github.com/ceyewan/beacon/discovery"
	"github.com/ceyewan/beacon/xerrors"
)

// Provider 单个服务的实例提供者。
//
// 创建时全量拉取一次实例列表，之后通过 Watch 维护本地实时视图，
// GetInstance 在视图上按策略选择，不产生网络调用。
// Provider 并发安全，用完必须 Close 释放监听。
type Provider[T any] struct {
	serviceName string
	strategy    Strategy[T]
	logger      clog.Logger
	cancel      context.CancelFunc

	mu        sync.RWMutex
	instances map[string]*discovery.ServiceInstance[T] // instanceID -> instance
	closed    bool
	done      chan struct{}
}

// NewProvider 为指定服务创建实例提供者
//
// strategy 为 nil 时使用轮询策略。
func NewProvider[T any](ctx context.Context, reg Registry[T], serviceName string, strategy Strategy[T]) (*Provider[T], error) {
	if reg == nil {
		return nil, xerrors.New("registry is required")
	}
	if serviceName == "" {
		return nil, ErrInvalidServiceInstance
	}
	if strategy == nil {
		strategy = NewRoundRobin[T]()
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	eventCh, err := reg.Watch(watchCtx, serviceName)
	if err != nil {
		cancel()
		return nil, xerrors.Wrap(err, "watch service failed")
	}

	p := &Provider[T]{
		serviceName: serviceName,
		strategy:    strategy,
		logger:      clog.Discard(),
		cancel:      cancel,
		instances:   make(map[string]*discovery.ServiceInstance[T]),
		done:        make(chan struct{}),
	}
	if r, ok := reg.(*etcdRegistry[T]); ok {
		p.logger = r.logger.WithNamespace("provider")
	}

	// 初始全量拉取
	instances, err := reg.GetService(ctx, serviceName)
	if err != nil {
		cancel()
		return nil, xerrors.Wrap(err, "get service failed")
	}
	for _, instance := range instances {
		p.instances[instance.ID()] = instance
	}

	go p.consume(eventCh)

	return p, nil
}

// consume 消费监听事件，维护本地实例视图（内部使用）
func (p *Provider[T]) consume(eventCh <-chan ServiceEvent[T]) {
	defer close(p.done)

	for event := range eventCh {
		if event.Instance == nil {
			continue
		}
		p.mu.Lock()
		switch event.Type {
		case EventTypePut:
			p.instances[event.Instance.ID()] = event.Instance
		case EventTypeDelete:
			delete(p.instances, event.Instance.ID())
		}
		p.mu.Unlock()
	}
}

// GetInstance 按策略选择一个实例
//
// 当前没有可用实例时返回 ErrNoInstanceAvailable。
func (p *Provider[T]) GetInstance() (*discovery.ServiceInstance[T], error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, ErrProviderClosed
	}
	candidates := p.snapshotLocked()
	p.mu.RUnlock()

	instance := p.strategy.Select(candidates)
	if instance == nil {
		return nil, ErrNoInstanceAvailable
	}
	return instance, nil
}

// GetAllInstances 返回当前全部实例的快照
func (p *Provider[T]) GetAllInstances() ([]*discovery.ServiceInstance[T], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrProviderClosed
	}
	return p.snapshotLocked(), nil
}

// snapshotLocked 生成按实例 ID 排序的稳定快照（调用前必须持有读锁）
// 排序保证轮询策略在 map 迭代随机性下仍然均匀
func (p *Provider[T]) snapshotLocked() []*discovery.ServiceInstance[T] {
	snapshot := make([]*discovery.ServiceInstance[T], 0, len(p.instances))
	for _, instance := range p.instances {
		snapshot = append(snapshot, instance)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].ID() < snapshot[j].ID()
	})
	return snapshot
}

// Close 停止监听并释放资源，幂等
func (p *Provider[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	<-p.done

	p.logger.Debug("provider stopped", clog.String("service_name", p.serviceName))
	return nil
}
