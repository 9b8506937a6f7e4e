package registry

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/beacon/discovery"
)

// Strategy 实例选择策略：从候选实例列表中挑出一个。
//
// 传入的切片可能为空，此时返回 nil。实现需要自身并发安全，
// 同一个策略实例会被 Provider 在多个协程间共享。
type Strategy[T any] interface {
	Select(instances []*discovery.ServiceInstance[T]) *discovery.ServiceInstance[T]
}

// NewRoundRobin 轮询策略：按调用次数依次循环所有实例
func NewRoundRobin[T any]() Strategy[T] {
	return &roundRobinStrategy[T]{}
}

type roundRobinStrategy[T any] struct {
	counter atomic.Uint64
}

func (s *roundRobinStrategy[T]) Select(instances []*discovery.ServiceInstance[T]) *discovery.ServiceInstance[T] {
	if len(instances) == 0 {
		return nil
	}
	idx := (s.counter.Add(1) - 1) % uint64(len(instances))
	return instances[idx]
}

// NewRandom 随机策略：等概率选择任一实例
func NewRandom[T any]() Strategy[T] {
	return &randomStrategy[T]{}
}

type randomStrategy[T any] struct{}

func (s *randomStrategy[T]) Select(instances []*discovery.ServiceInstance[T]) *discovery.ServiceInstance[T] {
	if len(instances) == 0 {
		return nil
	}
	return instances[rand.IntN(len(instances))]
}

// NewSticky 粘性策略：首次通过底层策略选定一个实例后保持不变，
// 直到该实例从候选列表中消失才重新选择
func NewSticky[T any](underlying Strategy[T]) Strategy[T] {
	return &stickyStrategy[T]{underlying: underlying}
}

type stickyStrategy[T any] struct {
	underlying Strategy[T]
	mu         sync.Mutex
	current    *discovery.ServiceInstance[T]
}

func (s *stickyStrategy[T]) Select(instances []*discovery.ServiceInstance[T]) *discovery.ServiceInstance[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		for _, instance := range instances {
			if instance.ID() == s.current.ID() {
				// 记录可能被更新过（同 ID 重新注册），跟随最新版本
				s.current = instance
				return s.current
			}
		}
		s.current = nil
	}

	s.current = s.underlying.Select(instances)
	return s.current
}
