package registry

import (
	"fmt"
	"testing"

	"github.com/ceyewan/beacon/discovery"
)

// newTestInstances 构造 n 个确定性的测试实例
func newTestInstances(t *testing.T, n int) []*discovery.ServiceInstance[map[string]string] {
	t.Helper()
	instances := make([]*discovery.ServiceInstance[map[string]string], 0, n)
	for i := 0; i < n; i++ {
		instance, err := discovery.NewServiceInstance[map[string]string](
			"svc-a", fmt.Sprintf("id-%d", i), "10.0.0.1", nil, nil, nil, int64(i))
		if err != nil {
			t.Fatalf("Failed to create instance: %v", err)
		}
		instances = append(instances, instance)
	}
	return instances
}

func TestRoundRobinCycles(t *testing.T) {
	instances := newTestInstances(t, 3)
	strategy := NewRoundRobin[map[string]string]()

	// 连续两轮，每个实例各出现两次且顺序循环
	for round := 0; round < 2; round++ {
		for i := 0; i < 3; i++ {
			got := strategy.Select(instances)
			if got == nil {
				t.Fatal("Select returned nil with non-empty candidates")
			}
			want := fmt.Sprintf("id-%d", i)
			if got.ID() != want {
				t.Errorf("round %d pick %d = %s, want %s", round, i, got.ID(), want)
			}
		}
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	strategy := NewRoundRobin[map[string]string]()
	if got := strategy.Select(nil); got != nil {
		t.Errorf("Select(nil) = %v, want nil", got)
	}
}

func TestRandomSelectsMember(t *testing.T) {
	instances := newTestInstances(t, 3)
	strategy := NewRandom[map[string]string]()

	ids := map[string]bool{"id-0": true, "id-1": true, "id-2": true}
	for i := 0; i < 50; i++ {
		got := strategy.Select(instances)
		if got == nil {
			t.Fatal("Select returned nil with non-empty candidates")
		}
		if !ids[got.ID()] {
			t.Fatalf("Select returned unknown instance %s", got.ID())
		}
	}

	if got := strategy.Select(nil); got != nil {
		t.Errorf("Select(nil) = %v, want nil", got)
	}
}

func TestStickyKeepsSelection(t *testing.T) {
	instances := newTestInstances(t, 3)
	strategy := NewSticky(NewRoundRobin[map[string]string]())

	first := strategy.Select(instances)
	if first == nil {
		t.Fatal("Select returned nil")
	}
	for i := 0; i < 10; i++ {
		if got := strategy.Select(instances); got.ID() != first.ID() {
			t.Fatalf("sticky selection changed from %s to %s", first.ID(), got.ID())
		}
	}
}

func TestStickyReselectsAfterRemoval(t *testing.T) {
	instances := newTestInstances(t, 3)
	strategy := NewSticky(NewRoundRobin[map[string]string]())

	first := strategy.Select(instances)
	if first == nil {
		t.Fatal("Select returned nil")
	}

	// 移除当前粘住的实例
	var remaining []*discovery.ServiceInstance[map[string]string]
	for _, instance := range instances {
		if instance.ID() != first.ID() {
			remaining = append(remaining, instance)
		}
	}

	second := strategy.Select(remaining)
	if second == nil {
		t.Fatal("Select returned nil after removal")
	}
	if second.ID() == first.ID() {
		t.Errorf("sticky still returns removed instance %s", first.ID())
	}

	// 新选择同样保持粘性
	if got := strategy.Select(remaining); got.ID() != second.ID() {
		t.Errorf("sticky selection changed from %s to %s", second.ID(), got.ID())
	}
}

func TestStickyEmptyCandidates(t *testing.T) {
	strategy := NewSticky(NewRandom[map[string]string]())
	if got := strategy.Select(nil); got != nil {
		t.Errorf("Select(nil) = %v, want nil", got)
	}
}
