package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdEndpoint 返回测试用 Etcd 地址
// 默认 localhost:2379，可用 ETCD_ENDPOINTS 环境变量覆盖
func EtcdEndpoint() string {
	if ep := os.Getenv("ETCD_ENDPOINTS"); ep != "" {
		return ep
	}
	return "localhost:2379"
}

// NewEtcdClient 创建 Etcd 客户端（不触发连接），测试结束自动关闭
func NewEtcdClient(t *testing.T) *clientv3.Client {
	t.Helper()
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{EtcdEndpoint()},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create etcd client: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// GetEtcdClient 创建 Etcd 客户端并验证连通性
// Etcd 不可达时跳过当前测试
func GetEtcdClient(t *testing.T) *clientv3.Client {
	t.Helper()
	client := NewEtcdClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, client.Endpoints()[0]); err != nil {
		t.Skipf("etcd not available, skipping test: %v", err)
	}

	return client
}
