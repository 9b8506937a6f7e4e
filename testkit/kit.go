// Package testkit 提供集成测试的公共依赖：测试 Logger、唯一 ID、
// 以及带连通性检查的 Etcd 客户端。
//
// 集成测试依赖本地可用的 Etcd（默认 localhost:2379，可用 ETCD_ENDPOINTS
// 环境变量覆盖），不可达时测试自动跳过。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/beacon/clog"
)

// NewLogger 返回一个用于测试的 logger
// 只输出 error 级别以上日志，避免干扰测试输出
func NewLogger() clog.Logger {
	logger, err := clog.New(&clog.Config{
		Level:  "error",
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// NewID 返回一个唯一的测试 ID (UUID v4 前 8 位)
// 用于生成唯一的命名空间或实例 ID 后缀，避免测试间数据冲突
func NewID() string {
	return uuid.New().String()[0:8]
}
