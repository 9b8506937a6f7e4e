// Package config 为嵌入 Beacon 的服务提供统一的配置加载能力。
// 基于 Viper 实现，支持多源加载和热更新。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 配置文件
//   - 热更新支持：监听配置文件变化，自动通知应用
//
// 基本使用：
//
//	loader, err := config.New(
//	    config.WithConfigName("beacon"),
//	    config.WithConfigPaths("./config"),
//	    config.WithEnvPrefix("BEACON"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := loader.Load(ctx); err != nil {
//	    return err
//	}
//
//	var cfg registry.Config
//	if err := loader.UnmarshalKey("registry", &cfg); err != nil {
//	    return err
//	}
package config

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/beacon/xerrors"
)

// ErrNotLoaded 在 Load 之前调用读取方法
var ErrNotLoaded = xerrors.New("config not loaded")

// Event 配置变更事件
type Event struct {
	File      string    // 发生变化的配置文件
	Timestamp time.Time // 变化时间
}

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并初始化内部状态
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置文件变化，通过 context 取消监听
	Watch(ctx context.Context) (<-chan Event, error)
}

// New 创建配置加载器
func New(opts ...Option) (Loader, error) {
	options := &Options{}
	for _, o := range opts {
		o(options)
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	return &loader{
		v:    viper.New(),
		opts: options,
	}, nil
}

// loader 基于 Viper 的 Loader 实现（内部使用）
type loader struct {
	v      *viper.Viper
	opts   *Options
	mu     sync.Mutex
	loaded bool
	subs   []chan Event
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.v.SetConfigName(l.opts.Name)
	l.v.SetConfigType(l.opts.FileType)
	for _, path := range l.opts.Paths {
		l.v.AddConfigPath(path)
	}

	// 环境变量优先级最高，先设置确保能捕获所有环境变量
	l.v.SetEnvPrefix(l.opts.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// .env 文件在配置文件之前加载
	if l.opts.DotEnv {
		// .env 不存在时静默跳过
		_ = godotenv.Load()
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return xerrors.Wrapf(err, "read config file %s", l.opts.Name)
		}
		// 没有配置文件时允许纯环境变量运行
	}

	l.loaded = true
	return nil
}

// Get 获取原始配置值
func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体
func (l *loader) Unmarshal(v any) error {
	if !l.isLoaded() {
		return ErrNotLoaded
	}
	return xerrors.Wrap(l.v.Unmarshal(v), "unmarshal config")
}

// UnmarshalKey 将指定 Key 的配置反序列化到结构体
func (l *loader) UnmarshalKey(key string, v any) error {
	if !l.isLoaded() {
		return ErrNotLoaded
	}
	return xerrors.Wrapf(l.v.UnmarshalKey(key, v), "unmarshal config key %s", key)
}

// Watch 监听配置文件变化
//
// 返回的通道在每次配置文件变化时收到一个事件；ctx 取消后通道关闭。
func (l *loader) Watch(ctx context.Context) (<-chan Event, error) {
	if !l.isLoaded() {
		return nil, ErrNotLoaded
	}

	ch := make(chan Event, 4)

	l.mu.Lock()
	first := len(l.subs) == 0
	l.subs = append(l.subs, ch)
	l.mu.Unlock()

	if first {
		l.v.OnConfigChange(func(e fsnotify.Event) {
			event := Event{File: e.Name, Timestamp: time.Now()}
			l.mu.Lock()
			for _, sub := range l.subs {
				select {
				case sub <- event:
				default:
					// 订阅方未及时消费则丢弃本次事件
				}
			}
			l.mu.Unlock()
		})
		l.v.WatchConfig()
	}

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		for i, sub := range l.subs {
			if sub == ch {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (l *loader) isLoaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}
