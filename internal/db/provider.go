package db

import (
	"context"
	"encoding/hex"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// DefaultNamespace 是未登录时使用的存储命名空间。
const DefaultNamespace = "local"

// Provider 按命名空间懒加载适配器，Reset 后下一次 Acquire 会重新建立连接。
// 由组合根创建并注入各个服务。
type Provider struct {
	mu        sync.Mutex
	base      Options
	fallback  string
	namespace string
	current   *Adapter
}

// NewProvider 创建 Provider，namespace 为空时使用 DefaultNamespace。
func NewProvider(base Options, namespace string) *Provider {
	fallback := normalizeNamespace(namespace)
	return &Provider{base: base, fallback: fallback, namespace: fallback}
}

// DatabaseName 根据命名空间生成数据库名称，避免身份信息出现在文件名中。
func DatabaseName(namespace string) string {
	sum := blake2b.Sum256([]byte(normalizeNamespace(namespace)))
	return "wechatpad-" + hex.EncodeToString(sum[:8])
}

// Namespace 返回当前命名空间。
func (p *Provider) Namespace() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.namespace
}

// Acquire 返回当前命名空间的适配器，首次调用时创建并初始化。
func (p *Provider) Acquire(ctx context.Context) (*Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.current.IsAvailable() {
		return p.current, nil
	}

	opts := p.base
	opts.Name = DatabaseName(p.namespace)
	adapter := NewAdapter(opts)
	if err := adapter.Initialize(ctx); err != nil {
		return nil, err
	}
	p.current = adapter
	return adapter, nil
}

// Reset 关闭当前连接并切换命名空间，namespace 为空时回到默认命名空间。
func (p *Provider) Reset(namespace string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.current != nil {
		err = p.current.Close()
		p.current = nil
	}
	if strings.TrimSpace(namespace) == "" {
		p.namespace = p.fallback
	} else {
		p.namespace = normalizeNamespace(namespace)
	}
	return err
}

// Close 关闭当前连接。
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil
	}
	err := p.current.Close()
	p.current = nil
	return err
}

func normalizeNamespace(namespace string) string {
	trimmed := strings.ToLower(strings.TrimSpace(namespace))
	if trimmed == "" {
		return DefaultNamespace
	}
	return trimmed
}
