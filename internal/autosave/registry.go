package autosave

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// RegistryOptions 是新会话共享的配置。
type RegistryOptions struct {
	Thresholds *Thresholds
	Clock      Clock
	Logger     *slog.Logger
}

// Registry 按 ID 保存进行中的编辑会话。
type Registry struct {
	saver  Saver
	opts   RegistryOptions
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建会话注册表。
func NewRegistry(saver Saver, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{saver: saver, opts: opts, logger: logger, sessions: make(map[string]*Session)}
}

// Open 创建新会话。opts 中的 Saver、Clock、Thresholds 未设置时使用注册表的配置。
func (r *Registry) Open(opts SessionOptions) *Session {
	if opts.Saver == nil {
		opts.Saver = r.saver
	}
	if opts.Clock == nil {
		opts.Clock = r.opts.Clock
	}
	if opts.Thresholds == nil {
		opts.Thresholds = r.opts.Thresholds
	}
	if opts.Logger == nil {
		opts.Logger = r.logger
	}

	id := uuid.NewString()
	if opts.OnError == nil {
		logger := r.logger
		opts.OnError = func(err error) {
			logger.Error("editor session save failed", "session_id", id, "error", err)
		}
	}

	session := NewSession(id, opts)
	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	return session
}

// Get 查找会话。
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Close 写入会话中未保存的内容并移除会话。
func (r *Registry) Close(id string) (Snapshot, bool) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return session.Close(), true
}

// CloseAll 关闭全部会话，用于退出登录或进程退出。
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// Len 返回会话数量。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
