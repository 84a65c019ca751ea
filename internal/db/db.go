package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SchemaVersion 是当前数据库模式版本，记录在 PRAGMA user_version 中。
const SchemaVersion = 2

var (
	// ErrUnavailable 表示存储引擎不可用或尚未初始化。
	ErrUnavailable = errors.New("storage engine unavailable")
	// ErrTransaction 表示底层事务失败（中止、提交失败或引擎错误）。
	ErrTransaction = errors.New("storage transaction failed")
	// ErrUnknownCollection 表示集合未在模式中声明。
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnknownIndex 表示集合没有对应的索引。
	ErrUnknownIndex = errors.New("unknown index")
	// ErrOutOfScope 表示访问了事务范围之外的集合。
	ErrOutOfScope = errors.New("collection is not in transaction scope")
	// ErrReadOnly 表示在只读事务中尝试写入。
	ErrReadOnly = errors.New("write attempted in read-only transaction")

	errReadOnlyRollback = errors.New("read-only transaction rollback")
	memoryCounter       atomic.Int64
)

// Mode 描述事务的读写模式。
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Runner 能够在给定集合上执行事务，Adapter 与 Tx 都实现了它。
type Runner interface {
	ExecuteTransaction(ctx context.Context, collections []string, mode Mode, fn func(tx *Tx) error) error
}

// Source 解析当前可用的存储适配器。
type Source interface {
	Acquire(ctx context.Context) (*Adapter, error)
}

// Options 配置适配器打开的数据库。
type Options struct {
	// Dir 是数据库文件所在目录，为空时使用当前目录。
	Dir string
	// Name 是数据库名称，文件名为 <Name>.db。
	Name string
	// Memory 为 true 时打开私有的内存数据库。
	Memory bool
	// Debug 为 true 时输出 SQL 日志。
	Debug  bool
	Logger *slog.Logger
	Now    func() time.Time
}

// Adapter 持有单个数据库连接与模式，并提供按集合划定范围的事务。
type Adapter struct {
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.RWMutex
	gdb       *gorm.DB
	available bool
	locks     keyedMutex
}

// NewAdapter 创建尚未初始化的适配器。
func NewAdapter(opts Options) *Adapter {
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = "wechatpad"
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Adapter{opts: opts, logger: log, now: now}
}

// Open 创建并初始化适配器。
func Open(ctx context.Context, opts Options) (*Adapter, error) {
	adapter := NewAdapter(opts)
	if err := adapter.Initialize(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}

// Name 返回数据库名称。
func (a *Adapter) Name() string {
	return a.opts.Name
}

// Path 返回数据库文件路径，内存数据库返回空字符串。
func (a *Adapter) Path() string {
	if a.opts.Memory {
		return ""
	}
	return filepath.Join(a.opts.Dir, a.opts.Name+".db")
}

// Now 返回适配器使用的当前时间。
func (a *Adapter) Now() time.Time {
	return a.now()
}

// IsAvailable 在初始化完成且连接可用时返回 true。
func (a *Adapter) IsAvailable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available && a.gdb != nil
}

// Acquire 实现 Source，适配器不可用时返回 ErrUnavailable。
func (a *Adapter) Acquire(context.Context) (*Adapter, error) {
	if !a.IsAvailable() {
		return nil, ErrUnavailable
	}
	return a, nil
}

// Initialize 打开数据库并执行模式迁移。重复调用是安全的。
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.available {
		return nil
	}

	dsn, err := a.dataSource()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logMode := logger.Silent
	if a.opts.Debug {
		logMode = logger.Info
	}
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logMode),
		NowFunc: func() time.Time { return a.now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrUnavailable, a.opts.Name, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// SQLite 只允许单写者，单连接让事务天然串行
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return fmt.Errorf("%w: ping %s: %v", ErrUnavailable, a.opts.Name, err)
	}

	if err := migrate(ctx, gdb); err != nil {
		sqlDB.Close()
		return fmt.Errorf("%w: migrate %s: %v", ErrUnavailable, a.opts.Name, err)
	}

	a.gdb = gdb
	a.available = true
	a.logger.Debug("storage initialized", "database", a.opts.Name, "memory", a.opts.Memory)
	return nil
}

// Close 关闭连接，之后 IsAvailable 返回 false。
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.gdb == nil {
		return nil
	}
	sqlDB, err := a.gdb.DB()
	a.gdb = nil
	a.available = false
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Lock 获取某个键（通常是文档 ID）的互斥锁，返回释放函数。
func (a *Adapter) Lock(key string) func() {
	return a.locks.lock(key)
}

// ExecuteTransaction 在给定集合与模式下执行 fn。fn 返回错误、发生 panic
// 或提交失败时事务回滚，并且只返回一个错误；只读事务总是回滚。
func (a *Adapter) ExecuteTransaction(ctx context.Context, collections []string, mode Mode, fn func(tx *Tx) error) error {
	a.mu.RLock()
	gdb, available := a.gdb, a.available
	a.mu.RUnlock()
	if !available || gdb == nil {
		return ErrUnavailable
	}

	scope, err := newScope(collections)
	if err != nil {
		return err
	}

	var fnErr error
	err = gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = runGuarded(fn, &Tx{db: tx, scope: scope, mode: mode, now: a.now})
		if fnErr != nil {
			return fnErr
		}
		if mode == ReadOnly {
			return errReadOnlyRollback
		}
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errReadOnlyRollback) && fnErr == nil:
		return nil
	case fnErr != nil:
		return fnErr
	default:
		return Wrap(err)
	}
}

// Wrap 将引擎错误标记为 ErrTransaction，已标记或为空时原样返回。
func Wrap(err error) error {
	if err == nil || errors.Is(err, ErrTransaction) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransaction, err)
}

func runGuarded(fn func(tx *Tx) error, tx *Tx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: aborted: %v", ErrTransaction, r)
		}
	}()
	return fn(tx)
}

func (a *Adapter) dataSource() (string, error) {
	if a.opts.Memory {
		return fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", a.opts.Name, memoryCounter.Add(1)), nil
	}

	path := a.Path()
	if err := ensureParentDir(path); err != nil {
		return "", err
	}
	if err := checkWritable(filepath.Dir(path)); err != nil {
		return "", err
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL", nil
}

func migrate(ctx context.Context, gdb *gorm.DB) error {
	conn := gdb.WithContext(ctx)

	var current int
	if err := conn.Raw("PRAGMA user_version").Scan(&current).Error; err != nil {
		return err
	}

	if err := conn.AutoMigrate(models()...); err != nil {
		return err
	}

	// 版本 1 的文档可能缺少状态，统一回填为草稿
	if current < 2 {
		if err := conn.Model(&Document{}).
			Where("status = '' OR status IS NULL").
			Update("status", DocumentStatusDraft).Error; err != nil {
			return err
		}
	}

	if current != SchemaVersion {
		if err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}

func checkWritable(dir string) error {
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return fmt.Errorf("database directory is not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
