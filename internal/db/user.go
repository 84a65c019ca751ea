package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrAccountNotFound 表示账号不存在。
var ErrAccountNotFound = errors.New("account not found")

// Account 定义了本地账号，用户名同时决定其存储命名空间。
type Account struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
}

// Registry 是所有命名空间共享的账号库。
type Registry struct {
	gdb *gorm.DB
}

// OpenRegistry 打开账号库；memory 为 true 时使用内存数据库。
func OpenRegistry(dir string, memory bool) (*Registry, error) {
	dsn := ""
	if memory {
		dsn = fmt.Sprintf("file:accounts-%d?mode=memory&cache=shared", memoryCounter.Add(1))
	} else {
		path := filepath.Join(dir, "accounts.db")
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		dsn = path + "?_busy_timeout=5000"
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("%w: open accounts: %v", ErrUnavailable, err)
	}
	if sqlDB, err := gdb.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := gdb.AutoMigrate(&Account{}); err != nil {
		return nil, fmt.Errorf("%w: migrate accounts: %v", ErrUnavailable, err)
	}
	return &Registry{gdb: gdb}, nil
}

// EnsureAccount 存在性检查：若提供的用户名与密码均非空且不存在对应账号，则创建一个 bcrypt 哈希的账号。
func (r *Registry) EnsureAccount(ctx context.Context, username, password string) error {
	trimmedUser := strings.TrimSpace(username)
	trimmedPassword := strings.TrimSpace(password)
	if trimmedUser == "" || trimmedPassword == "" {
		return nil
	}

	if _, err := r.Find(ctx, trimmedUser); err == nil {
		return nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}

	_, err := r.Create(ctx, trimmedUser, trimmedPassword)
	return err
}

// Create 新建账号并保存密码的 bcrypt 哈希。
func (r *Registry) Create(ctx context.Context, username, password string) (*Account, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	account := Account{Username: strings.TrimSpace(username), PasswordHash: string(hashed)}
	if err := r.gdb.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, Wrap(err)
	}
	return &account, nil
}

// Find 按用户名查找账号。
func (r *Registry) Find(ctx context.Context, username string) (*Account, error) {
	var account Account
	if err := r.gdb.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, Wrap(err)
	}
	return &account, nil
}

// Close 关闭账号库连接。
func (r *Registry) Close() error {
	sqlDB, err := r.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
