package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/wechatpad/internal/db"
	"golang.org/x/crypto/bcrypt"
)

// AccountService 校验本地账号，并在登录或退出时切换存储命名空间。
type AccountService struct {
	registry *db.Registry
	provider *db.Provider
	logger   *slog.Logger
}

// NewAccountService 构造 AccountService。
func NewAccountService(registry *db.Registry, provider *db.Provider, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{registry: registry, provider: provider, logger: logger}
}

// Login 校验用户名与密码，成功后切换到该用户独立的数据库。
func (s *AccountService) Login(ctx context.Context, username, password string) (*db.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidLogin
	}

	account, err := s.registry.Find(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return nil, ErrInvalidLogin
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidLogin
	}

	if err := s.provider.Reset(account.Username); err != nil {
		s.logger.Warn("close previous namespace failed", "error", err)
	}
	s.logger.Info("namespace switched", "user", account.Username)
	return account, nil
}

// Logout 回到默认命名空间。
func (s *AccountService) Logout(ctx context.Context) error {
	if err := s.provider.Reset(""); err != nil {
		s.logger.Warn("close namespace failed", "error", err)
	}
	return nil
}

// Namespace 返回当前使用的命名空间。
func (s *AccountService) Namespace() string {
	return s.provider.Namespace()
}
