package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
)

// QuotaInfo 描述本地存储的配额与用量，单位为字节。
type QuotaInfo struct {
	Quota      int64   `json:"quota"`
	Usage      int64   `json:"usage"`
	Available  int64   `json:"available"`
	Percentage float64 `json:"percentage"`
}

// QuotaChecker 估算当前可用的存储空间。
type QuotaChecker interface {
	CheckStorageQuota(ctx context.Context) QuotaInfo
}

// QuotaService 基于数据库文件大小与磁盘剩余空间估算配额。
type QuotaService struct {
	source db.Source
	limit  int64
	logger *slog.Logger
}

// NewQuotaService 构造 QuotaService，limit > 0 时作为配额上限。
func NewQuotaService(source db.Source, limit int64, logger *slog.Logger) *QuotaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaService{source: source, limit: limit, logger: logger}
}

// CheckStorageQuota 返回配额估算。无法估算时返回全零值，从不失败。
func (s *QuotaService) CheckStorageQuota(ctx context.Context) QuotaInfo {
	info, err := s.estimate(ctx)
	if err != nil {
		s.logger.Debug("storage quota unavailable", "error", err)
		return QuotaInfo{}
	}
	return info
}

// EnsureCapacity 在估算可用且空间不足时返回 ErrQuotaExceeded。
func (s *QuotaService) EnsureCapacity(ctx context.Context, needed int64) error {
	return ensureCapacity(s.CheckStorageQuota(ctx), needed)
}

func ensureCapacity(info QuotaInfo, needed int64) error {
	if info.Quota <= 0 || needed <= info.Available {
		return nil
	}
	return fmt.Errorf("%w: need %s, %s available", ErrQuotaExceeded,
		humanize.IBytes(uint64(needed)), humanize.IBytes(uint64(info.Available)))
}

func (s *QuotaService) estimate(ctx context.Context) (QuotaInfo, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return QuotaInfo{}, err
	}

	var usage, quota int64
	if path := adapter.Path(); path != "" {
		usage = databaseFileSize(path)
		free, err := diskAvailable(filepath.Dir(path))
		switch {
		case err == nil:
			quota = usage + free
		case s.limit <= 0:
			return QuotaInfo{}, err
		}
	} else {
		stats, err := store.CollectStats(ctx, adapter)
		if err != nil {
			return QuotaInfo{}, err
		}
		usage = stats.TotalBytes
	}

	if s.limit > 0 && (quota == 0 || s.limit < quota) {
		quota = s.limit
	}
	if quota <= 0 {
		return QuotaInfo{}, errors.New("storage quota is unknown")
	}

	available := quota - usage
	if available < 0 {
		available = 0
	}
	return QuotaInfo{
		Quota:      quota,
		Usage:      usage,
		Available:  available,
		Percentage: float64(usage) / float64(quota) * 100,
	}, nil
}

func databaseFileSize(path string) int64 {
	var total int64
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if fi, err := os.Stat(path + suffix); err == nil {
			total += fi.Size()
		}
	}
	return total
}
