package service

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
	"gorm.io/gorm/clause"
)

// 自动保存的持久化模式。
const (
	PersistenceLocal  = "local"
	PersistenceHybrid = "hybrid"
	PersistenceServer = "server"
)

const settingKeyMaxLength = 100

// SettingService 提供编辑器键值设置的读取与更新能力。
type SettingService struct {
	source db.Source
}

// NewSettingService 构造 SettingService。
func NewSettingService(source db.Source) *SettingService {
	return &SettingService{source: source}
}

// All 读取全部设置。
func (s *SettingService) All(ctx context.Context) (map[string]string, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	records, err := store.GetAll[db.Setting](ctx, adapter, db.CollectionSettings)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	result := make(map[string]string, len(records))
	for _, record := range records {
		result[record.Key] = record.Value
	}
	return result, nil
}

// Get 读取单个设置，不存在时 ok 为 false。
func (s *SettingService) Get(ctx context.Context, key string) (string, bool, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return "", false, err
	}
	record, err := store.Get[db.Setting](ctx, adapter, db.CollectionSettings, key)
	if err != nil {
		return "", false, err
	}
	if record == nil {
		return "", false, nil
	}
	return record.Value, true, nil
}

// Update 保存设置，已知键会先校验取值。返回更新后的全部设置。
func (s *SettingService) Update(ctx context.Context, values map[string]string) (map[string]string, error) {
	for key, value := range values {
		if err := validateSetting(key, value); err != nil {
			return nil, err
		}
	}

	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionSettings}, db.ReadWrite, func(tx *db.Tx) error {
		for key, value := range values {
			if err := upsertSetting(tx, strings.TrimSpace(key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.All(ctx)
}

// PersistenceMode 返回已保存的持久化模式，未设置时返回 fallback。
func (s *SettingService) PersistenceMode(ctx context.Context, fallback string) string {
	value, ok, err := s.Get(ctx, db.SettingKeyPersistenceMode)
	if err != nil || !ok || !IsPersistenceMode(value) {
		return fallback
	}
	return value
}

// IsPersistenceMode 判断持久化模式是否合法。
func IsPersistenceMode(mode string) bool {
	switch mode {
	case PersistenceLocal, PersistenceHybrid, PersistenceServer:
		return true
	}
	return false
}

func validateSetting(key, value string) error {
	if err := validation.Validate(strings.TrimSpace(key),
		validation.Required,
		validation.Length(1, settingKeyMaxLength),
	); err != nil {
		return ValidationError(fmt.Errorf("setting key: %w", err))
	}
	if key == db.SettingKeyPersistenceMode {
		if err := validation.Validate(value, validation.In(PersistenceLocal, PersistenceHybrid, PersistenceServer)); err != nil {
			return ValidationError(fmt.Errorf("%s: %w", key, err))
		}
	}
	return nil
}

func upsertSetting(tx *db.Tx, key, value string) error {
	q, err := tx.Collection(db.CollectionSettings, true)
	if err != nil {
		return err
	}
	record := db.Setting{Key: key, Value: value}
	record.Stamp(tx.Now(), false)
	err = q.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	return db.Wrap(err)
}
