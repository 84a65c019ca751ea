package db

// Setting 存储编辑器本地的键值配置，导出时整体作为 settings 快照。
type Setting struct {
	Key   string `gorm:"primaryKey;size:100" json:"key"`
	Value string `gorm:"type:text" json:"value"`
	Timestamps
}

// TableName 自定义表名以保持命名一致。
func (Setting) TableName() string {
	return CollectionSettings
}

// RecordID 实现 Record。
func (s *Setting) RecordID() string {
	return s.Key
}

const (
	// SettingKeyPersistenceMode 表示自动保存的持久化模式。
	SettingKeyPersistenceMode = "persistence_mode"
	// SettingKeyDefaultTemplate 表示新建文档默认使用的模板。
	SettingKeyDefaultTemplate = "default_template_id"
	// SettingKeyLastExportAt 记录最近一次导出的时间。
	SettingKeyLastExportAt = "last_export_at"
)
