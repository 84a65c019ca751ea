package db

import (
	"encoding/hex"

	"github.com/wechatpad/internal/content"
	"golang.org/x/crypto/blake2b"
	"gorm.io/datatypes"
)

// 版本来源标记。
const (
	ChangeTypeAutoSave   = "auto_save"
	ChangeTypeManualSave = "manual_save"
	ChangeTypeRestore    = "restore"
)

// DocumentVersion 记录文档的历史版本快照。
type DocumentVersion struct {
	ID                string           `gorm:"primaryKey;size:64" json:"id"`
	DocumentID        string           `gorm:"size:64;index" json:"documentId"`
	Title             string           `json:"title"`
	Content           string           `gorm:"type:text" json:"content"`
	TemplateID        string           `gorm:"size:128" json:"templateId"`
	TemplateVariables datatypes.JSON   `json:"templateVariables,omitempty"`
	Metadata          content.Metadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	ChangeType        string           `gorm:"size:16;index" json:"changeType"`
	ChangeReason      string           `json:"changeReason"`
	VersionNumber     int              `json:"versionNumber"`
	ContentHash       string           `gorm:"size:64" json:"contentHash,omitempty"`
	Timestamps
}

// TableName 指定自定义表名。
func (DocumentVersion) TableName() string {
	return CollectionVersions
}

// RecordID 实现 Record。
func (v *DocumentVersion) RecordID() string {
	return v.ID
}

// SearchField 实现 Searchable。
func (v *DocumentVersion) SearchField(name string) (string, bool) {
	switch name {
	case "title":
		return v.Title, true
	case "content":
		return v.Content, true
	case "changeReason":
		return v.ChangeReason, true
	case "changeType":
		return v.ChangeType, true
	case "documentId":
		return v.DocumentID, true
	}
	return "", false
}

// IsValidChangeType 判断版本来源是否合法。
func IsValidChangeType(changeType string) bool {
	switch changeType {
	case ChangeTypeAutoSave, ChangeTypeManualSave, ChangeTypeRestore:
		return true
	}
	return false
}

// ContentHash 计算标题与正文的 blake2b 摘要，用于判断快照内容是否变化。
func ContentHash(title, body string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
