package db

import (
	"github.com/wechatpad/internal/content"
	"gorm.io/datatypes"
)

// 文档的持久化状态，与自动保存的 TEMP/DRAFT/NORMAL 阶段无关。
const (
	DocumentStatusDraft     = "draft"
	DocumentStatusPublished = "published"
	DocumentStatusArchived  = "archived"
)

// Document 定义了文章模型
type Document struct {
	ID                string           `gorm:"primaryKey;size:64" json:"id"`
	Title             string           `gorm:"index" json:"title"`
	Content           string           `gorm:"type:text" json:"content"`
	TemplateID        string           `gorm:"size:128" json:"templateId"`
	TemplateVariables datatypes.JSON   `json:"templateVariables,omitempty"`
	Status            string           `gorm:"size:16;index;default:draft" json:"status"`
	Metadata          content.Metadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	Preview           string           `gorm:"type:text" json:"preview"`
	Timestamps
}

// TableName 指定自定义表名。
func (Document) TableName() string {
	return CollectionDocuments
}

// RecordID 实现 Record。
func (d *Document) RecordID() string {
	return d.ID
}

// SearchField 实现 Searchable。
func (d *Document) SearchField(name string) (string, bool) {
	switch name {
	case "title":
		return d.Title, true
	case "content":
		return d.Content, true
	case "preview":
		return d.Preview, true
	case "status":
		return d.Status, true
	case "templateId":
		return d.TemplateID, true
	}
	return "", false
}

// RefreshDerived 根据正文重新计算元数据与预览。
func (d *Document) RefreshDerived() {
	d.Metadata = content.Analyze(d.Content)
	d.Preview = content.Preview(d.Content)
}

// IsValidDocumentStatus 判断状态值是否合法。
func IsValidDocumentStatus(status string) bool {
	switch status {
	case DocumentStatusDraft, DocumentStatusPublished, DocumentStatusArchived:
		return true
	}
	return false
}
