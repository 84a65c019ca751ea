package db

import (
	"fmt"
	"time"
)

// 集合名称，对应数据库中的表。
const (
	CollectionDocuments = "documents"
	CollectionVersions  = "versions"
	CollectionImages    = "images"
	CollectionSettings  = "settings"
)

// Record 是可以被通用存储工具读写的记录。
type Record interface {
	RecordID() string
	// Stamp 刷新 updatedAt 并补齐 createdAt；keep 为 true 时保留已有时间戳。
	Stamp(now time.Time, keep bool)
}

// Searchable 允许通用搜索按字段名读取文本。
type Searchable interface {
	SearchField(name string) (string, bool)
}

// Timestamps 是所有集合共享的创建与更新时间。
type Timestamps struct {
	CreatedAt Timestamp `gorm:"index" json:"createdAt"`
	UpdatedAt Timestamp `gorm:"index" json:"updatedAt"`
}

// Stamp 实现 Record。
func (t *Timestamps) Stamp(now time.Time, keep bool) {
	stamp := At(now)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = stamp
	}
	if keep && !t.UpdatedAt.IsZero() {
		return
	}
	t.UpdatedAt = stamp
}

type collectionSchema struct {
	model      interface{}
	primaryKey string
	indexes    map[string]string
	fields     map[string]string
}

// 每个集合的主键与二级索引，键为对外字段名，值为列名。
var collections = map[string]collectionSchema{
	CollectionDocuments: {
		model:      &Document{},
		primaryKey: "id",
		indexes: map[string]string{
			"id":        "id",
			"title":     "title",
			"status":    "status",
			"createdAt": "created_at",
			"updatedAt": "updated_at",
		},
		fields: map[string]string{
			"templateId": "template_id",
		},
	},
	CollectionVersions: {
		model:      &DocumentVersion{},
		primaryKey: "id",
		indexes: map[string]string{
			"id":         "id",
			"documentId": "document_id",
			"changeType": "change_type",
			"createdAt":  "created_at",
			"updatedAt":  "updated_at",
		},
		fields: map[string]string{
			"versionNumber": "version_number",
			"title":         "title",
		},
	},
	CollectionImages: {
		model:      &Image{},
		primaryKey: "id",
		indexes: map[string]string{
			"id":         "id",
			"filename":   "filename",
			"uploadedAt": "uploaded_at",
			"createdAt":  "created_at",
			"updatedAt":  "updated_at",
		},
		fields: map[string]string{
			"size":         "size",
			"originalName": "original_name",
		},
	},
	CollectionSettings: {
		model:      &Setting{},
		primaryKey: "key",
		indexes: map[string]string{
			"key":       "key",
			"updatedAt": "updated_at",
		},
	},
}

// Collections 返回全部集合名称。
func Collections() []string {
	return []string{CollectionDocuments, CollectionVersions, CollectionImages, CollectionSettings}
}

// IsCollection 判断集合名称是否已在模式中声明。
func IsCollection(name string) bool {
	_, ok := collections[name]
	return ok
}

// IndexColumn 将索引名解析为列名。
func IndexColumn(collection, index string) (string, error) {
	schema, ok := collections[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	column, ok := schema.indexes[index]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrUnknownIndex, collection, index)
	}
	return column, nil
}

// PrimaryKey 返回集合的主键列。
func PrimaryKey(collection string) (string, error) {
	schema, ok := collections[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return schema.primaryKey, nil
}

// FieldColumn 将可排序或可聚合的字段名解析为列名，索引字段同样可用。
func FieldColumn(collection, field string) (string, error) {
	schema, ok := collections[collection]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if column, ok := schema.fields[field]; ok {
		return column, nil
	}
	return IndexColumn(collection, field)
}

func models() []interface{} {
	out := make([]interface{}, 0, len(collections))
	for _, name := range Collections() {
		out = append(out, collections[name].model)
	}
	return out
}
