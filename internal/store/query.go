package store

import (
	"context"

	"github.com/wechatpad/internal/db"
	"gorm.io/gorm"
)

// PageQuery 描述一次分页读取。Index 与 Value 同时给出时只遍历该索引值的记录。
// ThenBy 是 OrderBy 相同时的次级排序字段，方向与 Direction 一致。
type PageQuery struct {
	Page      int
	Limit     int
	Index     string
	Value     interface{}
	OrderBy   string
	ThenBy    string
	Direction Direction
}

// Page 是分页结果。
type Page[T any] struct {
	Data    []T   `json:"data"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

// Stats 汇总各集合的记录数与大致字节数。
type Stats struct {
	Documents     int64 `json:"documents"`
	Versions      int64 `json:"versions"`
	Images        int64 `json:"images"`
	Settings      int64 `json:"settings"`
	DocumentBytes int64 `json:"documentBytes"`
	VersionBytes  int64 `json:"versionBytes"`
	ImageBytes    int64 `json:"imageBytes"`
	TotalBytes    int64 `json:"totalBytes"`
}

// GetPage 跳过 (page-1)*limit 条记录后读取一页，不会把整个集合载入内存。
func GetPage[T any](ctx context.Context, r db.Runner, collection string, query PageQuery) (*Page[T], error) {
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return nil, err
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	direction := query.Direction
	if direction != Desc {
		direction = Asc
	}

	orderColumn := pk
	if query.OrderBy != "" {
		if orderColumn, err = db.FieldColumn(collection, query.OrderBy); err != nil {
			return nil, err
		}
	} else if query.Index != "" {
		if orderColumn, err = db.IndexColumn(collection, query.Index); err != nil {
			return nil, err
		}
	}

	var thenColumn string
	if query.ThenBy != "" {
		if thenColumn, err = db.FieldColumn(collection, query.ThenBy); err != nil {
			return nil, err
		}
	}

	var filterColumn string
	if query.Index != "" && query.Value != nil {
		if filterColumn, err = db.IndexColumn(collection, query.Index); err != nil {
			return nil, err
		}
	}

	result := &Page[T]{}
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		base, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		if filterColumn != "" {
			base = base.Where(eq(filterColumn, query.Value))
		}
		base = base.Session(&gorm.Session{})

		if err := base.Count(&result.Total).Error; err != nil {
			return db.Wrap(err)
		}

		offset := (page - 1) * limit
		if int64(offset) >= result.Total {
			result.Data = []T{}
			return nil
		}

		q := base.Order(orderBy(orderColumn, direction))
		if thenColumn != "" && thenColumn != orderColumn {
			q = q.Order(orderBy(thenColumn, direction))
		}
		if orderColumn != pk {
			q = q.Order(orderBy(pk, direction))
		}
		return db.Wrap(q.Offset(offset).Limit(limit).Find(&result.Data).Error)
	})
	if err != nil {
		return nil, err
	}

	result.HasMore = int64(page*limit) < result.Total
	return result, nil
}

// Count 返回集合的记录数。
func Count(ctx context.Context, r db.Runner, collection string) (int64, error) {
	var total int64
	err := r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		return db.Wrap(q.Count(&total).Error)
	})
	return total, err
}

// CountByIndex 返回索引值等于 value 的记录数。
func CountByIndex(ctx context.Context, r db.Runner, collection, index string, value interface{}) (int64, error) {
	column, err := db.IndexColumn(collection, index)
	if err != nil {
		return 0, err
	}
	var total int64
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		return db.Wrap(q.Where(eq(column, value)).Count(&total).Error)
	})
	return total, err
}

// Max 返回 field 的最大值，可选地限定 index = value；没有记录时返回 0。
func Max(ctx context.Context, r db.Runner, collection, field, index string, value interface{}) (int64, error) {
	column, err := db.FieldColumn(collection, field)
	if err != nil {
		return 0, err
	}
	var filterColumn string
	if index != "" {
		if filterColumn, err = db.IndexColumn(collection, index); err != nil {
			return 0, err
		}
	}

	var max int64
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		if filterColumn != "" {
			q = q.Where(eq(filterColumn, value))
		}
		return db.Wrap(q.Select("COALESCE(MAX(" + column + "), 0)").Scan(&max).Error)
	})
	return max, err
}

// CollectStats 统计所有集合的记录数与内容字节数。
func CollectStats(ctx context.Context, r db.Runner) (Stats, error) {
	var stats Stats
	err := r.ExecuteTransaction(ctx, db.Collections(), db.ReadOnly, func(tx *db.Tx) error {
		targets := []struct {
			collection string
			count      *int64
			bytes      *int64
			sizeExpr   string
		}{
			{db.CollectionDocuments, &stats.Documents, &stats.DocumentBytes, "LENGTH(title) + LENGTH(content)"},
			{db.CollectionVersions, &stats.Versions, &stats.VersionBytes, "LENGTH(title) + LENGTH(content)"},
			{db.CollectionImages, &stats.Images, &stats.ImageBytes, "LENGTH(data)"},
			{db.CollectionSettings, &stats.Settings, nil, ""},
		}
		for _, target := range targets {
			q, err := tx.Collection(target.collection, false)
			if err != nil {
				return err
			}
			if err := q.Count(target.count).Error; err != nil {
				return db.Wrap(err)
			}
			if target.bytes == nil {
				continue
			}
			q, _ = tx.Collection(target.collection, false)
			if err := q.Select("COALESCE(SUM(" + target.sizeExpr + "), 0)").Scan(target.bytes).Error; err != nil {
				return db.Wrap(err)
			}
		}
		return nil
	})
	stats.TotalBytes = stats.DocumentBytes + stats.VersionBytes + stats.ImageBytes
	return stats, err
}
