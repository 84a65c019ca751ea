// Package store 提供与业务无关的通用集合操作。每个函数接受 db.Runner，
// 既可以直接传入适配器（自行开启事务），也可以传入外层事务以组合多个步骤。
package store

import (
	"context"
	"strings"

	"github.com/wechatpad/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Direction 是游标遍历方向。
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

const defaultPageLimit = 20

// PtrRecord 约束 *T 实现 db.Record。
type PtrRecord[T any] interface {
	*T
	db.Record
}

// Option 调整写入行为。
type Option func(*options)

type options struct {
	keepTimestamps bool
}

// KeepTimestamps 保留记录已有的 createdAt/updatedAt，仅补齐缺失值。
func KeepTimestamps() Option {
	return func(o *options) {
		o.keepTimestamps = true
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Put 按主键写入或覆盖记录，返回打好时间戳的记录。
func Put[T any, P PtrRecord[T]](ctx context.Context, r db.Runner, collection string, record P, opts ...Option) (P, error) {
	o := applyOptions(opts)
	err := r.ExecuteTransaction(ctx, []string{collection}, db.ReadWrite, func(tx *db.Tx) error {
		return save(tx, collection, record, o)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// BulkPut 在同一个事务中写入多条记录，任一失败则全部回滚。
func BulkPut[T any, P PtrRecord[T]](ctx context.Context, r db.Runner, collection string, records []P, opts ...Option) error {
	if len(records) == 0 {
		return nil
	}
	o := applyOptions(opts)
	return r.ExecuteTransaction(ctx, []string{collection}, db.ReadWrite, func(tx *db.Tx) error {
		for _, record := range records {
			if err := save(tx, collection, record, o); err != nil {
				return err
			}
		}
		return nil
	})
}

func save[T any, P PtrRecord[T]](tx *db.Tx, collection string, record P, o options) error {
	q, err := tx.Collection(collection, true)
	if err != nil {
		return err
	}
	record.Stamp(tx.Now(), o.keepTimestamps)
	if err := q.Save(record).Error; err != nil {
		return db.Wrap(err)
	}
	return nil
}

// Get 按主键读取记录，不存在时返回 nil 而不是错误。
func Get[T any, P PtrRecord[T]](ctx context.Context, r db.Runner, collection, id string) (P, error) {
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return nil, err
	}

	var found P
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		var record T
		result := q.Where(eq(pk, id)).Limit(1).Find(&record)
		if result.Error != nil {
			return db.Wrap(result.Error)
		}
		if result.RowsAffected > 0 {
			found = &record
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// GetAll 读取集合中的全部记录，按创建时间升序。
func GetAll[T any](ctx context.Context, r db.Runner, collection string) ([]T, error) {
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return nil, err
	}

	var items []T
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		return db.Wrap(q.Order(orderBy("created_at", Asc)).Order(orderBy(pk, Asc)).Find(&items).Error)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FindByIndex 通过二级索引做等值查询，limit <= 0 表示不限制数量。
func FindByIndex[T any](ctx context.Context, r db.Runner, collection, index string, value interface{}, limit int) ([]T, error) {
	column, err := db.IndexColumn(collection, index)
	if err != nil {
		return nil, err
	}
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return nil, err
	}

	var items []T
	err = r.ExecuteTransaction(ctx, []string{collection}, db.ReadOnly, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, false)
		if err != nil {
			return err
		}
		q = q.Where(eq(column, value)).Order(orderBy("created_at", Asc)).Order(orderBy(pk, Asc))
		if limit > 0 {
			q = q.Limit(limit)
		}
		return db.Wrap(q.Find(&items).Error)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Search 对指定字段做不区分大小写的子串匹配。实现为全集合扫描，
// 本地数据量下足够使用。
func Search[T any, P PtrRecord[T]](ctx context.Context, r db.Runner, collection, term string, fields []string) ([]T, error) {
	items, err := GetAll[T](ctx, r, collection)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return items, nil
	}

	matched := make([]T, 0, len(items))
	for i := range items {
		searchable, ok := any(P(&items[i])).(db.Searchable)
		if !ok {
			continue
		}
		for _, field := range fields {
			value, ok := searchable.SearchField(field)
			if ok && strings.Contains(strings.ToLower(value), needle) {
				matched = append(matched, items[i])
				break
			}
		}
	}
	return matched, nil
}

// Delete 按主键删除记录，记录不存在时返回 false。
func Delete[T any](ctx context.Context, r db.Runner, collection, id string) (bool, error) {
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return false, err
	}
	affected, err := deleteWhere[T](ctx, r, collection, eq(pk, id))
	return affected > 0, err
}

// BulkDelete 在同一个事务中删除多条记录，返回实际删除的数量。
func BulkDelete[T any](ctx context.Context, r db.Runner, collection string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	pk, err := db.PrimaryKey(collection)
	if err != nil {
		return 0, err
	}
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return deleteWhere[T](ctx, r, collection, clause.IN{Column: clause.Column{Name: pk}, Values: values})
}

// DeleteByIndex 删除索引值等于 value 的全部记录。
func DeleteByIndex[T any](ctx context.Context, r db.Runner, collection, index string, value interface{}) (int64, error) {
	column, err := db.IndexColumn(collection, index)
	if err != nil {
		return 0, err
	}
	return deleteWhere[T](ctx, r, collection, eq(column, value))
}

// Clear 清空集合。
func Clear[T any](ctx context.Context, r db.Runner, collection string) error {
	return r.ExecuteTransaction(ctx, []string{collection}, db.ReadWrite, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, true)
		if err != nil {
			return err
		}
		return db.Wrap(q.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(new(T)).Error)
	})
}

func deleteWhere[T any](ctx context.Context, r db.Runner, collection string, cond clause.Expression) (int64, error) {
	var affected int64
	err := r.ExecuteTransaction(ctx, []string{collection}, db.ReadWrite, func(tx *db.Tx) error {
		q, err := tx.Collection(collection, true)
		if err != nil {
			return err
		}
		result := q.Where(cond).Delete(new(T))
		if result.Error != nil {
			return db.Wrap(result.Error)
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

func eq(column string, value interface{}) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: column}, Value: value}
}

func orderBy(column string, direction Direction) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: direction == Desc}
}
