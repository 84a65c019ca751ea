package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tx 是限定集合范围的事务句柄。
type Tx struct {
	db    *gorm.DB
	scope map[string]struct{}
	mode  Mode
	now   func() time.Time
}

// Mode 返回事务模式。
func (t *Tx) Mode() Mode {
	return t.mode
}

// Now 返回事务所属适配器的当前时间。
func (t *Tx) Now() time.Time {
	return t.now()
}

// Collection 返回指向集合表的查询，write 为 true 时要求读写事务。
func (t *Tx) Collection(name string, write bool) (*gorm.DB, error) {
	if _, ok := t.scope[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutOfScope, name)
	}
	if write && t.mode != ReadWrite {
		return nil, fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	return t.db.Table(name), nil
}

// ExecuteTransaction 实现 Runner：范围与模式均被当前事务覆盖时直接复用。
func (t *Tx) ExecuteTransaction(_ context.Context, collections []string, mode Mode, fn func(tx *Tx) error) error {
	for _, name := range collections {
		if _, ok := t.scope[name]; !ok {
			return fmt.Errorf("%w: %s", ErrOutOfScope, name)
		}
	}
	if mode == ReadWrite && t.mode != ReadWrite {
		return ErrReadOnly
	}
	return runGuarded(fn, t)
}

// Savepoint 在保存点内执行 fn，fn 失败时只回滚到保存点，外层事务继续有效。
func (t *Tx) Savepoint(fn func(tx *Tx) error) error {
	name := "sp_" + uuid.NewString()[:8]
	if err := t.db.SavePoint(name).Error; err != nil {
		return Wrap(err)
	}
	if err := runGuarded(fn, t); err != nil {
		if rbErr := t.db.RollbackTo(name).Error; rbErr != nil {
			return Wrap(rbErr)
		}
		return err
	}
	return nil
}

func newScope(collections []string) (map[string]struct{}, error) {
	if len(collections) == 0 {
		return nil, fmt.Errorf("%w: empty scope", ErrUnknownCollection)
	}
	scope := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		if !IsCollection(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
		}
		scope[name] = struct{}{}
	}
	return scope, nil
}
