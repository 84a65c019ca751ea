package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// timestampLayout 固定纳秒宽度，保证字符串字典序与时间先后一致。
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp 以 UTC 定宽字符串落库，JSON 编码与 time.Time 相同。
type Timestamp struct {
	time.Time
}

// At 将 time.Time 包装为 Timestamp。
func At(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC().Round(0)}
}

// GormDataType 声明列类型为文本。
func (Timestamp) GormDataType() string {
	return "string"
}

// Value 实现 driver.Valuer。
func (t Timestamp) Value() (driver.Value, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.UTC().Format(timestampLayout), nil
}

// Scan 实现 sql.Scanner。
func (t *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *Timestamp) parse(raw string) error {
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t.Time = parsed.UTC()
	return nil
}
