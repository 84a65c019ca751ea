package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/wechatpad/internal/service"
)

// Encode 以缩进格式写出导出数据。
func Encode(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// Decode 读取导入文件。内容不是单个合法 JSON 对象时返回校验错误。
func Decode(r io.Reader) (*ExportData, error) {
	decoder := json.NewDecoder(r)
	var data ExportData
	if err := decoder.Decode(&data); err != nil {
		return nil, service.ValidationError(fmt.Errorf("import file is not valid JSON: %w", err))
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, service.ValidationError(errors.New("import file has trailing data after the JSON object"))
	}
	return &data, nil
}

// FileName 返回导出文件名。
func FileName(t time.Time) string {
	return "wechatpad-backup-" + t.Format("2006-01-02-150405") + ".json"
}
