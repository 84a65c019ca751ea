// Package transfer 将本地数据整体导出为单个 JSON 文档，并从中恢复。
// 导入导出直接读写原始记录，不经过文档服务的派生字段重算。
package transfer

import (
	"time"

	"github.com/wechatpad/internal/db"
)

// FormatVersion 是当前导出格式版本。
const FormatVersion = "1.0"

// 导入冲突时的合并方式。
const (
	MergeSkip   = "skip"
	MergeRename = "rename"
)

// Metadata 是导出内容的统计信息。
type Metadata struct {
	DocumentCount    int   `json:"documentCount"`
	VersionCount     int   `json:"versionCount"`
	ImageCount       int   `json:"imageCount"`
	SettingCount     int   `json:"settingCount"`
	TotalSize        int64 `json:"totalSize"`
	IncludeImageData bool  `json:"includeImageData"`
}

// ExportData 是导出文件的顶层结构。
type ExportData struct {
	Version    string               `json:"version"`
	ExportedAt string               `json:"exportedAt"`
	ExportedBy string               `json:"exportedBy,omitempty"`
	Metadata   *Metadata            `json:"metadata"`
	Documents  []db.Document        `json:"documents"`
	Versions   []db.DocumentVersion `json:"versions"`
	Images     []db.Image           `json:"images"`
	Settings   map[string]string    `json:"settings,omitempty"`
}

// ExportOptions 选择导出的范围。From 与 To 按文档更新时间与图片上传时间过滤。
type ExportOptions struct {
	DocumentIDs      []string   `json:"documentIds"`
	From             *time.Time `json:"from"`
	To               *time.Time `json:"to"`
	IncludeVersions  bool       `json:"includeVersions"`
	IncludeImages    bool       `json:"includeImages"`
	IncludeImageData bool       `json:"includeImageData"`
	IncludeSettings  bool       `json:"includeSettings"`
}

// DefaultExportOptions 导出全部内容。
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		IncludeVersions:  true,
		IncludeImages:    true,
		IncludeImageData: true,
		IncludeSettings:  true,
	}
}

// ItemCounts 是各类记录的数量。
type ItemCounts struct {
	Documents int `json:"documents"`
	Versions  int `json:"versions"`
	Images    int `json:"images"`
	Settings  int `json:"settings"`
}

// TimeRange 是导出文档的时间跨度。
type TimeRange struct {
	Earliest *time.Time `json:"earliest,omitempty"`
	Latest   *time.Time `json:"latest,omitempty"`
}

// Preview 是导出前的估算结果。
type Preview struct {
	EstimatedSize     int64      `json:"estimatedSize"`
	EstimatedSizeText string     `json:"estimatedSizeText"`
	ItemCounts        ItemCounts `json:"itemCounts"`
	TimeRange         TimeRange  `json:"timeRange"`
}

// ValidationResult 是导入前的校验结果，Errors 非空时不会写入任何数据。
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Progress 是导入进度。
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Step    string `json:"step"`
}

// ImportOptions 控制导入行为。
type ImportOptions struct {
	// OverwriteExisting 为 true 时同 ID 记录直接覆盖。
	OverwriteExisting bool `json:"overwriteExisting"`
	// MergeMode 是不覆盖时的处理方式：skip 保留已有记录，rename 以新 ID 并存。
	MergeMode      string         `json:"mergeMode"`
	SkipValidation bool           `json:"skipValidation"`
	OnProgress     func(Progress) `json:"-"`
}

// ImportResult 汇总导入结果。部分记录失败不会回滚其他记录。
type ImportResult struct {
	Success  bool       `json:"success"`
	Imported ItemCounts `json:"imported"`
	Skipped  ItemCounts `json:"skipped"`
	Errors   []string   `json:"errors"`
	Warnings []string   `json:"warnings"`
}
