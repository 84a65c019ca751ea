package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate 检查导入数据。只要有一条记录缺少必填字段，整个导入都会被拒绝。
// 格式版本不一致只产生警告；空间估算仅作参考，估算不可用时忽略。
func (s *Service) Validate(ctx context.Context, data *ExportData) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if data == nil {
		result.Errors = append(result.Errors, "导入数据为空")
		return result
	}

	if data.Version != FormatVersion {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("数据格式版本 %q 与当前版本 %q 不一致", data.Version, FormatVersion))
	}

	if err := validation.ValidateStruct(data,
		validation.Field(&data.ExportedAt, validation.Required, validation.Date(time.RFC3339Nano)),
		validation.Field(&data.Metadata, validation.NotNil),
	); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("导入数据缺少必要信息: %v", err))
	}

	for i := range data.Documents {
		doc := &data.Documents[i]
		if err := validation.ValidateStruct(doc,
			validation.Field(&doc.ID, validation.Required),
			validation.Field(&doc.Title, validation.Required),
		); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("documents[%d]: %v", i, err))
		}
	}
	for i := range data.Versions {
		v := &data.Versions[i]
		if err := validation.ValidateStruct(v,
			validation.Field(&v.ID, validation.Required),
			validation.Field(&v.ChangeType, validation.Required),
		); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("versions[%d]: %v", i, err))
		}
	}
	for i := range data.Images {
		image := &data.Images[i]
		if err := validation.ValidateStruct(image,
			validation.Field(&image.ID, validation.Required),
			validation.Field(&image.Filename, validation.Required),
		); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("images[%d]: %v", i, err))
		}
	}

	if msg := s.checkQuota(ctx, data); msg != "" {
		result.Errors = append(result.Errors, msg)
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func (s *Service) checkQuota(ctx context.Context, data *ExportData) string {
	if s.quota == nil {
		return ""
	}
	info := s.quota.CheckStorageQuota(ctx)
	if info.Quota <= 0 {
		return ""
	}
	size, err := serializedSize(data)
	if err != nil || size <= info.Available {
		return ""
	}
	return fmt.Sprintf("存储空间不足：需要约 %s，可用 %s",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(info.Available)))
}
