package transfer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/store"
)

// Service 负责导入导出。
type Service struct {
	source    db.Source
	quota     service.QuotaChecker
	namespace func() string
	logger    *slog.Logger
}

// Options 配置 Service。
type Options struct {
	// Quota 用于导入前的空间估算，可以为空。
	Quota service.QuotaChecker
	// Namespace 返回当前命名空间，写入 exportedBy。
	Namespace func() string
	Logger    *slog.Logger
}

// NewService 创建导入导出服务。
func NewService(source db.Source, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, quota: opts.Quota, namespace: opts.Namespace, logger: logger}
}

// Export 在一个只读事务中读取所需记录，保证导出内容来自同一时刻。
func (s *Service) Export(ctx context.Context, opts ExportOptions) (*ExportData, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	data := &ExportData{
		Version:    FormatVersion,
		ExportedAt: adapter.Now().UTC().Format(time.RFC3339Nano),
		Documents:  []db.Document{},
		Versions:   []db.DocumentVersion{},
		Images:     []db.Image{},
	}
	if s.namespace != nil {
		data.ExportedBy = s.namespace()
	}

	err = adapter.ExecuteTransaction(ctx, db.Collections(), db.ReadOnly, func(tx *db.Tx) error {
		docs, err := store.GetAll[db.Document](ctx, tx, db.CollectionDocuments)
		if err != nil {
			return err
		}
		data.Documents = filterDocuments(docs, opts)

		if opts.IncludeVersions {
			versions, err := store.GetAll[db.DocumentVersion](ctx, tx, db.CollectionVersions)
			if err != nil {
				return err
			}
			data.Versions = filterVersions(versions, data.Documents, opts)
		}

		if opts.IncludeImages {
			images, err := store.GetAll[db.Image](ctx, tx, db.CollectionImages)
			if err != nil {
				return err
			}
			data.Images = filterImages(images, opts)
		}

		if opts.IncludeSettings {
			settings, err := store.GetAll[db.Setting](ctx, tx, db.CollectionSettings)
			if err != nil {
				return err
			}
			data.Settings = make(map[string]string, len(settings))
			for _, setting := range settings {
				data.Settings[setting.Key] = setting.Value
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data.Metadata = &Metadata{
		DocumentCount:    len(data.Documents),
		VersionCount:     len(data.Versions),
		ImageCount:       len(data.Images),
		SettingCount:     len(data.Settings),
		IncludeImageData: opts.IncludeImageData,
	}
	size, err := serializedSize(data)
	if err != nil {
		return nil, err
	}
	data.Metadata.TotalSize = size

	s.logger.Info("data exported",
		"documents", data.Metadata.DocumentCount,
		"versions", data.Metadata.VersionCount,
		"images", data.Metadata.ImageCount,
		"size", humanize.IBytes(uint64(size)))
	return data, nil
}

// Preview 不含图片数据地导出一次，用于估算大小、数量与时间跨度。
func (s *Service) Preview(ctx context.Context, opts ExportOptions) (*Preview, error) {
	opts.IncludeImageData = false
	data, err := s.Export(ctx, opts)
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		EstimatedSize:     data.Metadata.TotalSize,
		EstimatedSizeText: humanize.IBytes(uint64(data.Metadata.TotalSize)),
		ItemCounts: ItemCounts{
			Documents: len(data.Documents),
			Versions:  len(data.Versions),
			Images:    len(data.Images),
			Settings:  len(data.Settings),
		},
	}
	for i := range data.Documents {
		doc := &data.Documents[i]
		created, updated := doc.CreatedAt.Time, doc.UpdatedAt.Time
		if preview.TimeRange.Earliest == nil || created.Before(*preview.TimeRange.Earliest) {
			preview.TimeRange.Earliest = &created
		}
		if preview.TimeRange.Latest == nil || updated.After(*preview.TimeRange.Latest) {
			preview.TimeRange.Latest = &updated
		}
	}
	return preview, nil
}

func filterDocuments(docs []db.Document, opts ExportOptions) []db.Document {
	wanted := make(map[string]struct{}, len(opts.DocumentIDs))
	for _, id := range opts.DocumentIDs {
		wanted[id] = struct{}{}
	}

	out := make([]db.Document, 0, len(docs))
	for _, doc := range docs {
		if len(wanted) > 0 {
			if _, ok := wanted[doc.ID]; !ok {
				continue
			}
		}
		if !inRange(doc.UpdatedAt.Time, opts.From, opts.To) {
			continue
		}
		out = append(out, doc)
	}
	return out
}

// filterVersions 只保留已导出文档的版本。
func filterVersions(versions []db.DocumentVersion, docs []db.Document, opts ExportOptions) []db.DocumentVersion {
	filtered := len(opts.DocumentIDs) > 0 || opts.From != nil || opts.To != nil
	owners := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		owners[doc.ID] = struct{}{}
	}

	out := make([]db.DocumentVersion, 0, len(versions))
	for _, v := range versions {
		if filtered {
			if _, ok := owners[v.DocumentID]; !ok {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

func filterImages(images []db.Image, opts ExportOptions) []db.Image {
	out := make([]db.Image, 0, len(images))
	for _, image := range images {
		if !inRange(image.UploadedAt.Time, opts.From, opts.To) {
			continue
		}
		if !opts.IncludeImageData {
			image.Data = ""
		}
		out = append(out, image)
	}
	return out
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func serializedSize(data *ExportData) (int64, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}
