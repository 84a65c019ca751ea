package autosave

import (
	"context"
	"log/slog"

	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/service"
)

// ModeSource 返回当前的持久化模式。
type ModeSource interface {
	PersistenceMode(ctx context.Context, fallback string) string
}

// StoreSaver 通过文档服务写入内容。local 与 hybrid 模式下会顺带记录一个版本，
// 版本失败只记录日志，不影响保存结果。
type StoreSaver struct {
	Documents *service.DocumentService
	Versions  *service.VersionService
	Modes     ModeSource
	// Mode 是 Modes 未设置或未保存模式时使用的持久化模式。
	Mode   string
	Logger *slog.Logger
}

// Save 实现 Saver。
func (s *StoreSaver) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	doc, err := s.Documents.SaveCurrentContent(ctx, service.SaveContentInput{
		DocumentID:        req.DocumentID,
		Title:             req.Title,
		Content:           req.Content,
		TemplateID:        req.TemplateID,
		TemplateVariables: req.TemplateVariables,
	})
	if err != nil {
		return SaveResult{}, err
	}

	if s.Versions != nil && s.mode(ctx) != service.PersistenceServer {
		s.snapshot(ctx, doc, req.Manual)
	}
	return SaveResult{DocumentID: doc.ID, UpdatedAt: doc.UpdatedAt.Time}, nil
}

func (s *StoreSaver) mode(ctx context.Context) string {
	fallback := s.Mode
	if fallback == "" {
		fallback = service.PersistenceLocal
	}
	if s.Modes == nil {
		return fallback
	}
	return s.Modes.PersistenceMode(ctx, fallback)
}

func (s *StoreSaver) snapshot(ctx context.Context, doc *db.Document, manual bool) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if manual {
		if _, err := s.Versions.CreateSnapshot(ctx, doc.ID, ""); err != nil {
			logger.Warn("manual version snapshot failed", "document_id", doc.ID, "error", err)
		}
		return
	}

	latest, err := s.Versions.Latest(ctx, doc.ID)
	if err != nil {
		logger.Warn("load latest version failed", "document_id", doc.ID, "error", err)
		return
	}
	if latest != nil && latest.ContentHash == db.ContentHash(doc.Title, doc.Content) {
		return
	}
	if _, err := s.Versions.CreateAutoVersion(ctx, doc.ID, service.Snapshot{
		Title:             doc.Title,
		Content:           doc.Content,
		TemplateID:        doc.TemplateID,
		TemplateVariables: doc.TemplateVariables,
	}); err != nil {
		logger.Warn("auto version snapshot failed", "document_id", doc.ID, "error", err)
	}
}
