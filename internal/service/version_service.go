package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/wechatpad/internal/content"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
	"gorm.io/datatypes"
)

// AutoSaveRetention 是每篇文档保留的自动保存版本上限。手动与恢复版本不受限制。
const AutoSaveRetention = 50

const (
	defaultSnapshotReason   = "手动保存"
	preRestoreReason        = "恢复前自动备份"
	defaultAutoSaveReason   = "自动保存"
	versionListDefaultLimit = 20
)

// VersionService 管理文档的历史版本。
type VersionService struct {
	source    db.Source
	logger    *slog.Logger
	retention int
}

// Snapshot 是写入版本的文档内容。
type Snapshot struct {
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	TemplateID        string         `json:"templateId"`
	TemplateVariables datatypes.JSON `json:"templateVariables"`
	Reason            string         `json:"reason"`
}

// VersionSummary 是版本列表项。DisplayNumber 按时间倒序编号，最新的最大。
type VersionSummary struct {
	ID            string           `json:"id"`
	DocumentID    string           `json:"documentId"`
	Title         string           `json:"title"`
	ChangeType    string           `json:"changeType"`
	ChangeReason  string           `json:"changeReason"`
	VersionNumber int              `json:"versionNumber"`
	DisplayNumber int64            `json:"displayNumber"`
	Metadata      content.Metadata `json:"metadata"`
	CreatedAt     db.Timestamp     `json:"createdAt"`
}

// VersionListResult 是版本列表结果。
type VersionListResult struct {
	Document   DocumentSummary  `json:"document"`
	Versions   []VersionSummary `json:"versions"`
	Pagination Pagination       `json:"pagination"`
}

// RestoreResult 描述一次版本恢复。
type RestoreResult struct {
	Message  string              `json:"message"`
	Document *db.Document        `json:"document"`
	Backup   *db.DocumentVersion `json:"backup"`
	Marker   *db.DocumentVersion `json:"marker"`
}

// SnapshotResult 描述一次手动快照。
type SnapshotResult struct {
	Message string              `json:"message"`
	Version *db.DocumentVersion `json:"version"`
}

// DeleteVersionResult 描述一次版本删除。
type DeleteVersionResult struct {
	Message          string `json:"message"`
	DeletedVersionID string `json:"deletedVersionId"`
}

// NewVersionService creates a VersionService instance.
func NewVersionService(source db.Source, logger *slog.Logger) *VersionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionService{source: source, logger: logger, retention: AutoSaveRetention}
}

// CreateAutoVersion 记录一次自动保存快照，并把自动保存版本裁剪到保留上限。
func (s *VersionService) CreateAutoVersion(ctx context.Context, documentID string, snapshot Snapshot) (*db.DocumentVersion, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(documentID)
	defer unlock()

	reason := strings.TrimSpace(snapshot.Reason)
	if reason == "" {
		reason = defaultAutoSaveReason
	}

	var created *db.DocumentVersion
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionDocuments, db.CollectionVersions}, db.ReadWrite, func(tx *db.Tx) error {
		if _, err := loadDocument(ctx, tx, documentID); err != nil {
			return err
		}
		created, err = s.createVersion(ctx, tx, documentID, snapshot, db.ChangeTypeAutoSave, reason)
		if err != nil {
			return err
		}
		return s.prune(ctx, tx, documentID)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Latest 返回文档最近的一个版本，没有版本时返回 nil。
func (s *VersionService) Latest(ctx context.Context, documentID string) (*db.DocumentVersion, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	page, err := store.GetPage[db.DocumentVersion](ctx, adapter, db.CollectionVersions, store.PageQuery{
		Page:      1,
		Limit:     1,
		Index:     "documentId",
		Value:     documentID,
		OrderBy:   "versionNumber",
		Direction: store.Desc,
	})
	if err != nil {
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	return &page.Data[0], nil
}

// ListVersions 按创建时间倒序分页列出文档的版本，同一时刻创建的按版本号倒序。
func (s *VersionService) ListVersions(ctx context.Context, documentID string, page, limit int) (*VersionListResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := loadDocument(ctx, adapter, documentID)
	if err != nil {
		return nil, err
	}

	page = normalizePage(page)
	limit = normalizePerPage(limit, versionListDefaultLimit)
	result, err := store.GetPage[db.DocumentVersion](ctx, adapter, db.CollectionVersions, store.PageQuery{
		Page:      page,
		Limit:     limit,
		Index:     "documentId",
		Value:     documentID,
		OrderBy:   "createdAt",
		ThenBy:    "versionNumber",
		Direction: store.Desc,
	})
	if err != nil {
		return nil, err
	}

	offset := int64((page - 1) * limit)
	versions := make([]VersionSummary, 0, len(result.Data))
	for i := range result.Data {
		v := &result.Data[i]
		versions = append(versions, VersionSummary{
			ID:            v.ID,
			DocumentID:    v.DocumentID,
			Title:         v.Title,
			ChangeType:    v.ChangeType,
			ChangeReason:  v.ChangeReason,
			VersionNumber: v.VersionNumber,
			DisplayNumber: result.Total - offset - int64(i),
			Metadata:      v.Metadata,
			CreatedAt:     v.CreatedAt,
		})
	}

	return &VersionListResult{
		Document:   summarize(doc),
		Versions:   versions,
		Pagination: newPagination(page, limit, result.Total),
	}, nil
}

// GetVersionDetail 返回版本完整内容，版本必须属于该文档。
func (s *VersionService) GetVersionDetail(ctx context.Context, documentID, versionID string) (*db.DocumentVersion, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return loadOwnedVersion(ctx, adapter, documentID, versionID)
}

// RestoreToVersion 将文档恢复到指定版本。恢复前先为当前内容保存一个自动版本，
// 恢复后再记录一个恢复标记版本，三步在同一个事务内完成。
func (s *VersionService) RestoreToVersion(ctx context.Context, documentID, versionID string) (*RestoreResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(documentID)
	defer unlock()

	result := &RestoreResult{}
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionDocuments, db.CollectionVersions}, db.ReadWrite, func(tx *db.Tx) error {
		doc, err := loadDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		target, err := loadOwnedVersion(ctx, tx, documentID, versionID)
		if err != nil {
			return err
		}

		result.Backup, err = s.createVersion(ctx, tx, documentID, snapshotOf(doc), db.ChangeTypeAutoSave, preRestoreReason)
		if err != nil {
			return err
		}
		if err := s.prune(ctx, tx, documentID); err != nil {
			return err
		}

		doc.Title = target.Title
		doc.Content = target.Content
		doc.TemplateID = target.TemplateID
		doc.TemplateVariables = cloneJSON(target.TemplateVariables)
		doc.RefreshDerived()
		if result.Document, err = store.Put(ctx, tx, db.CollectionDocuments, doc); err != nil {
			return err
		}

		reason := fmt.Sprintf("恢复到版本 %d", target.VersionNumber)
		result.Marker, err = s.createVersion(ctx, tx, documentID, snapshotOf(doc), db.ChangeTypeRestore, reason)
		if err != nil {
			return err
		}
		result.Message = fmt.Sprintf("已恢复到版本 %d", target.VersionNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("document restored", "document_id", documentID, "version_id", versionID)
	return result, nil
}

// CreateSnapshot 为文档当前内容创建手动版本。
func (s *VersionService) CreateSnapshot(ctx context.Context, documentID, reason string) (*SnapshotResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(documentID)
	defer unlock()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultSnapshotReason
	}

	result := &SnapshotResult{Message: "快照创建成功"}
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionDocuments, db.CollectionVersions}, db.ReadWrite, func(tx *db.Tx) error {
		doc, err := loadDocument(ctx, tx, documentID)
		if err != nil {
			return err
		}
		result.Version, err = s.createVersion(ctx, tx, documentID, snapshotOf(doc), db.ChangeTypeManualSave, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteVersion 删除单个版本，版本必须属于该文档。
func (s *VersionService) DeleteVersion(ctx context.Context, documentID, versionID string) (*DeleteVersionResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(documentID)
	defer unlock()

	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionVersions}, db.ReadWrite, func(tx *db.Tx) error {
		if _, err := loadOwnedVersion(ctx, tx, documentID, versionID); err != nil {
			return err
		}
		_, err := store.Delete[db.DocumentVersion](ctx, tx, db.CollectionVersions, versionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &DeleteVersionResult{Message: "版本删除成功", DeletedVersionID: versionID}, nil
}

func (s *VersionService) createVersion(ctx context.Context, tx *db.Tx, documentID string, snapshot Snapshot, changeType, reason string) (*db.DocumentVersion, error) {
	latest, err := store.Max(ctx, tx, db.CollectionVersions, "versionNumber", "documentId", documentID)
	if err != nil {
		return nil, err
	}

	version := &db.DocumentVersion{
		ID:                uuid.NewString(),
		DocumentID:        documentID,
		Title:             snapshot.Title,
		Content:           snapshot.Content,
		TemplateID:        snapshot.TemplateID,
		TemplateVariables: cloneJSON(snapshot.TemplateVariables),
		Metadata:          content.Analyze(snapshot.Content),
		ChangeType:        changeType,
		ChangeReason:      reason,
		VersionNumber:     int(latest) + 1,
		ContentHash:       db.ContentHash(snapshot.Title, snapshot.Content),
	}
	return store.Put(ctx, tx, db.CollectionVersions, version)
}

// prune 只删除超出上限的最旧自动保存版本。
func (s *VersionService) prune(ctx context.Context, tx *db.Tx, documentID string) error {
	versions, err := store.FindByIndex[db.DocumentVersion](ctx, tx, db.CollectionVersions, "documentId", documentID, 0)
	if err != nil {
		return err
	}

	autos := make([]db.DocumentVersion, 0, len(versions))
	for _, v := range versions {
		if v.ChangeType == db.ChangeTypeAutoSave {
			autos = append(autos, v)
		}
	}
	if len(autos) <= s.retention {
		return nil
	}

	sort.SliceStable(autos, func(i, j int) bool {
		a, b := autos[i], autos[j]
		if !a.CreatedAt.Equal(b.CreatedAt.Time) {
			return a.CreatedAt.After(b.CreatedAt.Time)
		}
		return a.VersionNumber > b.VersionNumber
	})

	stale := make([]string, 0, len(autos)-s.retention)
	for _, v := range autos[s.retention:] {
		stale = append(stale, v.ID)
	}
	removed, err := store.BulkDelete[db.DocumentVersion](ctx, tx, db.CollectionVersions, stale)
	if err != nil {
		return err
	}
	s.logger.Debug("auto-save versions pruned", "document_id", documentID, "removed", removed)
	return nil
}

func loadDocument(ctx context.Context, r db.Runner, id string) (*db.Document, error) {
	doc, err := store.Get[db.Document](ctx, r, db.CollectionDocuments, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// loadOwnedVersion 只在文档自己的版本集合中查找 versionID。
func loadOwnedVersion(ctx context.Context, r db.Runner, documentID, versionID string) (*db.DocumentVersion, error) {
	versions, err := store.FindByIndex[db.DocumentVersion](ctx, r, db.CollectionVersions, "documentId", documentID, 0)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].ID == versionID {
			return &versions[i], nil
		}
	}
	return nil, ErrVersionNotFound
}

func snapshotOf(doc *db.Document) Snapshot {
	return Snapshot{
		Title:             doc.Title,
		Content:           doc.Content,
		TemplateID:        doc.TemplateID,
		TemplateVariables: doc.TemplateVariables,
	}
}
