package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wechatpad/internal/content"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
	"gorm.io/datatypes"
)

const (
	// DefaultDocumentTitle 是未填写标题时的默认标题。
	DefaultDocumentTitle = "未命名文档"
	// DuplicateTitleSuffix 追加在复制出的文档标题之后。
	DuplicateTitleSuffix = " (副本)"
)

// DocumentService wraps document related storage operations.
type DocumentService struct {
	source db.Source
	logger *slog.Logger
}

// DocumentFilter describes filters for listing documents.
type DocumentFilter struct {
	Search    string
	Status    string
	SortBy    string
	Direction store.Direction
	Page      int
	PerPage   int
}

// DocumentSummary 是列表项，带预览但不含正文。
type DocumentSummary struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	TemplateID string           `json:"templateId"`
	Status     string           `json:"status"`
	Preview    string           `json:"preview"`
	Metadata   content.Metadata `json:"metadata"`
	CreatedAt  db.Timestamp     `json:"createdAt"`
	UpdatedAt  db.Timestamp     `json:"updatedAt"`
}

// DocumentListResult aggregates paginated list data.
type DocumentListResult struct {
	Documents  []DocumentSummary `json:"documents"`
	Pagination Pagination        `json:"pagination"`
}

// DocumentInput 是创建或部分更新文档的字段，nil 表示未提供。
type DocumentInput struct {
	Title             *string        `json:"title"`
	Content           *string        `json:"content"`
	TemplateID        *string        `json:"templateId"`
	TemplateVariables datatypes.JSON `json:"templateVariables"`
	Status            *string        `json:"status"`
	// ExpectedUpdatedAt 不为空时，若文档已被其他编辑者修改则拒绝写入。
	ExpectedUpdatedAt *time.Time `json:"expectedUpdatedAt"`
}

// SaveContentInput 是编辑器保存当前内容的请求，DocumentID 为空时新建文档。
type SaveContentInput struct {
	DocumentID        string         `json:"documentId"`
	Title             string         `json:"title"`
	Content           string         `json:"content"`
	TemplateID        string         `json:"templateId"`
	TemplateVariables datatypes.JSON `json:"templateVariables"`
}

// DeleteDocumentResult 描述一次删除。
type DeleteDocumentResult struct {
	Message         string `json:"message"`
	DeletedVersions int64  `json:"deletedVersions"`
}

// BatchMetadataResult 描述批量重算元数据的结果。
type BatchMetadataResult struct {
	Message      string `json:"message"`
	UpdatedCount int    `json:"updatedCount"`
}

// NewDocumentService creates a DocumentService instance.
func NewDocumentService(source db.Source, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{source: source, logger: logger}
}

// List provides paginated documents, newest update first by default.
func (s *DocumentService) List(ctx context.Context, filter DocumentFilter) (*DocumentListResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	page := normalizePage(filter.Page)
	perPage := normalizePerPage(filter.PerPage, 10)
	sortBy, err := normalizeDocumentSort(filter.SortBy)
	if err != nil {
		return nil, err
	}
	direction := filter.Direction
	if direction != store.Asc {
		direction = store.Desc
	}
	status := strings.ToLower(strings.TrimSpace(filter.Status))
	if status != "" && !db.IsValidDocumentStatus(status) {
		return nil, ErrStatusInvalid
	}

	var (
		docs  []db.Document
		total int64
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		matched, err := store.Search[db.Document](ctx, adapter, db.CollectionDocuments, search, []string{"title", "content"})
		if err != nil {
			return nil, err
		}
		if status != "" {
			filtered := matched[:0]
			for _, doc := range matched {
				if doc.Status == status {
					filtered = append(filtered, doc)
				}
			}
			matched = filtered
		}
		sortDocuments(matched, sortBy, direction)
		total = int64(len(matched))
		docs = slicePage(matched, page, perPage)
	} else {
		query := store.PageQuery{Page: page, Limit: perPage, OrderBy: sortBy, Direction: direction}
		if status != "" {
			query.Index = "status"
			query.Value = status
		}
		result, err := store.GetPage[db.Document](ctx, adapter, db.CollectionDocuments, query)
		if err != nil {
			return nil, err
		}
		docs = result.Data
		total = result.Total
	}

	summaries := make([]DocumentSummary, 0, len(docs))
	for i := range docs {
		summaries = append(summaries, summarize(&docs[i]))
	}
	return &DocumentListResult{Documents: summaries, Pagination: newPagination(page, perPage, total)}, nil
}

// Get fetches a complete document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*db.Document, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := store.Get[db.Document](ctx, adapter, db.CollectionDocuments, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Create persists a new document with derived metadata and preview.
func (s *DocumentService) Create(ctx context.Context, input DocumentInput) (*db.Document, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	doc := db.Document{
		ID:                uuid.NewString(),
		Title:             DefaultDocumentTitle,
		Status:            db.DocumentStatusDraft,
		TemplateVariables: input.TemplateVariables,
	}
	if err := applyDocumentInput(&doc, input); err != nil {
		return nil, err
	}
	doc.RefreshDerived()

	return store.Put(ctx, adapter, db.CollectionDocuments, &doc)
}

// Update merges the provided fields into an existing document. Derived fields
// are recomputed only when content is part of the update.
func (s *DocumentService) Update(ctx context.Context, id string, input DocumentInput) (*db.Document, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(id)
	defer unlock()

	var updated *db.Document
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionDocuments}, db.ReadWrite, func(tx *db.Tx) error {
		existing, err := store.Get[db.Document](ctx, tx, db.CollectionDocuments, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrDocumentNotFound
		}
		if input.ExpectedUpdatedAt != nil && !existing.UpdatedAt.Equal(*input.ExpectedUpdatedAt) {
			return ErrStaleWrite
		}

		if err := applyDocumentInput(existing, input); err != nil {
			return err
		}
		if input.TemplateVariables != nil {
			existing.TemplateVariables = input.TemplateVariables
		}
		if input.Content != nil {
			existing.RefreshDerived()
		}

		updated, err = store.Put(ctx, tx, db.CollectionDocuments, existing)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a document and cascades to its versions in the same
// transaction. Version cleanup runs under a savepoint: when it fails it is
// rolled back alone, logged, and the document is still deleted.
func (s *DocumentService) Delete(ctx context.Context, id string) (*DeleteDocumentResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	unlock := adapter.Lock(id)
	defer unlock()

	result := &DeleteDocumentResult{Message: "文档删除成功"}
	err = adapter.ExecuteTransaction(ctx, []string{db.CollectionDocuments, db.CollectionVersions}, db.ReadWrite, func(tx *db.Tx) error {
		deleted, err := store.Delete[db.Document](ctx, tx, db.CollectionDocuments, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrDocumentNotFound
		}

		if err := tx.Savepoint(func(sp *db.Tx) error {
			removed, err := store.DeleteByIndex[db.DocumentVersion](ctx, sp, db.CollectionVersions, "documentId", id)
			result.DeletedVersions = removed
			return err
		}); err != nil {
			result.DeletedVersions = 0
			s.logger.Warn("cascade version delete failed", "document_id", id, "error", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Duplicate copies content and template fields into a new draft document.
func (s *DocumentService) Duplicate(ctx context.Context, id string) (*db.Document, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	title := source.Title + DuplicateTitleSuffix
	body := source.Content
	templateID := source.TemplateID
	status := db.DocumentStatusDraft
	return s.Create(ctx, DocumentInput{
		Title:             &title,
		Content:           &body,
		TemplateID:        &templateID,
		TemplateVariables: cloneJSON(source.TemplateVariables),
		Status:            &status,
	})
}

// BatchUpdateMetadata recomputes derived fields for every document and writes
// back only the documents whose values changed.
func (s *DocumentService) BatchUpdateMetadata(ctx context.Context) (*BatchMetadataResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	docs, err := store.GetAll[db.Document](ctx, adapter, db.CollectionDocuments)
	if err != nil {
		return nil, err
	}

	changed := make([]*db.Document, 0)
	for i := range docs {
		doc := &docs[i]
		metadata := content.Analyze(doc.Content)
		preview := content.Preview(doc.Content)
		if metadata == doc.Metadata && preview == doc.Preview {
			continue
		}
		doc.Metadata = metadata
		doc.Preview = preview
		changed = append(changed, doc)
	}

	if err := store.BulkPut(ctx, adapter, db.CollectionDocuments, changed, store.KeepTimestamps()); err != nil {
		return nil, err
	}

	s.logger.Info("document metadata rebuilt", "total", len(docs), "updated", len(changed))
	return &BatchMetadataResult{
		Message:      fmt.Sprintf("已更新 %d 篇文档的元数据", len(changed)),
		UpdatedCount: len(changed),
	}, nil
}

// SaveCurrentContent creates a document when DocumentID is empty, otherwise
// updates the existing one.
func (s *DocumentService) SaveCurrentContent(ctx context.Context, input SaveContentInput) (*db.Document, error) {
	fields := DocumentInput{
		Title:             &input.Title,
		Content:           &input.Content,
		TemplateID:        &input.TemplateID,
		TemplateVariables: input.TemplateVariables,
	}
	if id := strings.TrimSpace(input.DocumentID); id != "" {
		return s.Update(ctx, id, fields)
	}
	return s.Create(ctx, fields)
}

func applyDocumentInput(doc *db.Document, input DocumentInput) error {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			title = DefaultDocumentTitle
		}
		doc.Title = title
	}
	if input.Content != nil {
		doc.Content = *input.Content
	}
	if input.TemplateID != nil {
		doc.TemplateID = strings.TrimSpace(*input.TemplateID)
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		if status == "" {
			status = db.DocumentStatusDraft
		}
		if !db.IsValidDocumentStatus(status) {
			return ErrStatusInvalid
		}
		doc.Status = status
	}
	return nil
}

func summarize(doc *db.Document) DocumentSummary {
	return DocumentSummary{
		ID:         doc.ID,
		Title:      doc.Title,
		TemplateID: doc.TemplateID,
		Status:     doc.Status,
		Preview:    doc.Preview,
		Metadata:   doc.Metadata,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func normalizeDocumentSort(sortBy string) (string, error) {
	switch strings.TrimSpace(sortBy) {
	case "", "updatedAt":
		return "updatedAt", nil
	case "createdAt":
		return "createdAt", nil
	case "title":
		return "title", nil
	}
	return "", ValidationError(fmt.Errorf("unsupported sort field %q", sortBy))
}

func sortDocuments(docs []db.Document, sortBy string, direction store.Direction) {
	less := func(a, b *db.Document) bool {
		switch sortBy {
		case "title":
			return a.Title < b.Title
		case "createdAt":
			return a.CreatedAt.Before(b.CreatedAt.Time)
		default:
			return a.UpdatedAt.Before(b.UpdatedAt.Time)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if direction == store.Desc {
			return less(&docs[j], &docs[i])
		}
		return less(&docs[i], &docs[j])
	})
}

func slicePage[T any](items []T, page, perPage int) []T {
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func cloneJSON(raw datatypes.JSON) datatypes.JSON {
	if raw == nil {
		return nil
	}
	return datatypes.JSON(bytes.Clone(raw))
}
