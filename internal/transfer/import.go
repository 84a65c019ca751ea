package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/store"
)

// ImportedTitleSuffix 追加在以新 ID 导入的文档标题之后。
const ImportedTitleSuffix = " (导入)"

// Import 逐条写入导入数据。每条记录单独提交，失败的记录记入 Errors 而不回滚其他记录。
// 校验失败时不写入任何数据，并返回 service.ErrValidation。
func (s *Service) Import(ctx context.Context, data *ExportData, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{Errors: []string{}, Warnings: []string{}}

	if !opts.SkipValidation {
		check := s.Validate(ctx, data)
		result.Warnings = append(result.Warnings, check.Warnings...)
		if !check.Valid {
			result.Errors = append(result.Errors, check.Errors...)
			return result, service.ValidationError(errors.New(strings.Join(check.Errors, "; ")))
		}
	}
	if data == nil {
		return nil, service.ValidationError(errors.New("import data is empty"))
	}

	mode := strings.ToLower(strings.TrimSpace(opts.MergeMode))
	if mode == "" {
		mode = MergeSkip
	}
	if mode != MergeSkip && mode != MergeRename {
		return nil, service.ValidationError(fmt.Errorf("unsupported merge mode %q", opts.MergeMode))
	}

	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	run := &importRun{
		ctx:     ctx,
		adapter: adapter,
		opts:    opts,
		mode:    mode,
		result:  result,
		total:   len(data.Documents) + len(data.Versions) + len(data.Images),
		renamed: make(map[string]string),
	}
	run.documents(data.Documents)
	run.versions(data.Versions)
	run.images(data.Images)
	run.settings(data.Settings)

	result.Success = len(result.Errors) == 0
	s.logger.Info("data imported",
		"documents", result.Imported.Documents,
		"versions", result.Imported.Versions,
		"images", result.Imported.Images,
		"skipped", result.Skipped.Documents+result.Skipped.Versions+result.Skipped.Images,
		"errors", len(result.Errors))
	return result, nil
}

type importRun struct {
	ctx     context.Context
	adapter *db.Adapter
	opts    ImportOptions
	mode    string
	result  *ImportResult
	total   int
	current int
	// renamed 记录以新 ID 导入的文档，对应的版本随之改指向新文档。
	renamed map[string]string
}

func (r *importRun) progress(step string) {
	r.current++
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(Progress{Current: r.current, Total: r.total, Step: step})
	}
}

func (r *importRun) fail(kind, id string, err error) {
	r.result.Errors = append(r.result.Errors, fmt.Sprintf("%s %s: %v", kind, id, err))
}

// resolve 决定一条已存在记录的去向：keep 为 false 表示跳过，rename 为 true 表示换新 ID。
func (r *importRun) resolve(exists bool) (keep, rename bool) {
	switch {
	case !exists, r.opts.OverwriteExisting:
		return true, false
	case r.mode == MergeRename:
		return true, true
	default:
		return false, false
	}
}

func (r *importRun) documents(docs []db.Document) {
	for i := range docs {
		doc := docs[i]
		r.progress("documents")

		existing, err := store.Get[db.Document](r.ctx, r.adapter, db.CollectionDocuments, doc.ID)
		if err != nil {
			r.fail("document", doc.ID, err)
			continue
		}
		keep, rename := r.resolve(existing != nil)
		if !keep {
			r.result.Skipped.Documents++
			continue
		}
		if rename {
			newID := uuid.NewString()
			r.renamed[doc.ID] = newID
			doc.ID = newID
			doc.Title += ImportedTitleSuffix
		}
		if doc.Status == "" {
			doc.Status = db.DocumentStatusDraft
		}
		if _, err := store.Put(r.ctx, r.adapter, db.CollectionDocuments, &doc, store.KeepTimestamps()); err != nil {
			r.fail("document", doc.ID, err)
			continue
		}
		r.result.Imported.Documents++
	}
}

func (r *importRun) versions(versions []db.DocumentVersion) {
	for i := range versions {
		v := versions[i]
		r.progress("versions")

		if newID, ok := r.renamed[v.DocumentID]; ok {
			v.DocumentID = newID
		}
		existing, err := store.Get[db.DocumentVersion](r.ctx, r.adapter, db.CollectionVersions, v.ID)
		if err != nil {
			r.fail("version", v.ID, err)
			continue
		}
		keep, rename := r.resolve(existing != nil)
		if !keep {
			r.result.Skipped.Versions++
			continue
		}
		if rename {
			v.ID = uuid.NewString()
		}

		owner, err := store.Get[db.Document](r.ctx, r.adapter, db.CollectionDocuments, v.DocumentID)
		if err == nil && owner == nil {
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("version %s references missing document %s", v.ID, v.DocumentID))
		}

		if _, err := store.Put(r.ctx, r.adapter, db.CollectionVersions, &v, store.KeepTimestamps()); err != nil {
			r.fail("version", v.ID, err)
			continue
		}
		r.result.Imported.Versions++
	}
}

func (r *importRun) images(images []db.Image) {
	for i := range images {
		image := images[i]
		r.progress("images")

		existing, err := store.Get[db.Image](r.ctx, r.adapter, db.CollectionImages, image.ID)
		if err != nil {
			r.fail("image", image.ID, err)
			continue
		}
		keep, rename := r.resolve(existing != nil)
		if !keep {
			r.result.Skipped.Images++
			continue
		}
		if rename {
			newID := uuid.NewString()
			original := image.Filename
			if _, name, ok := strings.Cut(original, "_"); ok {
				original = name
			}
			image.ID = newID
			image.Filename = newID + "_" + original
			image.URL = db.ImageURL(newID)
		}
		if image.URL == "" {
			image.URL = db.ImageURL(image.ID)
		}
		if image.Data == "" {
			r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("image %s has no data", image.ID))
		}

		if _, err := store.Put(r.ctx, r.adapter, db.CollectionImages, &image, store.KeepTimestamps()); err != nil {
			r.fail("image", image.ID, err)
			continue
		}
		r.result.Imported.Images++
	}
}

func (r *importRun) settings(settings map[string]string) {
	if len(settings) == 0 {
		return
	}
	records := make([]*db.Setting, 0, len(settings))
	for key, value := range settings {
		records = append(records, &db.Setting{Key: key, Value: value})
	}
	if err := store.BulkPut(r.ctx, r.adapter, db.CollectionSettings, records); err != nil {
		r.result.Errors = append(r.result.Errors, fmt.Sprintf("settings: %v", err))
		return
	}
	r.result.Imported.Settings = len(records)
}
