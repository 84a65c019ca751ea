package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultImageMaxBytes 是单张图片的默认大小上限。
	DefaultImageMaxBytes int64 = 10 << 20
	// DefaultImageMaxWidth 是压缩后的默认最大宽度。
	DefaultImageMaxWidth = 1200
	// DefaultImageQuality 是 JPEG 重新编码的默认质量。
	DefaultImageQuality = 80

	imageNameMaxLength = 255
)

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// ImageOptions 控制上传校验与压缩。
type ImageOptions struct {
	MaxBytes    int64
	MaxWidth    int
	MaxHeight   int
	Quality     int
	Concurrency int
	// RawPath 是图片原始数据的 HTTP 路径前缀，ResolveURL 用它改写本地伪地址。
	RawPath string
	// Quota 不为空时，写入前检查剩余空间。
	Quota QuotaChecker
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultImageMaxBytes
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultImageMaxWidth
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultImageQuality
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.RawPath == "" {
		o.RawPath = "/api/images"
	}
	return o
}

// FileInput 是一次上传的文件。MimeType 为客户端声明的类型，仅作参考。
type FileInput struct {
	Name     string
	MimeType string
	Data     []byte
}

// UploadFailure 记录批量上传中单个文件的失败原因。
type UploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
	err   error
}

// Unwrap 返回原始错误。
func (f UploadFailure) Unwrap() error { return f.err }

// BatchUploadResult 是批量上传结果，部分失败不会中断其他文件。
type BatchUploadResult struct {
	Images []db.ImageInfo  `json:"images"`
	Errors []UploadFailure `json:"errors"`
}

// ImageListResult 是图片分页列表。
type ImageListResult struct {
	Images     []db.ImageInfo `json:"images"`
	Pagination Pagination     `json:"pagination"`
}

// ImageService 管理本地图片。
type ImageService struct {
	source db.Source
	opts   ImageOptions
	logger *slog.Logger
}

// NewImageService creates an ImageService instance.
func NewImageService(source db.Source, opts ImageOptions, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{source: source, opts: opts.withDefaults(), logger: logger}
}

// Upload 校验、压缩并保存一张图片。
func (s *ImageService) Upload(ctx context.Context, file FileInput) (*db.ImageInfo, error) {
	mime, err := s.validate(file)
	if err != nil {
		return nil, err
	}

	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := compressImage(file.Data, mime, s.opts.MaxWidth, s.opts.MaxHeight, s.opts.Quality)
	if err != nil {
		// 无法解码的图片按原样保存
		s.logger.Warn("image compression skipped", "name", file.Name, "error", err)
	}

	id := uuid.NewString()
	record := &db.Image{
		ID:           id,
		Filename:     id + "_" + sanitizeFilename(file.Name),
		OriginalName: file.Name,
		Size:         int64(len(encoded.data)),
		Mimetype:     encoded.mime,
		URL:          db.ImageURL(id),
		UploadedAt:   db.At(adapter.Now()),
		Width:        encoded.width,
		Height:       encoded.height,
		Data:         EncodeDataURL(encoded.mime, encoded.data),
		Compressed:   encoded.compressed,
	}
	if encoded.compressed {
		originalSize := int64(len(file.Data))
		record.OriginalSize = &originalSize
	}
	if s.opts.Quota != nil {
		if err := ensureCapacity(s.opts.Quota.CheckStorageQuota(ctx), int64(len(record.Data))); err != nil {
			return nil, err
		}
	}

	saved, err := store.Put(ctx, adapter, db.CollectionImages, record)
	if err != nil {
		return nil, err
	}
	info := saved.Public()
	return &info, nil
}

// UploadMany 并发上传多张图片，单个文件失败只记录在结果中。
func (s *ImageService) UploadMany(ctx context.Context, files []FileInput) *BatchUploadResult {
	uploaded := make([]*db.ImageInfo, len(files))
	failures := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := range files {
		i := i
		g.Go(func() error {
			info, err := s.Upload(ctx, files[i])
			uploaded[i], failures[i] = info, err
			return nil
		})
	}
	_ = g.Wait()

	result := &BatchUploadResult{Images: []db.ImageInfo{}, Errors: []UploadFailure{}}
	for i := range files {
		if failures[i] != nil {
			s.logger.Warn("image upload failed", "name", files[i].Name, "error", failures[i])
			result.Errors = append(result.Errors, UploadFailure{Name: files[i].Name, Error: failures[i].Error(), err: failures[i]})
			continue
		}
		result.Images = append(result.Images, *uploaded[i])
	}
	return result
}

// Delete 删除图片，filename 可以是文件名、图片 ID 或本地伪地址。
func (s *ImageService) Delete(ctx context.Context, filename string) error {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return err
	}
	return adapter.ExecuteTransaction(ctx, []string{db.CollectionImages}, db.ReadWrite, func(tx *db.Tx) error {
		image, err := findImage(ctx, tx, filename)
		if err != nil {
			return err
		}
		_, err = store.Delete[db.Image](ctx, tx, db.CollectionImages, image.ID)
		return err
	})
}

// Info 返回图片的公开信息。
func (s *ImageService) Info(ctx context.Context, filename string) (*db.ImageInfo, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	image, err := findImage(ctx, adapter, filename)
	if err != nil {
		return nil, err
	}
	info := image.Public()
	return &info, nil
}

// Data 返回图片的 data URL。
func (s *ImageService) Data(ctx context.Context, id string) (string, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return "", err
	}
	image, err := findImage(ctx, adapter, id)
	if err != nil {
		return "", err
	}
	return image.Data, nil
}

// Raw 返回图片的 mime 与原始字节，用于直接输出。
func (s *ImageService) Raw(ctx context.Context, filename string) (string, []byte, error) {
	data, err := s.Data(ctx, filename)
	if err != nil {
		return "", nil, err
	}
	mime, raw, err := DecodeDataURL(data)
	if err != nil {
		return "", nil, fmt.Errorf("image %s: %w", filename, err)
	}
	return mime, raw, nil
}

// ResolveURL 把本地伪地址改写为可访问的路径，其他地址原样返回。
func (s *ImageService) ResolveURL(url string) string {
	trimmed := strings.TrimSpace(url)
	if id, ok := db.ImageIDFromURL(trimmed); ok {
		return strings.TrimRight(s.opts.RawPath, "/") + "/" + id + "/raw"
	}
	return trimmed
}

// List 按上传时间倒序分页列出图片。
func (s *ImageService) List(ctx context.Context, page, limit int) (*ImageListResult, error) {
	adapter, err := s.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	page = normalizePage(page)
	limit = normalizePerPage(limit, 20)

	result, err := store.GetPage[db.Image](ctx, adapter, db.CollectionImages, store.PageQuery{
		Page:      page,
		Limit:     limit,
		OrderBy:   "uploadedAt",
		Direction: store.Desc,
	})
	if err != nil {
		return nil, err
	}

	images := make([]db.ImageInfo, 0, len(result.Data))
	for i := range result.Data {
		images = append(images, result.Data[i].Public())
	}
	return &ImageListResult{Images: images, Pagination: newPagination(page, limit, result.Total)}, nil
}

func (s *ImageService) validate(file FileInput) (string, error) {
	if err := validation.Validate(file.Name,
		validation.Required,
		validation.Length(1, imageNameMaxLength),
	); err != nil {
		return "", ValidationError(fmt.Errorf("name: %w", err))
	}
	if len(file.Data) == 0 {
		return "", ErrImageEmpty
	}
	if err := validation.Validate(int64(len(file.Data)), validation.Max(s.opts.MaxBytes)); err != nil {
		return "", fmt.Errorf("%w: %s exceeds %s", ErrImageTooLarge,
			humanize.IBytes(uint64(len(file.Data))), humanize.IBytes(uint64(s.opts.MaxBytes)))
	}

	detected := mimetype.Detect(file.Data).String()
	if err := validation.Validate(detected, validation.In(MimeJPEG, MimePNG, MimeGIF, MimeWebP)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrImageType, detected)
	}
	return detected, nil
}

func findImage(ctx context.Context, r db.Runner, key string) (*db.Image, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrImageNotFound
	}
	if id, ok := db.ImageIDFromURL(key); ok {
		key = id
	}

	matches, err := store.FindByIndex[db.Image](ctx, r, db.CollectionImages, "filename", key, 1)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return &matches[0], nil
	}

	image, err := store.Get[db.Image](ctx, r, db.CollectionImages, key)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, ErrImageNotFound
	}
	return image, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Trim(unsafeFilenameChars.ReplaceAllString(base, "_"), "_")
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "image"
	}
	return cleaned
}
