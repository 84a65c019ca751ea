package service

import (
	"errors"
	"fmt"

	"github.com/wechatpad/internal/db"
)

// 错误类别。具体错误通过 errors.Is 归入其中之一。
var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

var (
	ErrDocumentNotFound = kindError(ErrNotFound, "document not found")
	ErrVersionNotFound  = kindError(ErrNotFound, "version not found")
	ErrImageNotFound    = kindError(ErrNotFound, "image not found")
	ErrStaleWrite       = kindError(ErrConflict, "document was modified by another editor")
	ErrStatusInvalid    = kindError(ErrValidation, "document status is invalid")
	ErrImageEmpty       = kindError(ErrValidation, "image file is empty")
	ErrImageTooLarge    = kindError(ErrValidation, "image file is too large")
	ErrImageType        = kindError(ErrValidation, "unsupported image type")
	ErrInvalidLogin     = kindError(ErrValidation, "invalid username or password")
)

// Kind 是面向调用方的错误类别。
type Kind string

const (
	KindNone        Kind = ""
	KindNotFound    Kind = "not_found"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindQuota       Kind = "quota_exceeded"
	KindUnavailable Kind = "storage_unavailable"
	KindStorage     Kind = "storage"
)

type categorized struct {
	kind error
	msg  string
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.kind }

func kindError(kind error, msg string) error {
	return &categorized{kind: kind, msg: msg}
}

// ValidationError 包装一次校验失败，保留原始原因。
func ValidationError(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, cause)
}

// Classify 将任意错误归类，调用方无需检查内部错误类型即可区分"不存在"、
// "校验失败"与"存储引擎错误"。
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, db.ErrUnavailable):
		return KindUnavailable
	default:
		return KindStorage
	}
}
