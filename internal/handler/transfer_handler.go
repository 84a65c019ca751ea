package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/db"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
	"github.com/wechatpad/internal/transfer"
)

func exportOptions(c *gin.Context) (transfer.ExportOptions, error) {
	opts := transfer.DefaultExportOptions()
	opts.DocumentIDs = queryList(c, "documentIds")
	opts.IncludeVersions = queryBool(c, "includeVersions", opts.IncludeVersions)
	opts.IncludeImages = queryBool(c, "includeImages", opts.IncludeImages)
	opts.IncludeImageData = queryBool(c, "includeImageData", opts.IncludeImageData)
	opts.IncludeSettings = queryBool(c, "includeSettings", opts.IncludeSettings)

	from, err := queryTime(c, "from")
	if err != nil {
		return opts, err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return opts, err
	}
	opts.From, opts.To = from, to
	return opts, nil
}

// Export 导出数据。download=1 时以附件形式返回并记录导出时间。
func (a *API) Export(c *gin.Context) {
	opts, err := exportOptions(c)
	if err != nil {
		a.fail(c, err)
		return
	}

	data, err := a.transfer.Export(c.Request.Context(), opts)
	if err != nil {
		a.fail(c, err)
		return
	}

	if !queryBool(c, "download", false) {
		c.JSON(http.StatusOK, data)
		return
	}

	now := time.Now()
	if _, err := a.settings.Update(c.Request.Context(), map[string]string{
		db.SettingKeyLastExportAt: now.UTC().Format(time.RFC3339),
	}); err != nil {
		a.logger.Warn("record export time failed", "error", err)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", transfer.FileName(now)))
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Status(http.StatusOK)
	if err := transfer.Encode(c.Writer, data); err != nil {
		a.logger.Error("write export failed", "error", err)
	}
}

// ExportPreview 估算导出内容的大小与数量。
func (a *API) ExportPreview(c *gin.Context) {
	opts, err := exportOptions(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	preview, err := a.transfer.Preview(c.Request.Context(), opts)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// readImportData 读取 multipart 字段 file，或直接读取 JSON 请求体。
func readImportData(c *gin.Context) (*transfer.ExportData, error) {
	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, service.ValidationError(fmt.Errorf("import file is missing: %w", err))
		}
		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()
		body = file
	}
	return transfer.Decode(body)
}

// Import 导入数据。校验失败时不写入任何记录，并返回校验错误列表。
func (a *API) Import(c *gin.Context) {
	data, err := readImportData(c)
	if err != nil {
		a.fail(c, err)
		return
	}

	opts := transfer.ImportOptions{
		OverwriteExisting: queryBool(c, "overwrite", false),
		MergeMode:         c.DefaultQuery("mergeMode", transfer.MergeSkip),
		SkipValidation:    queryBool(c, "skipValidation", false),
	}
	result, err := a.transfer.Import(c.Request.Context(), data, opts)
	if err != nil {
		if result != nil && service.Classify(err) == service.KindValidation {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":  a.say(c, locale.ImportRejected),
				"result": result,
			})
			return
		}
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ValidateImport 只校验导入文件，不写入数据。
func (a *API) ValidateImport(c *gin.Context) {
	data, err := readImportData(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.transfer.Validate(c.Request.Context(), data))
}
