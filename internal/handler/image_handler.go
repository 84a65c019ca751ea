package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wechatpad/internal/locale"
	"github.com/wechatpad/internal/service"
)

// ListImages 返回分页的图片列表，不含图片数据。
func (a *API) ListImages(c *gin.Context) {
	result, err := a.images.List(c.Request.Context(), queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// UploadImages 处理图片上传。表单字段 images 为批量上传，image 为单张上传。
func (a *API) UploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondError(c, http.StatusBadRequest, a.say(c, locale.ImageMissing))
		return
	}

	if headers := form.File["images"]; len(headers) > 0 {
		files := make([]service.FileInput, 0, len(headers))
		for _, header := range headers {
			file, err := readUpload(header)
			if err != nil {
				a.fail(c, err)
				return
			}
			files = append(files, file)
		}
		result := a.images.UploadMany(c.Request.Context(), files)
		status := http.StatusOK
		if len(result.Images) == 0 {
			status = http.StatusBadRequest
		}
		c.JSON(status, result)
		return
	}

	headers := form.File["image"]
	if len(headers) == 0 {
		respondError(c, http.StatusBadRequest, a.say(c, locale.ImageMissing))
		return
	}
	file, err := readUpload(headers[0])
	if err != nil {
		a.fail(c, err)
		return
	}
	info, err := a.images.Upload(c.Request.Context(), file)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": a.say(c, locale.ImageUploaded),
		"image":   info,
	})
}

func readUpload(header *multipart.FileHeader) (service.FileInput, error) {
	src, err := header.Open()
	if err != nil {
		return service.FileInput{}, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return service.FileInput{}, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	return service.FileInput{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

// GetImageInfo 按文件名、ID 或 local-image 地址查找图片。
func (a *API) GetImageInfo(c *gin.Context) {
	info, err := a.images.Info(c.Request.Context(), c.Param("filename"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": info})
}

// GetImageRaw 输出图片原始字节供编辑器展示。
func (a *API) GetImageRaw(c *gin.Context) {
	mimeType, data, err := a.images.Raw(c.Request.Context(), c.Param("filename"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, mimeType, data)
}

func (a *API) DeleteImage(c *gin.Context) {
	if err := a.images.Delete(c.Request.Context(), c.Param("filename")); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": a.say(c, locale.ImageDeleted)})
}

// ResolveImageURL 将 local-image:// 地址改写为可访问的 HTTP 地址，其他地址原样返回。
func (a *API) ResolveImageURL(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"url": a.images.ResolveURL(c.Query("url"))})
}
