package db

import "strings"

// ImageURLPrefix 是本地图片伪地址的前缀，后接图片 ID。
const ImageURLPrefix = "local-image://"

// Image 定义本地存储的图片记录，Data 保存 data URL 形式的图片内容。
type Image struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Filename     string    `gorm:"size:255;index" json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Mimetype     string    `gorm:"size:64" json:"mimetype"`
	URL          string    `gorm:"size:255" json:"url"`
	UploadedAt   Timestamp `gorm:"index" json:"uploadedAt"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Data         string    `gorm:"type:text" json:"data,omitempty"`
	Compressed   bool      `json:"compressed,omitempty"`
	OriginalSize *int64    `json:"originalSize,omitempty"`
	Timestamps
}

// ImageInfo 是对外返回的图片信息，不含图片数据。
type ImageInfo struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	URL          string    `json:"url"`
	UploadedAt   Timestamp `json:"uploadedAt"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Compressed   bool      `json:"compressed,omitempty"`
	OriginalSize *int64    `json:"originalSize,omitempty"`
}

// TableName 指定自定义表名。
func (Image) TableName() string {
	return CollectionImages
}

// RecordID 实现 Record。
func (i *Image) RecordID() string {
	return i.ID
}

// SearchField 实现 Searchable。
func (i *Image) SearchField(name string) (string, bool) {
	switch name {
	case "filename":
		return i.Filename, true
	case "originalName":
		return i.OriginalName, true
	case "mimetype":
		return i.Mimetype, true
	}
	return "", false
}

// Public 返回去除图片数据后的投影。
func (i *Image) Public() ImageInfo {
	return ImageInfo{
		ID:           i.ID,
		Filename:     i.Filename,
		OriginalName: i.OriginalName,
		Size:         i.Size,
		Mimetype:     i.Mimetype,
		URL:          i.URL,
		UploadedAt:   i.UploadedAt,
		Width:        i.Width,
		Height:       i.Height,
		Compressed:   i.Compressed,
		OriginalSize: i.OriginalSize,
	}
}

// ImageURL 根据图片 ID 生成本地伪地址。
func ImageURL(id string) string {
	return ImageURLPrefix + id
}

// ImageIDFromURL 从本地伪地址解析图片 ID，非本地地址返回 false。
func ImageIDFromURL(url string) (string, bool) {
	trimmed := strings.TrimSpace(url)
	if !strings.HasPrefix(trimmed, ImageURLPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(trimmed, ImageURLPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
