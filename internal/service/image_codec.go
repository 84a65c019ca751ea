package service

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// 支持的图片类型。
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeGIF  = "image/gif"
	MimeWebP = "image/webp"
)

var errDataURL = errors.New("malformed data url")

type encodedImage struct {
	data       []byte
	mime       string
	width      int
	height     int
	compressed bool
}

// compressImage 把图片缩放到 maxWidth × maxHeight 以内并重新编码。
// 重新编码后不比原图小时保留原图。GIF 原样保留以免丢失动画帧。
func compressImage(data []byte, mime string, maxWidth, maxHeight, quality int) (encodedImage, error) {
	original := encodedImage{data: data, mime: mime}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return original, fmt.Errorf("decode image config: %w", err)
	}
	original.width, original.height = cfg.Width, cfg.Height
	if mime == MimeGIF {
		return original, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return original, fmt.Errorf("decode image: %w", err)
	}

	width, height := fitWithin(cfg.Width, cfg.Height, maxWidth, maxHeight)
	var canvas image.Image = src
	if width != cfg.Width || height != cfg.Height {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		canvas = dst
	}

	var buf bytes.Buffer
	outMime := MimePNG
	if isOpaque(canvas) {
		outMime = MimeJPEG
		if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
			return original, fmt.Errorf("encode jpeg: %w", err)
		}
	} else {
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, canvas); err != nil {
			return original, fmt.Errorf("encode png: %w", err)
		}
	}

	if buf.Len() >= len(data) {
		return original, nil
	}
	return encodedImage{
		data:       buf.Bytes(),
		mime:       outMime,
		width:      width,
		height:     height,
		compressed: true,
	}, nil
}

// fitWithin 等比缩放，limit <= 0 表示该方向不限制。
func fitWithin(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	ratio := 1.0
	if maxWidth > 0 && width > maxWidth {
		ratio = float64(maxWidth) / float64(width)
	}
	if maxHeight > 0 && float64(height)*ratio > float64(maxHeight) {
		ratio = float64(maxHeight) / float64(height)
	}
	if ratio >= 1 {
		return width, height
	}
	w := int(float64(width)*ratio + 0.5)
	h := int(float64(height)*ratio + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// EncodeDataURL 生成 base64 data URL。
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL 解析 base64 data URL，返回 mime 与原始字节。
func DecodeDataURL(raw string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, errDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errDataURL
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, errDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errDataURL, err)
	}
	return mime, data, nil
}
