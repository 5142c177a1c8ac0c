package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// DefaultJPEGQuality 有损编码质量（与浏览器端 toDataURL 的 0.8 对齐）
const DefaultJPEGQuality = 80

// Encoder 将一帧图像编码为字节
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
}

// JPEGEncoder 固定质量的 JPEG 编码器
type JPEGEncoder struct {
	Quality int
}

// NewJPEGEncoder 创建 JPEG 编码器；quality 不在 1..100 时使用默认值
func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &JPEGEncoder{Quality: quality}
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
