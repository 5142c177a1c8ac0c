package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const jpegDataURLPrefix = "data:image/jpeg;base64,"

// Frame 学生端上送的单帧（发送后不保留）
type Frame struct {
	Image     string `json:"image"`     // base64 JPEG data URL
	Timestamp int64  `json:"timestamp"` // 客户端采集时间（epoch 毫秒）
}

// NewFrame 由 JPEG 字节和采集时间构造帧
func NewFrame(jpeg []byte, capturedAt time.Time) Frame {
	return Frame{
		Image:     jpegDataURLPrefix + base64.StdEncoding.EncodeToString(jpeg),
		Timestamp: capturedAt.UnixMilli(),
	}
}

// Decode 解析 data URL，返回原始图像字节
func (f Frame) Decode() ([]byte, error) {
	header, payload, ok := strings.Cut(f.Image, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: image is not a base64 data URL", ErrMalformed)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 payload: %v", ErrMalformed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrMalformed)
	}
	return data, nil
}
