package capture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrSourceUnavailable 媒体源无法获取（对应摄像头被拒绝等情况）
var ErrSourceUnavailable = errors.New("media source unavailable")

// Source 媒体源
type Source interface {
	// Open 获取媒体源；失败时会话进入 errored
	Open() error
	// Ready 媒体源是否已开始出帧
	Ready() bool
	// Snapshot 返回当前帧
	Snapshot() (image.Image, error)
	Close() error
}

// DirSource 循环读取目录中的 JPEG/PNG 文件，作为无摄像头环境下的媒体源
type DirSource struct {
	dir string

	mu     sync.Mutex
	files  []string
	next   int
	opened bool
}

// NewDirSource 创建目录媒体源
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Open() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(s.dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrSourceUnavailable, s.dir)
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.next = 0
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *DirSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *DirSource) Snapshot() (image.Image, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil, ErrSourceUnavailable
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	s.files = nil
	return nil
}

// PatternSource 合成的移动渐变画面（演示模式）
type PatternSource struct {
	width, height int

	mu     sync.Mutex
	frame  int
	opened bool
}

// NewPatternSource 创建合成媒体源
func NewPatternSource(width, height int) *PatternSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &PatternSource{width: width, height: height}
}

func (s *PatternSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *PatternSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *PatternSource) Snapshot() (image.Image, error) {
	s.mu.Lock()
	if !s.opened {
		s.mu.Unlock()
		return nil, ErrSourceUnavailable
	}
	shift := s.frame * 8
	s.frame++
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + shift) % 256),
				G: uint8(y % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img, nil
}

func (s *PatternSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}
