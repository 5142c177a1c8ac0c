package aggregator

import "github.com/AniketZimane/EduVision-AI/internal/models"

// DefaultCapacity 教师端滚动窗口容量
const DefaultCapacity = 50

// RollingBuffer 按到达顺序保存 ChartPoint，超过容量时 FIFO 淘汰最旧的点。
// 底层数组长度固定为容量，内存有界。
type RollingBuffer struct {
	capacity int
	points   []models.ChartPoint
}

// NewRollingBuffer 创建滚动窗口；capacity <= 0 时使用默认容量
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RollingBuffer{
		capacity: capacity,
		points:   make([]models.ChartPoint, 0, capacity),
	}
}

// Push 追加一个点，满时淘汰最旧的点
func (b *RollingBuffer) Push(p models.ChartPoint) {
	if len(b.points) < b.capacity {
		b.points = append(b.points, p)
		return
	}
	copy(b.points, b.points[1:])
	b.points[len(b.points)-1] = p
}

// Replace 整体替换窗口内容，只保留最后 capacity 个点（保持原相对顺序）
func (b *RollingBuffer) Replace(points []models.ChartPoint) {
	if len(points) > b.capacity {
		points = points[len(points)-b.capacity:]
	}
	b.points = b.points[:len(points)]
	copy(b.points, points)
}

// Len 当前点数
func (b *RollingBuffer) Len() int { return len(b.points) }

// Cap 容量
func (b *RollingBuffer) Cap() int { return b.capacity }

// Points 返回按到达顺序排列的副本
func (b *RollingBuffer) Points() []models.ChartPoint {
	out := make([]models.ChartPoint, len(b.points))
	copy(out, b.points)
	return out
}

// lastMatching 逆序（最新在前）返回最多 limit 个满足条件的点
func (b *RollingBuffer) lastMatching(limit int, match func(models.ChartPoint) bool) []models.ChartPoint {
	out := make([]models.ChartPoint, 0, limit)
	for i := len(b.points) - 1; i >= 0 && len(out) < limit; i-- {
		if match(b.points[i]) {
			out = append(out, b.points[i])
		}
	}
	return out
}
