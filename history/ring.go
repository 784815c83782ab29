package history

import (
	"sync"
	"time"

	"conditional-orders-go/order"
)

// DefaultCapacity 每个 owner 保留的终态记录上限。
const DefaultCapacity = 1000

// Entry 一条终态记录（订单快照 + 归档时间）。
type Entry struct {
	Order      order.Order
	ArchivedAt time.Time
}

// ring 固定容量环形缓冲，满了覆盖最旧的一条（FIFO）。
type ring struct {
	buf   []Entry
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Entry, capacity)}
}

func (r *ring) push(e Entry) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = e
		r.size++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

// newest 最新的 limit 条，新的在前；limit <= 0 表示全部。
func (r *ring) newest(limit int) []Entry {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	res := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (r.start + r.size - 1 - i) % len(r.buf)
		res = append(res, r.buf[idx])
	}
	return res
}

// Log 按 owner 分片的只追加终态日志。
type Log struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string]*ring
}

// NewLog 创建历史日志；capacity <= 0 时使用默认值。
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Append 追加一条终态记录。非终态订单被忽略。
func (l *Log) Append(o order.Order, at time.Time) {
	if !o.Status.IsTerminal() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.rings[o.OwnerID]
	if !ok {
		r = newRing(l.capacity)
		l.rings[o.OwnerID] = r
	}
	r.push(Entry{Order: o, ArchivedAt: at})
}

// Recent 返回 owner 最近的 limit 条记录，新的在前。
func (l *Log) Recent(ownerID string, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rings[ownerID]
	if !ok {
		return []Entry{}
	}
	return r.newest(limit)
}

// Len 当前保留条数
func (l *Log) Len(ownerID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if r, ok := l.rings[ownerID]; ok {
		return r.size
	}
	return 0
}

// Stats 统计 owner 保留窗口内的终态分布。
func (l *Log) Stats(ownerID string) Statistics {
	return Compute(l.Recent(ownerID, 0))
}
