package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Sweeper 周期性过期到期订单并清理旧的终态订单。
// tick 到来时过期检查照常进行，Sweeper 只负责没有行情的资产。
type Sweeper struct {
	engine   *Engine
	interval time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
	mu       sync.RWMutex
	started  bool

	// 统计信息
	totalSweeps int64
	expired     int64
	purged      int64
	lastSweep   time.Time
}

// SweeperStats 统计信息
type SweeperStats struct {
	TotalSweeps int64
	Expired     int64
	Purged      int64
	LastSweep   time.Time
	Interval    time.Duration
}

// NewSweeper interval <= 0 表示不启用，Start 直接返回。
func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:   e,
		interval: interval,
	}
}

// Start 启动清扫循环，Stop 之后可以再次 Start。
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval <= 0 || s.started {
		return nil
	}
	s.started = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	go s.loop(ctx, s.stopChan, s.doneChan)
	return nil
}

// Stop 停止并等待循环退出
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// Health 启用但未运行时报错
func (s *Sweeper) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.interval > 0 && !s.started {
		return errors.New("sweeper not running")
	}
	return nil
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep 执行一次清扫
func (s *Sweeper) Sweep() (expired, purged int) {
	now := s.engine.clock.Now()
	expired = s.engine.ExpireDue(now)
	purged = s.engine.PurgeClosed(now)

	s.mu.Lock()
	s.totalSweeps++
	s.expired += int64(expired)
	s.purged += int64(purged)
	s.lastSweep = now
	s.mu.Unlock()

	if expired > 0 || purged > 0 {
		s.engine.log.LogOrder("sweep", "", map[string]interface{}{
			"expired": expired,
			"purged":  purged,
		})
	}
	return expired, purged
}

// GetStatistics 获取清扫统计
func (s *Sweeper) GetStatistics() SweeperStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SweeperStats{
		TotalSweeps: s.totalSweeps,
		Expired:     s.expired,
		Purged:      s.purged,
		LastSweep:   s.lastSweep,
		Interval:    s.interval,
	}
}
