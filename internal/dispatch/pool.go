package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool 限制某一类外部调用的并发数。缓存各级之外唯一的背压点：超出
// 上限的调用方挂起排队，信号量按 FIFO 顺序唤醒，槽位释放立即放行
// 下一个。运行中与排队中的数量可随时观测。
type Pool struct {
	name    string
	limit   int64
	sem     *semaphore.Weighted
	running atomic.Int64
	waiting atomic.Int64
}

// PoolStats 为限流器的瞬时状态。
type PoolStats struct {
	Name    string `json:"name"`
	Limit   int    `json:"limit"`
	Running int    `json:"running"`
	Waiting int    `json:"waiting"`
}

// NewPool 创建并发限制为 limit 的调用池。
func NewPool(name string, limit int) (*Pool, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("调用池 %q 并发上限必须大于0, 当前为 %d", name, limit)
	}
	return &Pool{
		name:  name,
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
	}, nil
}

// Acquire 占用一个槽位，满载时阻塞直至有槽位释放或 ctx 取消。
func (p *Pool) Acquire(ctx context.Context) error {
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return fmt.Errorf("等待调用池 %q 槽位失败: %w", p.name, err)
	}
	p.running.Add(1)
	return nil
}

// Release 归还槽位。必须与成功的 Acquire 配对。
func (p *Pool) Release() {
	p.running.Add(-1)
	p.sem.Release(1)
}

// Stats 返回当前运行/排队数量。
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:    p.name,
		Limit:   int(p.limit),
		Running: int(p.running.Load()),
		Waiting: int(p.waiting.Load()),
	}
}
