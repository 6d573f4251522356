package dispatch

import (
	"context"
	"sync"
	"time"

	"tradecmd/internal/intent"
)

// Flights 将同一键上并发到达的请求合并为一次上游调用。
//
// "查在途、否则起飞" 必须是单个原子步骤，否则微秒级先后到达的两个
// 请求会各自触发一次昂贵调用——这里用一把互斥锁覆盖整个判定。
// 去重窗口限制加入既有航班的时限：航班起飞超过窗口后，新到请求
// 另起一班，旧航班继续为自己的等待者服务。
//
// 上游调用在脱离调用方取消链的 context 中执行：发起者中途放弃时，
// 其他等待者仍需要这个结果，共享调用不得被连带取消；放弃者仅仅
// 停止等待。
type Flights struct {
	pool   *Pool
	window time.Duration

	mu sync.Mutex
	m  map[string]*flight
}

type flight struct {
	done    chan struct{}
	started time.Time
	val     intent.Intent
	err     error
}

// ResolveFunc 为实际的上游解析调用。
type ResolveFunc func(ctx context.Context) (intent.Intent, error)

// NewFlights 创建去重器。pool 限制所有经由此处的上游调用并发；
// window 为正时限定合流时限。
func NewFlights(pool *Pool, window time.Duration) *Flights {
	return &Flights{
		pool:   pool,
		window: window,
		m:      make(map[string]*flight),
	}
}

// Do 以 key 去重执行 fn。同键在途时加入等待，共享同一结果（成功或
// 失败）；否则在取得调用池槽位后执行。等待者的 ctx 取消只影响它
// 自己。
func (f *Flights) Do(ctx context.Context, key string, fn ResolveFunc) (intent.Intent, error) {
	f.mu.Lock()
	if fl, ok := f.m[key]; ok && time.Since(fl.started) < f.window {
		f.mu.Unlock()
		return f.wait(ctx, fl)
	}

	fl := &flight{done: make(chan struct{}), started: time.Now()}
	f.m[key] = fl
	f.mu.Unlock()

	// 上游调用不跟随任何单个调用方的取消，仅保留发起者的链路值；
	// 有界性由调用池保证。
	go f.run(context.WithoutCancel(ctx), key, fl, fn)

	return f.wait(ctx, fl)
}

func (f *Flights) run(ctx context.Context, key string, fl *flight, fn ResolveFunc) {
	if err := f.pool.Acquire(ctx); err != nil {
		fl.err = err
		f.finish(key, fl)
		return
	}
	defer f.pool.Release()

	fl.val, fl.err = fn(ctx)
	f.finish(key, fl)
}

func (f *Flights) finish(key string, fl *flight) {
	f.mu.Lock()
	// 窗口过期后该键可能已被新航班占用，只移除自己。
	if f.m[key] == fl {
		delete(f.m, key)
	}
	f.mu.Unlock()
	close(fl.done)
}

func (f *Flights) wait(ctx context.Context, fl *flight) (intent.Intent, error) {
	select {
	case <-fl.done:
		return fl.val, fl.err
	case <-ctx.Done():
		return intent.Intent{}, ctx.Err()
	}
}

// InFlight 返回当前在途航班数。
func (f *Flights) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}
