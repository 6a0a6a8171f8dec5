// internal/savegame/autosave.go
package savegame

import (
	"context"
	"sync"
	"time"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// AutoSaver 异步写入自动存档槽。
// 每个档案最多保留一条待写检查点，新的检查点覆盖同档案未写出的旧检查点，
// 不同档案之间互不挤占；待写档案数达到上限时拒绝新档案的请求。
// 写入失败只记录日志与计数，不回写任何内存状态。
type AutoSaver struct {
	manager *Manager
	limit   int
	timeout time.Duration
	wake    chan struct{}

	mu      sync.Mutex
	pending map[string]*models.State
	order   []string
	closed  bool
	wg      sync.WaitGroup
	onWrite func(profile string, err error)
}

// NewAutoSaver 创建自动存档器。queueSize 为同时待写的档案数上限，小于 1 时按 1 处理
func NewAutoSaver(manager *Manager, queueSize int) *AutoSaver {
	if queueSize < 1 {
		queueSize = 1
	}
	a := &AutoSaver{
		manager: manager,
		limit:   queueSize,
		timeout: 5 * time.Second,
		wake:    make(chan struct{}, 1),
		pending: make(map[string]*models.State),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// OnWrite 注册写入完成回调（测试与统计使用）
func (a *AutoSaver) OnWrite(fn func(profile string, err error)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onWrite = fn
}

// Enqueue 提交一次自动存档。状态会被复制，调用方可继续修改自己的副本。
func (a *AutoSaver) Enqueue(profile string, s *models.State) bool {
	if s == nil {
		return false
	}
	snapshot := s.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	if _, ok := a.pending[profile]; ok {
		a.pending[profile] = snapshot
		return true
	}
	if len(a.order) >= a.limit {
		utils.GetLogger().Warn("自动存档待写档案已达上限，本次检查点未入队", utils.Fields{
			"profile": profile,
			"pending": len(a.order),
		})
		return false
	}
	a.pending[profile] = snapshot
	a.order = append(a.order, profile)
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

// next 取出最早入队档案的最新检查点；关闭且无待写时返回 false
func (a *AutoSaver) next() (string, *models.State, bool) {
	a.mu.Lock()
	for len(a.order) == 0 {
		if a.closed {
			a.mu.Unlock()
			return "", nil, false
		}
		a.mu.Unlock()
		<-a.wake
		a.mu.Lock()
	}
	profile := a.order[0]
	a.order = a.order[1:]
	st := a.pending[profile]
	delete(a.pending, profile)
	a.mu.Unlock()
	return profile, st, true
}

func (a *AutoSaver) loop() {
	defer a.wg.Done()
	for {
		profile, st, ok := a.next()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		_, err := a.manager.Save(ctx, profile, models.SlotAuto, st)
		cancel()
		if err != nil {
			utils.GetLogger().Error("自动存档失败", utils.Fields{"profile": profile, "error": err.Error()})
		}

		a.mu.Lock()
		fn := a.onWrite
		a.mu.Unlock()
		if fn != nil {
			fn(profile, err)
		}
	}
}

// Close 停止接收新请求并等待待写检查点全部写完
func (a *AutoSaver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()
	select {
	case a.wake <- struct{}{}:
	default:
	}
	a.wg.Wait()
}
