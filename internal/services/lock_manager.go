// internal/services/lock_manager.go
package services

import (
	"sync"
	"time"
)

// LockManager 运行级别的锁管理器：同一运行同一时刻只有一个修改者
type LockManager struct {
	runLocks   map[string]*LockInfo
	globalLock sync.Mutex
	lockTTL    time.Duration
	maxLocks   int

	stopOnce sync.Once
	stop     chan struct{}
}

// LockInfo 包装锁和相关信息
type LockInfo struct {
	Mutex          *sync.RWMutex
	LastUsed       time.Time
	ReferenceCount int32 // 正在等待或持有该锁的调用数，大于 0 时不会被清理
}

// NewLockManager 创建锁管理器
func NewLockManager() *LockManager {
	lm := &LockManager{
		runLocks: make(map[string]*LockInfo),
		lockTTL:  30 * time.Minute,
		maxLocks: 200,
		stop:     make(chan struct{}),
	}

	// 启动清理器
	lm.startCleanup(5 * time.Minute)
	return lm
}

// acquire 取得锁信息并增加引用计数
func (lm *LockManager) acquire(runID string) *LockInfo {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info, exists := lm.runLocks[runID]
	if !exists {
		info = &LockInfo{Mutex: &sync.RWMutex{}}
		lm.runLocks[runID] = info
	}
	info.ReferenceCount++
	info.LastUsed = time.Now()
	return info
}

func (lm *LockManager) release(info *LockInfo) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	info.ReferenceCount--
	info.LastUsed = time.Now()
}

// ExecuteWithRunLock 在运行写锁保护下执行操作
func (lm *LockManager) ExecuteWithRunLock(runID string, fn func() error) error {
	info := lm.acquire(runID)
	defer lm.release(info)

	info.Mutex.Lock()
	defer info.Mutex.Unlock()
	return fn()
}

// ExecuteWithRunReadLock 在运行读锁保护下执行操作
func (lm *LockManager) ExecuteWithRunReadLock(runID string, fn func() error) error {
	info := lm.acquire(runID)
	defer lm.release(info)

	info.Mutex.RLock()
	defer info.Mutex.RUnlock()
	return fn()
}

// Forget 运行关闭后移除其锁（仍被引用时保留）
func (lm *LockManager) Forget(runID string) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	if info, ok := lm.runLocks[runID]; ok && info.ReferenceCount == 0 {
		delete(lm.runLocks, runID)
	}
}

// Size 当前持有的锁数量
func (lm *LockManager) Size() int {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()
	return len(lm.runLocks)
}

// Stop 停止后台清理
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}

// 定期清理未使用的锁
func (lm *LockManager) startCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-lm.stop:
				return
			case <-ticker.C:
				lm.cleanupUnusedLocks(time.Now())
			}
		}
	}()
}

func (lm *LockManager) cleanupUnusedLocks(now time.Time) {
	lm.globalLock.Lock()
	defer lm.globalLock.Unlock()

	// 只有在锁数量过多时才清理
	if len(lm.runLocks) <= lm.maxLocks {
		return
	}
	for runID, info := range lm.runLocks {
		if info.ReferenceCount == 0 && now.Sub(info.LastUsed) > lm.lockTTL {
			delete(lm.runLocks, runID)
		}
	}
}
