// internal/services/lock_manager_test.go
package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunLockSerializesWriters(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = lm.ExecuteWithRunLock("run", func() error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestRunLockReturnsError(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	want := errors.New("失败")
	assert.ErrorIs(t, lm.ExecuteWithRunLock("run", func() error { return want }), want)
	assert.NoError(t, lm.ExecuteWithRunReadLock("run", func() error { return nil }))
}

func TestForgetAndCleanup(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	_ = lm.ExecuteWithRunLock("a", func() error { return nil })
	_ = lm.ExecuteWithRunLock("b", func() error { return nil })
	assert.Equal(t, 2, lm.Size())

	lm.Forget("a")
	assert.Equal(t, 1, lm.Size())

	lm.maxLocks = 0
	lm.cleanupUnusedLocks(time.Now())
	assert.Equal(t, 1, lm.Size(), "未过期的锁保留")
	lm.cleanupUnusedLocks(time.Now().Add(time.Hour))
	assert.Zero(t, lm.Size())
}

func TestForgetKeepsReferencedLock(t *testing.T) {
	lm := NewLockManager()
	defer lm.Stop()

	inside := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = lm.ExecuteWithRunLock("busy", func() error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside
	lm.Forget("busy")
	assert.Equal(t, 1, lm.Size(), "持有中的锁不会被移除")
	close(release)
}
