// internal/savegame/autosave_test.go
package savegame

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func TestAutoSaverWritesAutoSlot(t *testing.T) {
	g := defaultGraph(t)
	m, _ := newFileManager(t, g)
	a := NewAutoSaver(m, 4)

	done := make(chan error, 1)
	a.OnWrite(func(profile string, err error) { done <- err })

	st := playedState(t, g)
	require.True(t, a.Enqueue(profile, st))
	st.SceneID = "s09"

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("自动存档未在超时内完成")
	}
	a.Close()

	loaded, err := m.Load(context.Background(), profile, models.SlotAuto)
	require.NoError(t, err)
	assert.NotEqual(t, "s09", loaded.SceneID, "入队后修改调用方状态不影响存档")
}

func TestAutoSaverReportsFailure(t *testing.T) {
	store := newMemoryStore()
	store.putErr = errors.New("磁盘已满")
	a := NewAutoSaver(NewManager(store, nil), 1)

	done := make(chan error, 1)
	a.OnWrite(func(profile string, err error) { done <- err })
	require.True(t, a.Enqueue(profile, stateAt("s01")))

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("写入失败也应回调")
	}
	a.Close()
}

func TestAutoSaverCoalescesSameProfile(t *testing.T) {
	store := newMemoryStore()
	store.started = make(chan struct{}, 4)
	store.release = make(chan struct{})
	a := NewAutoSaver(NewManager(store, nil), 1)

	require.True(t, a.Enqueue(profile, stateAt("s01")))
	<-store.started // 第一条正在写入

	require.True(t, a.Enqueue(profile, stateAt("s02")))
	require.True(t, a.Enqueue(profile, stateAt("s03")), "同档案的新检查点覆盖未写出的旧检查点")

	close(store.release)
	a.Close()

	assert.Equal(t, []string{"s01", "s03"}, store.written())
}

func TestAutoSaverKeepsOtherProfiles(t *testing.T) {
	store := newMemoryStore()
	store.started = make(chan struct{}, 4)
	store.release = make(chan struct{})
	a := NewAutoSaver(NewManager(store, nil), 2)

	require.True(t, a.Enqueue("alice", stateAt("s01")))
	<-store.started // alice 的第一条正在写入

	require.True(t, a.Enqueue("alice", stateAt("s02")))
	require.True(t, a.Enqueue("bob", stateAt("s05")))
	require.True(t, a.Enqueue("alice", stateAt("s03")), "alice 连续推进不挤掉 bob")

	close(store.release)
	a.Close()

	assert.Equal(t, []string{"s01", "s03", "s05"}, store.written())
	assert.Equal(t, []string{"s01", "s03"}, store.writtenFor("alice"))
	assert.Equal(t, []string{"s05"}, store.writtenFor("bob"))
}

func TestAutoSaverRejectsNewProfileWhenFull(t *testing.T) {
	store := newMemoryStore()
	store.started = make(chan struct{}, 4)
	store.release = make(chan struct{})
	a := NewAutoSaver(NewManager(store, nil), 1)

	require.True(t, a.Enqueue("alice", stateAt("s01")))
	<-store.started

	require.True(t, a.Enqueue("bob", stateAt("s05")))
	assert.False(t, a.Enqueue("carol", stateAt("s07")), "待写档案已满时拒绝新档案")
	assert.True(t, a.Enqueue("bob", stateAt("s06")), "已在队列中的档案仍可覆盖")

	close(store.release)
	a.Close()

	assert.Equal(t, []string{"s06"}, store.writtenFor("bob"))
	assert.Empty(t, store.writtenFor("carol"))
}

func TestAutoSaverClosed(t *testing.T) {
	a := NewAutoSaver(NewManager(newMemoryStore(), nil), 1)
	a.Close()
	a.Close()

	assert.False(t, a.Enqueue(profile, stateAt("s01")))
	assert.False(t, a.Enqueue(profile, nil))
}
