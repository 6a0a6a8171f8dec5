// internal/savegame/helpers_test.go
package savegame

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/engine"
	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

func defaultGraph(t *testing.T) *story.Graph {
	t.Helper()
	g, err := story.Default()
	require.NoError(t, err, "内置剧情应能加载")
	return g
}

// playedState 走过开场、一次点单与一次选择后的状态
func playedState(t *testing.T, g *story.Graph) *models.State {
	t.Helper()
	run := engine.NewRun(g)
	_, err := run.Start()
	require.NoError(t, err)
	_, err = run.Choose(0)
	require.NoError(t, err)
	_, err = run.SubmitOrder(models.OrderDraft{DrinkID: "cipher-tonic", ExtraIDs: []string{"extra-citrus"}})
	require.NoError(t, err)
	_, err = run.Choose(0)
	require.NoError(t, err)
	_, err = run.SaveOrderDraft(models.OrderDraft{DrinkID: "proxy-smoke", ExtraIDs: []string{}})
	require.NoError(t, err)
	require.NoError(t, run.SetAudioSettings([]byte(`{"music":{"enabled":true,"volume":0.3}}`)))
	return run.State()
}

func newFileManager(t *testing.T, g *story.Graph) (*Manager, *storage.FileStorage) {
	t.Helper()
	fs, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return NewManager(fs, g), fs
}

// memoryStore 内存槽位后端，可注入写入错误或阻塞
type memoryStore struct {
	mu      sync.Mutex
	slots   map[string][]byte
	writes  []string
	byUser  map[string][]string
	putErr  error
	started chan struct{}
	release chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{slots: map[string][]byte{}, byUser: map[string][]string{}}
}

func (m *memoryStore) PutSlot(ctx context.Context, profile string, slot models.SlotID, data []byte) error {
	if m.started != nil {
		m.started <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.slots[profile+"/"+string(slot)] = append([]byte(nil), data...)
	var doc struct {
		SceneID string `json:"sceneId"`
	}
	if err := json.Unmarshal(data, &doc); err == nil {
		m.writes = append(m.writes, doc.SceneID)
		m.byUser[profile] = append(m.byUser[profile], doc.SceneID)
	}
	return nil
}

func (m *memoryStore) GetSlot(ctx context.Context, profile string, slot models.SlotID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[profile+"/"+string(slot)]
	if !ok {
		return nil, apperrors.NewNotFoundError("槽位为空", nil)
	}
	return data, nil
}

func (m *memoryStore) DeleteSlot(ctx context.Context, profile string, slot models.SlotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, profile+"/"+string(slot))
	return nil
}

func (m *memoryStore) ListSlots(ctx context.Context, profile string) ([]storage.SlotRecord, error) {
	return nil, nil
}

func (m *memoryStore) ListProfiles(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

func (m *memoryStore) writtenFor(profile string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.byUser[profile]...)
}
