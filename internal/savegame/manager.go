// internal/savegame/manager.go
package savegame

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// Manager 槽位存档管理：编码、校验与后端读写。不持有运行状态。
type Manager struct {
	store   storage.SlotStore
	graph   *story.Graph
	metrics *utils.MetricsCollector
	logger  *utils.Logger
	now     func() time.Time
}

// NewManager 创建存档管理器
func NewManager(store storage.SlotStore, graph *story.Graph) *Manager {
	return &Manager{
		store:   store,
		graph:   graph,
		metrics: utils.GetMetricsCollector(),
		logger:  utils.GetLogger(),
		now:     time.Now,
	}
}

// Store 底层槽位后端
func (m *Manager) Store() storage.SlotStore {
	return m.store
}

// Save 把状态写入槽位
func (m *Manager) Save(ctx context.Context, profile string, slot models.SlotID, s *models.State) (*models.Payload, error) {
	if s == nil {
		return nil, apperrors.NewValidationError("没有可保存的状态", nil)
	}
	p := Save(s, slot, m.now())
	if err := m.put(ctx, profile, p); err != nil {
		m.metrics.IncrementCounter(utils.MetricSaveFailures)
		return nil, err
	}
	m.metrics.IncrementCounter(utils.MetricSavesWritten)
	m.logger.Debug("存档已写入", utils.Fields{"profile": profile, "slot": slot, "scene": s.SceneID})
	return p, nil
}

func (m *Manager) put(ctx context.Context, profile string, p *models.Payload) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := m.store.PutSlot(ctx, profile, p.Slot, data); err != nil {
		return apperrors.WrapError(err, fmt.Sprintf("写入槽位 %s 失败", p.Slot), apperrors.ErrorTypeError)
	}
	return nil
}

// Read 读取并校验槽位中的存档
func (m *Manager) Read(ctx context.Context, profile string, slot models.SlotID) (*models.Payload, error) {
	data, err := m.store.GetSlot(ctx, profile, slot)
	if err != nil {
		return nil, err
	}
	p, err := Decode(data)
	if err != nil {
		m.logger.Warn("槽位存档无法解析", utils.Fields{"profile": profile, "slot": slot, "error": err.Error()})
		return nil, err
	}
	if m.graph != nil && p.SceneID != models.TitleScene && p.SceneID != models.EndScene {
		if _, ok := m.graph.Scene(p.SceneID); !ok {
			return nil, apperrors.NewSaveCorruptError(fmt.Sprintf("存档场景 %s 不存在于当前剧情", p.SceneID), nil)
		}
	}
	p.Slot = slot
	return p, nil
}

// Load 读取槽位并还原为可替换的状态
func (m *Manager) Load(ctx context.Context, profile string, slot models.SlotID) (*models.State, error) {
	p, err := m.Read(ctx, profile, slot)
	if err != nil {
		return nil, err
	}
	m.metrics.IncrementCounter(utils.MetricLoads)
	return Load(p), nil
}

// Export 导出槽位为纯文本
func (m *Manager) Export(ctx context.Context, profile string, slot models.SlotID) (string, error) {
	p, err := m.Read(ctx, profile, slot)
	if err != nil {
		return "", err
	}
	return ExportText(p)
}

// Import 校验导入文本，通过后以当前版本写入槽位。失败时槽位原内容不变。
func (m *Manager) Import(ctx context.Context, profile string, slot models.SlotID, text string) (*models.Payload, error) {
	p, err := ImportText(text)
	if err != nil {
		m.metrics.IncrementCounter(utils.MetricImportsRejected)
		m.logger.Info("导入被拒绝", utils.Fields{"profile": profile, "slot": slot, "error": err.Error()})
		return nil, err
	}
	if m.graph != nil && p.SceneID != models.TitleScene && p.SceneID != models.EndScene {
		if _, ok := m.graph.Scene(p.SceneID); !ok {
			m.metrics.IncrementCounter(utils.MetricImportsRejected)
			return nil, apperrors.NewSaveCorruptError(fmt.Sprintf("导入存档场景 %s 不存在于当前剧情", p.SceneID), nil)
		}
	}
	p.Slot = slot
	if p.SavedAt.IsZero() {
		p.SavedAt = m.now().UTC()
	}
	if err := m.put(ctx, profile, p); err != nil {
		m.metrics.IncrementCounter(utils.MetricSaveFailures)
		return nil, err
	}
	m.metrics.IncrementCounter(utils.MetricSavesWritten)
	return p, nil
}

// Delete 删除槽位
func (m *Manager) Delete(ctx context.Context, profile string, slot models.SlotID) error {
	return m.store.DeleteSlot(ctx, profile, slot)
}

// Summaries 全部槽位的展示信息；损坏的槽位按空槽显示
func (m *Manager) Summaries(ctx context.Context, profile string) ([]models.SlotSummary, error) {
	records, err := m.store.ListSlots(ctx, profile)
	if err != nil {
		return nil, err
	}
	present := make(map[models.SlotID]bool, len(records))
	for _, r := range records {
		present[r.Slot] = true
	}

	out := make([]models.SlotSummary, 0, len(models.AllSlots))
	for _, slot := range models.AllSlots {
		summary := models.SlotSummary{Slot: slot, Empty: true}
		if present[slot] {
			if p, err := m.Read(ctx, profile, slot); err == nil {
				summary = m.summarize(slot, p)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func (m *Manager) summarize(slot models.SlotID, p *models.Payload) models.SlotSummary {
	summary := models.SlotSummary{
		Slot:    slot,
		SceneID: p.SceneID,
		Ending:  p.Ending,
		Steps:   len(p.PathHistory),
		SavedAt: p.SavedAt,
	}
	switch p.SceneID {
	case models.TitleScene:
		summary.Title = "标题"
	case models.EndScene:
		summary.Title = "结局回放"
	default:
		if m.graph != nil {
			if scene, ok := m.graph.Scene(p.SceneID); ok {
				summary.Title = scene.Body.Title
			}
		}
	}
	return summary
}

// UnlockedEndings 档案下所有槽位已解锁结局的并集，按首次出现顺序
func (m *Manager) UnlockedEndings(ctx context.Context, profile string) ([]string, error) {
	records, err := m.store.ListSlots(ctx, profile)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range records {
		p, err := m.Read(ctx, profile, r.Slot)
		if err != nil {
			continue
		}
		for _, id := range p.UnlockedEndings {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}
