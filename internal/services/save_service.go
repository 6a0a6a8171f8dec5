// internal/services/save_service.go
package services

import (
	"context"
	"fmt"

	"github.com/yzy0324/neon-tape-vn/internal/audio"
	"github.com/yzy0324/neon-tape-vn/internal/engine"
	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/savegame"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// SaveService 把槽位存档与活动运行连接起来
type SaveService struct {
	manager  *savegame.Manager
	sessions *SessionService
	logger   *utils.Logger
}

// NewSaveService 创建存档服务
func NewSaveService(manager *savegame.Manager, sessions *SessionService) *SaveService {
	return &SaveService{
		manager:  manager,
		sessions: sessions,
		logger:   utils.GetLogger(),
	}
}

// Manager 底层存档管理器
func (s *SaveService) Manager() *savegame.Manager {
	return s.manager
}

func parseSlot(raw string) (models.SlotID, error) {
	slot, err := models.ParseSlot(raw)
	if err != nil {
		return "", apperrors.NewValidationError(err.Error(), nil)
	}
	return slot, nil
}

func parseManualSlot(raw string) (models.SlotID, error) {
	slot, err := parseSlot(raw)
	if err != nil {
		return "", err
	}
	if !slot.IsManual() {
		return "", apperrors.NewValidationError("自动存档槽只能由系统写入", nil)
	}
	return slot, nil
}

// Summaries 运行所属档案的槽位列表
func (s *SaveService) Summaries(ctx context.Context, runID string) ([]models.SlotSummary, error) {
	sess, err := s.sessions.Get(runID)
	if err != nil {
		return nil, err
	}
	return s.manager.Summaries(ctx, sess.Profile)
}

// Save 手动存档
func (s *SaveService) Save(ctx context.Context, runID, rawSlot string) (*models.SlotSummary, error) {
	slot, err := parseManualSlot(rawSlot)
	if err != nil {
		return nil, err
	}

	var state *models.State
	var profile string
	err = s.sessions.ReadRun(runID, func(sess *RunSession, run *engine.Run) error {
		if err := run.Faulted(); err != nil {
			return apperrors.NewRunFaultedError("本次运行已终止，请重新开始", err)
		}
		state = run.State()
		profile = sess.Profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	p, err := s.manager.Save(ctx, profile, slot, state)
	if err != nil {
		return nil, err
	}
	s.sessions.notify().Sfx(runID, audio.SfxSave)
	return s.summary(ctx, profile, p.Slot)
}

func (s *SaveService) summary(ctx context.Context, profile string, slot models.SlotID) (*models.SlotSummary, error) {
	summaries, err := s.manager.Summaries(ctx, profile)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		if summaries[i].Slot == slot {
			return &summaries[i], nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("槽位 %s 不存在", slot), nil)
}

// Load 读档：整体替换运行状态。存档无效时运行保持原样。
func (s *SaveService) Load(ctx context.Context, runID, rawSlot string) (*engine.View, error) {
	slot, err := parseSlot(rawSlot)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(runID)
	if err != nil {
		return nil, err
	}
	state, err := s.manager.Load(ctx, sess.Profile, slot)
	if err != nil {
		return nil, err
	}

	var view *engine.View
	err = s.sessions.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		v, err := run.Replace(state)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("读档完成", utils.Fields{"run_id": runID, "slot": slot, "scene": state.SceneID})
	return view, nil
}

// Export 导出槽位文本
func (s *SaveService) Export(ctx context.Context, runID, rawSlot string) (string, error) {
	slot, err := parseSlot(rawSlot)
	if err != nil {
		return "", err
	}
	sess, err := s.sessions.Get(runID)
	if err != nil {
		return "", err
	}
	return s.manager.Export(ctx, sess.Profile, slot)
}

// Import 校验导入文本并写入手动槽位。不影响当前运行。
func (s *SaveService) Import(ctx context.Context, runID, rawSlot, text string) (*models.SlotSummary, error) {
	slot, err := parseManualSlot(rawSlot)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(runID)
	if err != nil {
		return nil, err
	}
	if _, err := s.manager.Import(ctx, sess.Profile, slot, text); err != nil {
		return nil, err
	}
	return s.summary(ctx, sess.Profile, slot)
}

// Delete 删除手动槽位
func (s *SaveService) Delete(ctx context.Context, runID, rawSlot string) error {
	slot, err := parseManualSlot(rawSlot)
	if err != nil {
		return err
	}
	sess, err := s.sessions.Get(runID)
	if err != nil {
		return err
	}
	return s.manager.Delete(ctx, sess.Profile, slot)
}
