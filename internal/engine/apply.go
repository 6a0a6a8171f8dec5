// internal/engine/apply.go
package engine

import (
	"fmt"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// Apply 按顺序应用效果列表，返回新状态。
// 输入状态不会被修改；任一效果非法时整批作废并返回错误。
// 关系与倾向只做累加，不做截断。
func Apply(s *models.State, effects []models.Effect) (*models.State, error) {
	if s == nil {
		return nil, apperrors.NewValidationError("状态为空", nil)
	}
	next := s.Clone()
	for i, e := range effects {
		if err := applyOne(next, e); err != nil {
			return nil, apperrors.NewValidationError(fmt.Sprintf("第%d个效果无法应用", i+1), err)
		}
	}
	return next, nil
}

func applyOne(s *models.State, e models.Effect) error {
	switch eff := e.(type) {
	case models.SetFlags:
		for _, f := range eff.Flags {
			s.Flags[f] = true
		}
	case models.ClearFlags:
		for _, f := range eff.Flags {
			delete(s.Flags, f)
		}
	case models.AddItem:
		if eff.Count <= 0 {
			return fmt.Errorf("物品 %s 数量非法: %d", eff.Item, eff.Count)
		}
		s.Inventory[eff.Item] += eff.Count
	case models.RemoveItem:
		have := s.Inventory[eff.Item]
		if have == 0 {
			return nil
		}
		if eff.Count <= 0 || eff.Count >= have {
			delete(s.Inventory, eff.Item)
		} else {
			s.Inventory[eff.Item] = have - eff.Count
		}
	case models.AdjustRelation:
		s.Relations[eff.Name] += eff.Delta
	case models.AdjustTendency:
		for axis, d := range eff.Deltas {
			s.Tendencies[axis] += d
			s.TendencyMagnitude += abs(d)
		}
	case nil:
		return fmt.Errorf("空效果")
	default:
		return fmt.Errorf("未知效果类型 %s", e.Kind())
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
