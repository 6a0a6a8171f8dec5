// internal/engine/resolver.go
package engine

import (
	"fmt"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// Resolver 根据状态把选项目标解析为当前激活场景
type Resolver struct {
	graph *story.Graph
}

// NewResolver 创建场景解析器
func NewResolver(g *story.Graph) *Resolver {
	return &Resolver{graph: g}
}

// Select 只做解析，不记录路径。
// 变体族按编写顺序求值，首个守卫成立的变体胜出；全部落空时使用 default。
// 没有 default 或目标不存在属于守卫缺口，返回 guard_gap 错误而不是任选一个场景。
func (r *Resolver) Select(s *models.State, target string) (string, error) {
	if target == models.EndScene {
		return models.EndScene, nil
	}
	if family, ok := r.graph.Family(target); ok {
		return r.selectVariant(s, family)
	}
	if _, ok := r.graph.Scene(target); ok {
		return target, nil
	}
	return "", apperrors.NewGuardGapError(fmt.Sprintf("目标 %q 既不是场景也不是变体族", target), nil)
}

func (r *Resolver) selectVariant(s *models.State, family *models.VariantFamily) (string, error) {
	chosen := ""
	for _, v := range family.Variants {
		if EvalGuard(v.When, s) {
			chosen = v.Scene
			break
		}
	}
	if chosen == "" {
		if family.Default == "" {
			return "", apperrors.NewGuardGapError(fmt.Sprintf("变体族 %s 没有命中任何变体且缺少默认场景", family.ID), nil)
		}
		chosen = family.Default
	}
	if _, ok := r.graph.Scene(chosen); !ok {
		return "", apperrors.NewGuardGapError(fmt.Sprintf("变体族 %s 指向不存在的场景 %s", family.ID, chosen), nil)
	}
	return chosen, nil
}

// Resolve 解析目标并把激活场景写入状态：更新场景指针，追加路径与快照。
// 解析失败时状态保持不变。END 只移动指针，不进入路径历史。
func (r *Resolver) Resolve(s *models.State, target string) (string, error) {
	id, err := r.Select(s, target)
	if err != nil {
		return "", err
	}
	s.SceneID = id
	if id == models.EndScene {
		return id, nil
	}
	s.PathHistory = append(s.PathHistory, id)
	s.Checkpoints = append(s.Checkpoints, s.Snapshot())
	return id, nil
}
