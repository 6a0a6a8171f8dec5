// internal/engine/guard.go
package engine

import "github.com/yzy0324/neon-tape-vn/internal/models"

// EvalGuard 对状态求值守卫。所有非空子句取合取，空守卫恒成立。
func EvalGuard(g models.Guard, s *models.State) bool {
	for _, f := range g.FlagsAll {
		if !s.HasFlag(f) {
			return false
		}
	}
	if len(g.FlagsAny) > 0 && !anyFlag(s, g.FlagsAny) {
		return false
	}
	if anyFlag(s, g.FlagsNone) {
		return false
	}
	if len(g.ItemAny) > 0 {
		found := false
		for _, item := range g.ItemAny {
			if s.HasItem(item) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if g.RelAtLeast != nil && s.Relations[g.RelAtLeast.Name] < g.RelAtLeast.Val {
		return false
	}
	for axis, min := range g.TendencyAtLeast {
		if s.Tendencies[axis] < min {
			return false
		}
	}
	for axis, max := range g.TendencyAtMost {
		if s.Tendencies[axis] > max {
			return false
		}
	}
	if g.RouteIs != "" && s.RouteLock != g.RouteIs {
		return false
	}
	return true
}

func anyFlag(s *models.State, flags []string) bool {
	for _, f := range flags {
		if s.HasFlag(f) {
			return true
		}
	}
	return false
}

// MatchOrder 判断订单是否满足规则条件
func MatchOrder(c models.OrderCondition, o models.Order) bool {
	for k, min := range c.ProfileAtLeast {
		if o.Profile[k] < min {
			return false
		}
	}
	for k, max := range c.ProfileAtMost {
		if o.Profile[k] > max {
			return false
		}
	}
	if len(c.TagsAny) > 0 && !o.HasTag(c.TagsAny...) {
		return false
	}
	return true
}
