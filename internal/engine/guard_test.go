// internal/engine/guard_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func guardState() *models.State {
	s := models.NewState()
	s.Flags["corpDeal"] = true
	s.Relations["hacker"] = 2
	return s
}

func TestEvalGuardSideBranchNeedsAllFlags(t *testing.T) {
	s := guardState()
	side := models.Guard{
		FlagsAll:   []string{"corpDeal", "truthLeakDraft"},
		RelAtLeast: &models.RelThreshold{Name: "hacker", Val: 1},
	}
	assert.False(t, EvalGuard(side, s), "缺少 truthLeakDraft 时支线入口应关闭")

	s.Flags["truthLeakDraft"] = true
	assert.True(t, EvalGuard(side, s))
}

func TestEvalGuardRelAtLeast(t *testing.T) {
	s := guardState()
	assert.True(t, EvalGuard(models.Guard{RelAtLeast: &models.RelThreshold{Name: "hacker", Val: 1}}, s))
	assert.True(t, EvalGuard(models.Guard{RelAtLeast: &models.RelThreshold{Name: "hacker", Val: 2}}, s))
	assert.False(t, EvalGuard(models.Guard{RelAtLeast: &models.RelThreshold{Name: "hacker", Val: 3}}, s))
	assert.False(t, EvalGuard(models.Guard{RelAtLeast: &models.RelThreshold{Name: "liaison", Val: 1}}, s), "未出现的关系按0计算")
}

func TestEvalGuardClauses(t *testing.T) {
	s := guardState()
	s.Inventory["memoryTape"] = 1
	s.Tendencies["explore"] = 2

	cases := []struct {
		name  string
		guard models.Guard
		want  bool
	}{
		{"空守卫", models.Guard{}, true},
		{"任一标记", models.Guard{FlagsAny: []string{"x", "corpDeal"}}, true},
		{"任一标记都不满足", models.Guard{FlagsAny: []string{"x", "y"}}, false},
		{"排除标记", models.Guard{FlagsNone: []string{"corpDeal"}}, false},
		{"任一物品", models.Guard{ItemAny: []string{"checksumSheet", "memoryTape"}}, true},
		{"缺少物品", models.Guard{ItemAny: []string{"checksumSheet"}}, false},
		{"倾向下限", models.Guard{TendencyAtLeast: map[string]int{"explore": 2}}, true},
		{"倾向上限", models.Guard{TendencyAtMost: map[string]int{"explore": 1}}, false},
		{"合取", models.Guard{FlagsAll: []string{"corpDeal"}, ItemAny: []string{"corpMemo"}}, false},
		{"路线未锁定", models.Guard{RouteIs: "A"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EvalGuard(tc.guard, s))
		})
	}
}

func TestEvalGuardRouteIs(t *testing.T) {
	s := guardState()
	s.RouteLock = "B"

	assert.True(t, EvalGuard(models.Guard{RouteIs: "B"}, s))
	assert.False(t, EvalGuard(models.Guard{RouteIs: "A"}, s))
	assert.False(t, EvalGuard(models.Guard{RouteIs: "B", FlagsAll: []string{"never"}}, s), "与其他子句取合取")
	assert.False(t, models.Guard{RouteIs: "B"}.IsZero())
}

func TestMatchOrder(t *testing.T) {
	order := models.Order{
		Profile: map[string]int{"stim": 5, "sweet": 2},
		Tags:    []string{"focus"},
	}
	assert.True(t, MatchOrder(models.OrderCondition{}, order), "空条件恒成立")
	assert.True(t, MatchOrder(models.OrderCondition{
		ProfileAtLeast: map[string]int{"stim": 4},
		ProfileAtMost:  map[string]int{"sweet": 2},
		TagsAny:        []string{"focus", "logic"},
	}, order))
	assert.False(t, MatchOrder(models.OrderCondition{TagsAny: []string{"rebel"}}, order))
	assert.False(t, MatchOrder(models.OrderCondition{ProfileAtMost: map[string]int{"stim": 4}}, order))
}
