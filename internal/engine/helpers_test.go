// internal/engine/helpers_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

func defaultGraph(t *testing.T) *story.Graph {
	t.Helper()
	g, err := story.Default()
	require.NoError(t, err, "内置剧情应能加载")
	return g
}

func endScene(id, title string) *models.Scene {
	return &models.Scene{
		ID:      id,
		Type:    models.SceneNormal,
		Body:    models.Body{Title: title, Text: title},
		Choices: []models.Choice{{Label: "结束", Target: models.EndScene}},
	}
}

// familyGraph 一个入口场景通向变体族 x 的小剧情
func familyGraph(variants []models.Variant, def string) *story.Graph {
	return &story.Graph{
		Title: "测试",
		Start: "s00",
		Scenes: map[string]*models.Scene{
			"s00": {
				ID:   "s00",
				Type: models.SceneNormal,
				Body: models.Body{Title: "入口", Text: "入口"},
				Choices: []models.Choice{{
					Label:   "前进",
					Effects: []models.Effect{models.SetFlags{Flags: []string{"a"}}},
					Target:  "s01",
				}},
			},
			"s01A": endScene("s01A", "甲"),
			"s01B": endScene("s01B", "乙"),
			"s01C": endScene("s01C", "丙"),
		},
		Families: map[string]*models.VariantFamily{
			"s01": {ID: "s01", Variants: variants, Default: def},
		},
		Axes:  []models.Axis{{Name: "rational", Label: "理性↔感性", Positive: "logic", Negative: "emotion"}},
		Flags: map[string]string{"a": "甲标记"},
		Items: map[string]string{},
	}
}

// step 一步操作：选择编写顺序中的选项，或提交订单
type step struct {
	choice int
	order  *models.OrderDraft
}

func choose(i int) step { return step{choice: i} }

func serve(drink string, extras ...string) step {
	return step{order: &models.OrderDraft{DrinkID: drink, ExtraIDs: extras}}
}

func play(t *testing.T, run *Run, steps ...step) *View {
	t.Helper()
	var (
		view *View
		err  error
	)
	for i, st := range steps {
		if st.order != nil {
			view, err = run.SubmitOrder(*st.order)
		} else {
			view, err = run.Choose(st.choice)
		}
		require.NoError(t, err, "第%d步失败", i+1)
	}
	return view
}

// sideQuestRoute 走完灰匣支线并以审计停火线进入终章
var sideQuestRoute = []step{
	choose(0),                                             // s00 屏障
	serve("cipher-tonic", "extra-citrus"),                 // s01 corp-focus
	choose(0),                                             // s02 对赌草案
	serve("proxy-smoke"),                                  // s03 hack-rebel
	choose(0),                                             // s04 收下磁带
	serve("mirror-protocol"),                              // s05 cop-safe
	choose(0),                                             // s06 交出证据
	choose(0),                                             // s07
	choose(2),                                             // s08 灰匣支线
	choose(0), choose(0), choose(0), choose(0), choose(0), // s11-s15
	choose(1), // s09 停火线（锁定路线）
}
