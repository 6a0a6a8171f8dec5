// internal/engine/run_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func TestRunStartsAtFirstScene(t *testing.T) {
	run := NewRun(defaultGraph(t))

	view, err := run.Current()
	require.NoError(t, err)
	assert.Equal(t, models.TitleScene, view.SceneID)
	assert.Equal(t, "title", view.Type)

	view, err = run.Start()
	require.NoError(t, err)
	assert.Equal(t, "s00", view.SceneID)
	assert.True(t, view.IsNew)
	assert.Len(t, view.Choices, 2)
	assert.True(t, view.Forecast.Baseline)
	assert.Equal(t, []string{"s00"}, run.State().PathHistory)
}

func TestRunSideQuestPlaythrough(t *testing.T) {
	run := NewRun(defaultGraph(t))
	var kinds []TransitionKind
	run.OnTransition(func(tr Transition) { kinds = append(kinds, tr.Kind) })

	_, err := run.Start()
	require.NoError(t, err)

	// 灰匣支线入口此时应可见
	view := play(t, run, sideQuestRoute[:8]...)
	assert.Equal(t, "s08", view.SceneID)
	assert.Len(t, view.Choices, 3, "满足条件时支线入口出现")

	view = play(t, run, sideQuestRoute[8:]...)
	assert.Equal(t, "s10A", view.SceneID, "理性合作达标进入A线")

	st := run.State()
	assert.Equal(t, "A", st.RouteLock)
	assert.True(t, st.HasFlag("ghostHandshake"))
	assert.Equal(t, 9, st.Tendencies["rational"])
	assert.Equal(t, 8, st.Tendencies["cooperate"])

	view = play(t, run, choose(0))
	assert.Equal(t, models.EndScene, view.SceneID)
	require.NotNil(t, view.Ending)
	assert.Equal(t, "A", view.Ending.ID)
	assert.NotEmpty(t, view.Ending.SideQuest)
	assert.LessOrEqual(t, len(view.Ending.KeyChoices), keyChoiceCount)
	assert.Equal(t, "A+灰匣", view.Forecast.Prediction)

	st = run.State()
	assert.Equal(t, "A", st.Ending)
	assert.Equal(t, []string{"A"}, st.UnlockedEndings)
	assert.Len(t, st.OrderHistory, 3)

	assert.Equal(t, TransitionStart, kinds[0])
	assert.Equal(t, TransitionEnding, kinds[len(kinds)-1])
}

func TestRunRejectsHiddenAndUnknownChoices(t *testing.T) {
	run := NewRun(defaultGraph(t))
	_, err := run.Start()
	require.NoError(t, err)

	// 走到 s08 但不拿磁带：支线入口隐藏
	play(t, run, choose(1), serve("neon-velvet"), choose(1), serve("neon-velvet"), choose(1), serve("neon-velvet"), choose(1), choose(1))
	before := run.State()
	require.Equal(t, "s08", before.SceneID)

	choices, err := run.AvailableChoices()
	require.NoError(t, err)
	assert.Len(t, choices, 2)

	_, err = run.Choose(2)
	assert.True(t, apperrors.IsValidationError(err), "守卫不成立的选项不可选")
	_, err = run.Choose(9)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, before, run.State(), "被拒绝的选择不改变状态")

	_, err = run.SubmitOrder(models.OrderDraft{DrinkID: "rain-loop"})
	assert.True(t, apperrors.IsValidationError(err), "非点单场景不能提交订单")
}

func TestRunOrderSceneRejectsChoose(t *testing.T) {
	run := NewRun(defaultGraph(t))
	_, err := run.Start()
	require.NoError(t, err)
	view := play(t, run, choose(0))
	require.NotNil(t, view.Order)
	assert.Equal(t, "liaison", view.Order.NPC)
	assert.Empty(t, view.Choices)

	_, err = run.Choose(0)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestRunOrderDraftPersistsInState(t *testing.T) {
	run := NewRun(defaultGraph(t))
	_, err := run.Start()
	require.NoError(t, err)
	play(t, run, choose(0))

	saved, err := run.SaveOrderDraft(models.OrderDraft{
		DrinkID:  "deep-trace",
		ExtraIDs: []string{"extra-ice", "extra-ice", "unknown", "extra-spice", "extra-citrus"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra-ice", "extra-spice"}, saved.ExtraIDs)

	view, err := run.Current()
	require.NoError(t, err)
	assert.Equal(t, "deep-trace", view.Order.Draft.DrinkID)
	assert.Equal(t, saved, run.State().OrderDrafts["s01"])
}

func TestRunFaultAndRestart(t *testing.T) {
	g := familyGraph([]models.Variant{{Scene: "s01A", When: models.Guard{FlagsAll: []string{"never"}}}}, "")
	run := NewRun(g)
	_, err := run.Start()
	require.NoError(t, err)

	_, err = run.Choose(0)
	require.Error(t, err)
	assert.True(t, apperrors.IsGuardGapError(err))
	assert.Equal(t, "s00", run.State().SceneID, "守卫缺口时不移动场景指针")

	_, err = run.Current()
	assert.True(t, apperrors.IsRunFaultedError(err), "运行终止后拒绝继续")
	assert.Error(t, run.Faulted())

	view, err := run.Start()
	require.NoError(t, err, "重新开局清除终止状态")
	assert.Equal(t, "s00", view.SceneID)
	assert.NoError(t, run.Faulted())
}

func TestRunReplaceIsFullReplacement(t *testing.T) {
	g := defaultGraph(t)
	run := NewRun(g)
	_, err := run.Start()
	require.NoError(t, err)
	play(t, run, choose(0), serve("cipher-tonic"))

	loaded := models.NewState()
	loaded.SceneID = "s04"
	loaded.PathHistory = []string{"s04"}
	loaded.Flags["hackerTrust"] = true

	view, err := run.Replace(loaded)
	require.NoError(t, err)
	assert.Equal(t, "s04", view.SceneID)
	st := run.State()
	assert.False(t, st.HasFlag("barShielded"), "读档不合并旧状态")
	assert.True(t, st.HasFlag("hackerTrust"))

	bad := models.NewState()
	bad.SceneID = "s99"
	_, err = run.Replace(bad)
	assert.True(t, apperrors.IsSaveCorruptError(err))
	assert.Equal(t, st, run.State(), "读档失败保留原状态")
}

func TestRunStartKeepsUnlockedEndings(t *testing.T) {
	run := NewRun(defaultGraph(t))
	_, err := run.Start()
	require.NoError(t, err)
	play(t, run, sideQuestRoute...)
	play(t, run, choose(0))
	require.NoError(t, run.SetAudioSettings([]byte(`{"master":0.5}`)))

	_, err = run.Start()
	require.NoError(t, err)
	st := run.State()
	assert.Equal(t, []string{"A"}, st.UnlockedEndings)
	assert.JSONEq(t, `{"master":0.5}`, string(st.AudioSettings))
	assert.Empty(t, st.RouteLock)
}

func TestRunFinaleMatchesLockedForecast(t *testing.T) {
	g := defaultGraph(t)

	cases := []struct {
		name       string
		tendencies map[string]int
		magnitude  int
		want       string
	}{
		{"理性偏合作", map[string]int{"rational": 3, "cooperate": 1, "explore": -1}, 5, "A"},
		{"感性对抗探索", map[string]int{"rational": -3, "cooperate": -3, "explore": 3}, 9, "B"},
		{"温和探索", map[string]int{"cooperate": 1, "explore": 2}, 3, "C"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			run := NewRun(g)
			_, err := run.Start()
			require.NoError(t, err)

			loaded := models.NewState()
			loaded.SceneID = "s09"
			loaded.PathHistory = []string{"s09"}
			loaded.Tendencies = tc.tendencies
			loaded.TendencyMagnitude = tc.magnitude
			_, err = run.Replace(loaded)
			require.NoError(t, err)

			view, err := run.Choose(3)
			require.NoError(t, err)
			st := run.State()
			assert.Equal(t, tc.want, st.RouteLock)
			assert.Equal(t, tc.want, view.Forecast.EndingID, "锁定后的预测")
			ending, ok := g.EndingForScene(view.SceneID)
			require.True(t, ok, "进入终章场景")
			assert.Equal(t, tc.want, ending.ID, "终章场景与锁定预测一致")

			view, err = run.Choose(0)
			require.NoError(t, err)
			require.NotNil(t, view.Ending)
			assert.Equal(t, tc.want, view.Ending.ID)
		})
	}
}
