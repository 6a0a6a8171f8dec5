// internal/validate/balance_test.go
package validate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/story"
)

func TestBalanceDefaultStory(t *testing.T) {
	g, err := story.Default()
	require.NoError(t, err)

	report := Balance(g)
	assert.Positive(t, report.Choices)
	require.Len(t, report.Axes, 3)
	assert.Equal(t, "rational", report.Axes[0].Axis)
	assert.Equal(t, "理性↔感性", report.Axes[0].Label)

	require.NotEmpty(t, report.Extremes)
	assert.LessOrEqual(t, len(report.Extremes), topExtremeCount)
	for i := 1; i < len(report.Extremes); i++ {
		assert.GreaterOrEqual(t, report.Extremes[i-1].Magnitude(), report.Extremes[i].Magnitude(), "按强度降序")
	}
	for _, s := range report.Axes {
		assert.Equal(t, report.Choices, s.Positive+s.Negative+s.Zero)
	}
}

func TestBalanceHints(t *testing.T) {
	g := loadGraph(t, map[string]string{
		"meta.yaml": `
start: s00
axes:
  - {name: rational, label: 理性, positive: logic, negative: emotion}
  - {name: explore, label: 探索, positive: explore, negative: preserve}
`,
		"drinks.yaml": drinksYAML,
		"chapter1.yaml": `
scenes:
  - id: s00
    choices:
      - {label: 一, effects: [{tendency: {logic: 1, explore: 1}}], target: END}
      - {label: 二, effects: [{tendency: {logic: 1, preserve: 1}}], target: END}
      - {label: 三, effects: [{tendency: {logic: 1}}], target: END}
      - {label: 四, effects: [{tendency: {logic: 1}}], target: END}
`,
	})

	report := Balance(g)
	require.Len(t, report.Axes, 2)

	rational := report.Axes[0]
	assert.Equal(t, 4, rational.Total)
	assert.InDelta(t, 1.0, rational.Mean, 1e-9)
	assert.Equal(t, []string{"均值偏移(1.00)", "总和偏移(+4)", "正负数量失衡(4:0)"}, rational.Hints)

	explore := report.Axes[1]
	assert.True(t, explore.Balanced(), "探索轴正负相抵: %v", explore.Hints)
	assert.Equal(t, 2, explore.Zero)

	assert.Equal(t, 2, report.Extremes[0].Magnitude())
	assert.Equal(t, "s00", report.Extremes[0].SceneID)

	var buf bytes.Buffer
	report.Write(&buf, g.AxisNames())
	out := buf.String()
	assert.Contains(t, out, "choices: 4")
	assert.Contains(t, out, "⚠ 理性: 均值偏移(1.00)；总和偏移(+4)；正负数量失衡(4:0)")
	assert.Contains(t, out, "✓ 探索: 分布基本均衡")
	assert.Contains(t, out, "- s00#1 一 :: rational=+1 explore=+1 | magnitude=2")
}

func TestChoiceVectorMagnitude(t *testing.T) {
	v := ChoiceVector{Deltas: map[string]int{"rational": -2, "cooperate": 1, "explore": 0}}
	assert.Equal(t, 3, v.Magnitude())
}
