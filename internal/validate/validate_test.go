// internal/validate/validate_test.go
package validate

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/story"
)

const drinksYAML = `
drinks:
  - {id: water, name: 清水, tags: [safe]}
`

func loadGraph(t *testing.T, files map[string]string) *story.Graph {
	t.Helper()
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	g, err := story.LoadFS(fsys)
	require.NoError(t, err)
	return g
}

func messages(issues []Issue) string {
	parts := make([]string, len(issues))
	for i, issue := range issues {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "\n")
}

func TestDefaultStoryIsClean(t *testing.T) {
	g, err := story.Default()
	require.NoError(t, err)

	report := Story(g)
	assert.True(t, report.OK(), "内置剧情不应有错误:\n%s", messages(report.Errors()))
	assert.Empty(t, report.Warnings(), messages(report.Warnings()))
	assert.Equal(t, len(g.Scenes), report.Scenes)
	assert.Equal(t, len(g.Flags), report.Flags)
}

func TestBrokenStoryReportsEverything(t *testing.T) {
	g := loadGraph(t, map[string]string{
		"meta.yaml": `
title: 坏剧情
start: s00
axes:
  - {name: rational, label: 理性, positive: logic, negative: emotion}
characters:
  - {key: bar, name: 酒保}
flags:
  lit: 灯
  ghost: 鬼影
endings:
  - {id: A, name: 甲, scene: s09, target: {rational: 1, courage: 1}}
  - {id: C, name: 丙, scene: s04, target: {}}
baseline: Z
sideQuest: {flag: missing, suffix: "+x"}
families:
  - id: s02
    variants:
      - scene: s07
        when: {tendencyAtLeast: {courage: 1}}
  - id: s03
    variants: []
`,
		"drinks.yaml": drinksYAML,
		"chapter1.yaml": `
scenes:
  - id: s00
    choices:
      - label: 看
        guard: {flagsAll: [ghost]}
        effects:
          - setFlags: [unknown]
          - addItem: tape
          - rel: {name: stranger, value: 1}
        target: s05
      - label: 走
        target: s02
  - id: s02
    choices:
      - {label: 完, target: END}
  - id: intro
    choices:
      - {label: 完, target: END}
`,
		"chapter2.yaml": `
scenes:
  - id: s02
    type: order
    order:
      npc: nobody
      next: s03
      rules: [{id: fb}]
  - id: s04
    choices:
      - {label: 完, target: END}
`,
	})

	report := Story(g)
	require.False(t, report.OK())
	all := messages(report.Errors())

	for _, want := range []string{
		"重复的场景ID",
		"使用了未定义的标记: unknown",
		"使用了未定义的物品: tape",
		"使用了未定义的关系: stranger",
		"跳转目标不存在: s05",
		"场景ID与变体族ID冲突",
		"点单对象 nobody 不在角色白名单中",
		"scene:intro 场景ID格式非法",
		"变体 #1 指向不存在的场景: s07",
		"未定义的倾向轴: courage",
		"scene:s03 变体族缺少默认场景",
		"基线结局 Z 未定义",
		"结局 A 的场景不存在",
		"画像引用了未定义的倾向轴: courage",
		"支线标记 missing 未定义",
		"标记 ghost 被条件读取，但没有任何效果置位它",
		"结局 C 从起点不可达",
	} {
		assert.Contains(t, all, want)
	}

	warnings := report.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "intro, s04")
}

func TestMissingStartScene(t *testing.T) {
	g := loadGraph(t, map[string]string{
		"meta.yaml": `
start: s01
axes: [{name: rational}]
endings: [{id: C, scene: s00}]
baseline: C
`,
		"drinks.yaml": drinksYAML,
		"chapter1.yaml": `
scenes:
  - id: s00
    choices: [{label: 完, target: END}]
`,
	})

	report := Story(g)
	assert.Contains(t, messages(report.Errors()), "起始场景 s01 不存在")
}

func TestFamilyRouteMustNameEnding(t *testing.T) {
	g := loadGraph(t, map[string]string{
		"meta.yaml": `
start: s00
axes: [{name: rational}]
endings: [{id: C, scene: s01B}]
baseline: C
families:
  - id: s01
    variants:
      - {scene: s01A, when: {routeIs: Z}}
      - {scene: s01B, when: {routeIs: C}}
    default: s01B
`,
		"drinks.yaml": drinksYAML,
		"chapter1.yaml": `
scenes:
  - id: s00
    choices: [{label: 去, target: s01, lockRoute: true}]
  - id: s01A
    choices: [{label: 完, target: END}]
  - id: s01B
    choices: [{label: 完, target: END}]
`,
	})

	report := Story(g)
	msgs := messages(report.Errors())
	assert.Contains(t, msgs, "变体 #1 的条件引用了未定义的结局路线: Z")
	assert.NotContains(t, msgs, "结局路线: C")
}

func TestIssueString(t *testing.T) {
	assert.Equal(t, "[error] 基线缺失", Issue{Severity: SeverityError, Message: "基线缺失"}.String())
	assert.Equal(t, "[warning] scene:s01 不可达", Issue{Severity: SeverityWarning, SceneID: "s01", Message: "不可达"}.String())
}
