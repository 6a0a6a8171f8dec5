// internal/savegame/upgrade_test.go
package savegame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func TestDecodeUpgradesV3(t *testing.T) {
	raw := `{
		"schemaVersion": 3,
		"sceneId": "s04",
		"flags": {"corpDeal": true, "hackerTrust": false},
		"tendency": {"rational": 2, "cooperate": -1, "explore": 1},
		"log": ["雨还在下。", "她把磁带推了过来。"],
		"routeLock": null,
		"unlockedEndings": ["B"],
		"choiceHistory": [{"scene": "企业窗口", "choice": "签下对赌"}],
		"orderHistory": [],
		"orderDrafts": {},
		"bgmEnabled": true,
		"bgmVolume": 0.8
	}`

	p, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, models.CurrentSchemaVersion, p.SchemaVersion)
	assert.Equal(t, "s04", p.SceneID)
	assert.Equal(t, map[string]bool{"corpDeal": true}, p.Flags)
	assert.Equal(t, map[string]int{"rational": 2, "cooperate": -1, "explore": 1}, p.Tendencies)
	assert.Equal(t, 4, p.TendencyMagnitude, "强度为各轴绝对值之和")
	assert.Equal(t, []string{"s04"}, p.PathHistory)
	assert.Empty(t, p.Checkpoints)
	assert.Empty(t, p.RouteLock)
	assert.Equal(t, []string{"B"}, p.UnlockedEndings)
	require.Len(t, p.DialogueHistory, 2)
	assert.Equal(t, "她把磁带推了过来。", p.DialogueHistory[1].Text)
	require.Len(t, p.ChoiceHistory, 1)
	assert.Equal(t, "签下对赌", p.ChoiceHistory[0].Choice)
	assert.JSONEq(t, `{"music":{"enabled":true,"volume":0.8}}`, string(p.AudioSettings))
}

func TestDecodeUpgradesV1(t *testing.T) {
	raw := `{
		"current": "s02",
		"score": {"logic": 3, "emotion": 1, "coop": 0, "oppose": 2, "explore": 1, "preserve": 0},
		"flags": {"corpDeal": true},
		"bgmOn": false
	}`

	p, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "s02", p.SceneID)
	assert.Equal(t, map[string]int{"rational": 2, "cooperate": -2, "explore": 1}, p.Tendencies)
	assert.Equal(t, 5, p.TendencyMagnitude)
	assert.Equal(t, []string{"s02"}, p.PathHistory)
	assert.Empty(t, p.OrderHistory)
	assert.Empty(t, p.OrderDrafts)
	assert.Empty(t, p.UnlockedEndings)
	assert.JSONEq(t, `{"music":{"enabled":false,"volume":0.5}}`, string(p.AudioSettings))
}

func TestUpgradeV1FallsBackToStartScene(t *testing.T) {
	p, err := Decode([]byte(`{"score": {"logic": 1}}`))
	require.NoError(t, err)
	assert.Equal(t, legacyStartScene, p.SceneID)
	assert.Equal(t, 1, p.Tendencies["rational"])
}

func TestUpgradeKeepsRouteLockAndClampsVolume(t *testing.T) {
	raw := `{"schemaVersion":2,"sceneId":"s10A","routeLock":"A","tendency":{"rational":3},"bgmEnabled":true,"bgmVolume":4}`

	p, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "A", p.RouteLock)
	assert.Equal(t, []string{"s10A"}, p.PathHistory)
	assert.JSONEq(t, `{"music":{"enabled":true,"volume":1}}`, string(p.AudioSettings))
}

func TestUpgradeSkipsPathForPseudoScene(t *testing.T) {
	p, err := Decode([]byte(`{"schemaVersion":3,"sceneId":"__TITLE__"}`))
	require.NoError(t, err)
	assert.Empty(t, p.PathHistory)
}

func TestUpgradeChainCarriesV1TendencyIntoV4(t *testing.T) {
	doc := map[string]interface{}{
		"current": "s03",
		"score": map[string]interface{}{
			"logic": 4.0, "emotion": 1.0, "oppose": 2.0, "preserve": 3.0,
		},
	}

	out, err := upgrade(doc, 1)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"rational": 3, "cooperate": -2, "explore": -3}, out["tendencies"])
	assert.Equal(t, 8, out["tendencyMagnitude"])
	assert.NotContains(t, out, "tendency")
}

func TestNumAcceptsIntermediateIntegers(t *testing.T) {
	assert.Equal(t, 3, num(3))
	assert.Equal(t, -2, num(int64(-2)))
	assert.Equal(t, 2, num(1.6))
	assert.Equal(t, 0, num("7"))
	assert.Equal(t, 0, num(nil))
}
