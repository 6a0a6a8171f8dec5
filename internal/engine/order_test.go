// internal/engine/order_test.go
package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func TestNormalizeDraft(t *testing.T) {
	g := defaultGraph(t)

	d := NormalizeDraft(g, models.OrderDraft{DrinkID: "nope", ExtraIDs: []string{"x", "extra-ice", "extra-ice", "extra-syrup", "extra-spice"}})
	assert.Equal(t, g.Drinks[0].ID, d.DrinkID, "未知基底回落到第一款")
	assert.Equal(t, []string{"extra-ice", "extra-syrup"}, d.ExtraIDs)

	assert.Equal(t, []string{}, DefaultDraft(g).ExtraIDs)
}

func TestBuildOrderClampsProfile(t *testing.T) {
	g := defaultGraph(t)
	order := BuildOrder(g, models.OrderDraft{DrinkID: "warm-shield", ExtraIDs: []string{"extra-ice", "extra-syrup"}})

	assert.Equal(t, 0, order.Profile[models.ProfileAlcohol])
	assert.Equal(t, 0, order.Profile[models.ProfileBitter])
	assert.Equal(t, 6, order.Profile[models.ProfileSweet])
	assert.Equal(t, 0, order.Profile[models.ProfileStim])
	assert.True(t, order.HasTag("safe", "comfort"))
	assert.Equal(t, "暖盾姜啤 + 碎冰 / 糖浆加倍", DescribeOrder(order))
}

func TestMatchRuleFirstWinsWithFallback(t *testing.T) {
	g := defaultGraph(t)
	scene, ok := g.Scene("s01")
	require.True(t, ok)

	rule, ok := MatchRule(scene.Order, BuildOrder(g, models.OrderDraft{DrinkID: "sunless-zero"}))
	require.True(t, ok)
	assert.Equal(t, "corp-focus", rule.ID)

	rule, ok = MatchRule(scene.Order, BuildOrder(g, models.OrderDraft{DrinkID: "neon-velvet"}))
	require.True(t, ok)
	assert.Equal(t, "corp-default", rule.ID, "不满足条件时落到兜底规则")
}
