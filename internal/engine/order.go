// internal/engine/order.go
package engine

import (
	"fmt"
	"strings"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// NormalizeDraft 清理点单草稿：未知附加项丢弃、去重、最多保留两项
func NormalizeDraft(g *story.Graph, draft models.OrderDraft) models.OrderDraft {
	out := models.OrderDraft{DrinkID: draft.DrinkID, ExtraIDs: []string{}}
	if _, ok := g.Drink(draft.DrinkID); !ok && len(g.Drinks) > 0 {
		out.DrinkID = g.Drinks[0].ID
	}
	seen := make(map[string]bool)
	for _, id := range draft.ExtraIDs {
		if len(out.ExtraIDs) >= models.MaxExtras {
			break
		}
		if seen[id] {
			continue
		}
		if _, ok := g.Extra(id); !ok {
			continue
		}
		seen[id] = true
		out.ExtraIDs = append(out.ExtraIDs, id)
	}
	return out
}

// DefaultDraft 点单面板首次打开时的草稿
func DefaultDraft(g *story.Graph) models.OrderDraft {
	d := models.OrderDraft{ExtraIDs: []string{}}
	if len(g.Drinks) > 0 {
		d.DrinkID = g.Drinks[0].ID
	}
	return d
}

// BuildOrder 由草稿构建订单：未知基底回落到第一款饮品，附加项逐个叠加且各维度不低于0
func BuildOrder(g *story.Graph, draft models.OrderDraft) models.Order {
	draft = NormalizeDraft(g, draft)
	drink, _ := g.Drink(draft.DrinkID)
	order := models.Order{
		Drink:   drink,
		Extras:  []models.Extra{},
		Profile: drink.Profile(),
		Tags:    append([]string(nil), drink.Tags...),
	}
	for _, id := range draft.ExtraIDs {
		extra, _ := g.Extra(id)
		order.Extras = append(order.Extras, extra)
		for k, v := range extra.Delta {
			next := order.Profile[k] + v
			if next < 0 {
				next = 0
			}
			order.Profile[k] = next
		}
		order.Tags = append(order.Tags, extra.Tags...)
	}
	return order
}

// MatchRule 返回第一条满足条件的反馈规则
func MatchRule(spec *models.OrderSpec, order models.Order) (models.OrderRule, bool) {
	for _, rule := range spec.Rules {
		if MatchOrder(rule.When, order) {
			return rule, true
		}
	}
	return models.OrderRule{}, false
}

// DescribeOrder 出杯描述，例如 "无糖极昼 + 柑橘皮 / 碎冰"
func DescribeOrder(order models.Order) string {
	if len(order.Extras) == 0 {
		return order.Drink.Name
	}
	names := make([]string, len(order.Extras))
	for i, e := range order.Extras {
		names[i] = e.Name
	}
	return fmt.Sprintf("%s + %s", order.Drink.Name, strings.Join(names, " / "))
}
