// internal/models/order.go
package models

// 饮品口味维度
const (
	ProfileAlcohol = "alcohol"
	ProfileSweet   = "sweet"
	ProfileBitter  = "bitter"
	ProfileStim    = "stim"
)

// MaxExtras 每杯最多附加项
const MaxExtras = 2

// Drink 基底饮品
type Drink struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Desc    string   `yaml:"desc" json:"desc"`
	Alcohol int      `yaml:"alcohol" json:"alcohol"`
	Sweet   int      `yaml:"sweet" json:"sweet"`
	Bitter  int      `yaml:"bitter" json:"bitter"`
	Stim    int      `yaml:"stim" json:"stim"`
	Cost    int      `yaml:"cost" json:"cost"`
	Tags    []string `yaml:"tags" json:"tags"`
}

// Profile 饮品的口味向量
func (d Drink) Profile() map[string]int {
	return map[string]int{
		ProfileAlcohol: d.Alcohol,
		ProfileSweet:   d.Sweet,
		ProfileBitter:  d.Bitter,
		ProfileStim:    d.Stim,
	}
}

// Extra 附加项
type Extra struct {
	ID    string         `yaml:"id" json:"id"`
	Name  string         `yaml:"name" json:"name"`
	Desc  string         `yaml:"desc" json:"desc"`
	Delta map[string]int `yaml:"delta" json:"delta"`
	Tags  []string       `yaml:"tags" json:"tags"`
}

// OrderDraft 点单面板提交或暂存的草稿
type OrderDraft struct {
	DrinkID  string   `json:"drinkId"`
	ExtraIDs []string `json:"extraIds"`
}

// Order 由草稿构建出的完整订单
type Order struct {
	Drink   Drink          `json:"drink"`
	Extras  []Extra        `json:"extras"`
	Profile map[string]int `json:"profile"`
	Tags    []string       `json:"tags"`
}

// HasTag 订单是否带有任一标签
func (o Order) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, have := range o.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// OrderCondition 点单规则条件
type OrderCondition struct {
	ProfileAtLeast map[string]int `yaml:"profileAtLeast,omitempty" json:"profileAtLeast,omitempty"`
	ProfileAtMost  map[string]int `yaml:"profileAtMost,omitempty" json:"profileAtMost,omitempty"`
	TagsAny        []string       `yaml:"tagsAny,omitempty" json:"tagsAny,omitempty"`
}

// IsZero 条件是否为空（恒成立）
func (c OrderCondition) IsZero() bool {
	return len(c.ProfileAtLeast) == 0 && len(c.ProfileAtMost) == 0 && len(c.TagsAny) == 0
}

// OrderRule 点单反馈规则
type OrderRule struct {
	ID      string         `json:"id"`
	When    OrderCondition `json:"when"`
	Effects []Effect       `json:"-"`
	Reply   string         `json:"reply"`
}

// OrderSpec 点单场景的结构化载荷，交给外部饮品面板
type OrderSpec struct {
	NPC     string      `json:"npc"`
	Request string      `json:"request"`
	Note    string      `json:"note,omitempty"`
	Next    string      `json:"next"`
	Rules   []OrderRule `json:"rules"`
}

// OrderRecord 已出杯记录
type OrderRecord struct {
	SceneID string   `json:"sceneId,omitempty"`
	NPC     string   `json:"npc"`
	Drink   string   `json:"drink"`
	Extras  []string `json:"extras"`
	RuleID  string   `json:"ruleId,omitempty"`
}
