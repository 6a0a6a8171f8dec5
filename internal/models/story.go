// internal/models/story.go
package models

// RelThreshold 关系阈值
type RelThreshold struct {
	Name string `yaml:"name" json:"name"`
	Val  int    `yaml:"val" json:"val"`
}

// Guard 守卫条件：所有非空子句的合取。空守卫恒成立。
type Guard struct {
	FlagsAll        []string       `yaml:"flagsAll,omitempty" json:"flagsAll,omitempty"`
	FlagsAny        []string       `yaml:"flagsAny,omitempty" json:"flagsAny,omitempty"`
	FlagsNone       []string       `yaml:"flagsNone,omitempty" json:"flagsNone,omitempty"`
	ItemAny         []string       `yaml:"itemAny,omitempty" json:"itemAny,omitempty"`
	RelAtLeast      *RelThreshold  `yaml:"relAtLeast,omitempty" json:"relAtLeast,omitempty"`
	TendencyAtLeast map[string]int `yaml:"tendencyAtLeast,omitempty" json:"tendencyAtLeast,omitempty"`
	TendencyAtMost  map[string]int `yaml:"tendencyAtMost,omitempty" json:"tendencyAtMost,omitempty"`
	// RouteIs 要求终章路线已锁定为指定结局
	RouteIs string `yaml:"routeIs,omitempty" json:"routeIs,omitempty"`
}

// IsZero 守卫是否为空
func (g Guard) IsZero() bool {
	return len(g.FlagsAll) == 0 && len(g.FlagsAny) == 0 && len(g.FlagsNone) == 0 &&
		len(g.ItemAny) == 0 && g.RelAtLeast == nil &&
		len(g.TendencyAtLeast) == 0 && len(g.TendencyAtMost) == 0 && g.RouteIs == ""
}

// ReadFlags 守卫读取的全部标记
func (g Guard) ReadFlags() []string {
	out := make([]string, 0, len(g.FlagsAll)+len(g.FlagsAny)+len(g.FlagsNone))
	out = append(out, g.FlagsAll...)
	out = append(out, g.FlagsAny...)
	out = append(out, g.FlagsNone...)
	return out
}

// Variant 路线变体：守卫 + 目标场景
type Variant struct {
	Scene string `yaml:"scene" json:"scene"`
	When  Guard  `yaml:"when" json:"when"`
}

// VariantFamily 共享基础ID的一组候选场景。按编写顺序求值，首个成立者胜出，否则落到 Default。
type VariantFamily struct {
	ID       string    `json:"id"`
	Variants []Variant `json:"variants"`
	Default  string    `json:"default"`
}

// Axis 倾向轴。Positive/Negative 是编写时使用的极性名。
type Axis struct {
	Name     string `yaml:"name" json:"name"`
	Label    string `yaml:"label" json:"label"`
	Positive string `yaml:"positive" json:"positive"`
	Negative string `yaml:"negative" json:"negative"`
}

// EndingProfile 结局阈值画像。Target 位于归一化空间 [-1, 1]。
type EndingProfile struct {
	ID          string             `yaml:"id" json:"id"`
	Name        string             `yaml:"name" json:"name"`
	Scene       string             `yaml:"scene" json:"scene"`
	Hint        string             `yaml:"hint" json:"hint"`
	Text        string             `yaml:"text" json:"text"`
	Target      map[string]float64 `yaml:"target" json:"target"`
	FlagWeights map[string]float64 `yaml:"flagWeights,omitempty" json:"flagWeights,omitempty"`
}

// SideQuest 支线标记：置位后结局预测带后缀
type SideQuest struct {
	Flag   string `yaml:"flag" json:"flag"`
	Suffix string `yaml:"suffix" json:"suffix"`
	Note   string `yaml:"note" json:"note"`
}

// Character 角色定义（关系白名单来源）
type Character struct {
	Key  string `yaml:"key" json:"key"`
	Name string `yaml:"name" json:"name"`
	Desc string `yaml:"desc" json:"desc"`
}
