// internal/models/effect.go
package models

// EffectKind 效果种类
type EffectKind string

const (
	EffectSetFlags   EffectKind = "setFlags"
	EffectClearFlags EffectKind = "clearFlags"
	EffectAddItem    EffectKind = "addItem"
	EffectRemoveItem EffectKind = "removeItem"
	EffectRelation   EffectKind = "rel"
	EffectTendency   EffectKind = "tendency"
)

// Effect 是选择附带的原子状态变更。
// 这是一个封闭的变体类型：只有本包内的结构体能实现它。
type Effect interface {
	Kind() EffectKind
	sealed()
}

// SetFlags 置位一个或多个标记
type SetFlags struct {
	Flags []string `json:"flags"`
}

// ClearFlags 清除一个或多个标记
type ClearFlags struct {
	Flags []string `json:"flags"`
}

// AddItem 向背包加入物品
type AddItem struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// RemoveItem 从背包移除物品。Count 为 0 时移除全部。
type RemoveItem struct {
	Item  string `json:"item"`
	Count int    `json:"count,omitempty"`
}

// AdjustRelation 调整角色关系值
type AdjustRelation struct {
	Name  string `json:"name"`
	Delta int    `json:"delta"`
}

// AdjustTendency 按轴调整倾向值（已从极性名编译为带符号增量）
type AdjustTendency struct {
	Deltas map[string]int `json:"deltas"`
}

func (SetFlags) Kind() EffectKind       { return EffectSetFlags }
func (ClearFlags) Kind() EffectKind     { return EffectClearFlags }
func (AddItem) Kind() EffectKind        { return EffectAddItem }
func (RemoveItem) Kind() EffectKind     { return EffectRemoveItem }
func (AdjustRelation) Kind() EffectKind { return EffectRelation }
func (AdjustTendency) Kind() EffectKind { return EffectTendency }

func (SetFlags) sealed()       {}
func (ClearFlags) sealed()     {}
func (AddItem) sealed()        {}
func (RemoveItem) sealed()     {}
func (AdjustRelation) sealed() {}
func (AdjustTendency) sealed() {}
