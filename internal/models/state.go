// internal/models/state.go
package models

import (
	"encoding/json"
	"sort"
)

// DialogueEntry 对话历史条目
type DialogueEntry struct {
	SceneID string `json:"sceneId"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// ChoiceRecord 选择历史条目
type ChoiceRecord struct {
	SceneID string `json:"sceneId,omitempty"`
	Scene   string `json:"scene"`
	Choice  string `json:"choice"`
}

// Snapshot 路径上某一步的状态快照，供只读回放使用
type Snapshot struct {
	SceneID           string          `json:"sceneId"`
	Flags             map[string]bool `json:"flags"`
	Relations         map[string]int  `json:"relations"`
	Tendencies        map[string]int  `json:"tendencies"`
	TendencyMagnitude int             `json:"tendencyMagnitude"`
	Inventory         map[string]int  `json:"inventory"`
}

// State 玩家进度记录。一个运行只有一个修改者。
type State struct {
	SceneID           string                `json:"sceneId"`
	Flags             map[string]bool       `json:"flags"`
	Relations         map[string]int        `json:"relations"`
	Tendencies        map[string]int        `json:"tendencies"`
	TendencyMagnitude int                   `json:"tendencyMagnitude"`
	Inventory         map[string]int        `json:"inventory"`
	PathHistory       []string              `json:"pathHistory"`
	Checkpoints       []Snapshot            `json:"checkpoints"`
	DialogueHistory   []DialogueEntry       `json:"dialogueHistory"`
	ChoiceHistory     []ChoiceRecord        `json:"choiceHistory"`
	SeenText          map[string]bool       `json:"seenText"`
	OrderDrafts       map[string]OrderDraft `json:"orderDrafts"`
	OrderHistory      []OrderRecord         `json:"orderHistory"`
	RouteLock         string                `json:"routeLock,omitempty"`
	Ending            string                `json:"ending,omitempty"`
	UnlockedEndings   []string              `json:"unlockedEndings"`
	AudioSettings     json.RawMessage       `json:"audioSettings,omitempty"`
}

// NewState 创建空白状态，所有集合均已初始化
func NewState() *State {
	s := &State{SceneID: TitleScene}
	s.Normalize()
	return s
}

// Normalize 把 nil 集合替换为空集合，并去掉值为 false 的标记
func (s *State) Normalize() {
	if s.Flags == nil {
		s.Flags = map[string]bool{}
	}
	for k, v := range s.Flags {
		if !v {
			delete(s.Flags, k)
		}
	}
	if s.Relations == nil {
		s.Relations = map[string]int{}
	}
	if s.Tendencies == nil {
		s.Tendencies = map[string]int{}
	}
	if s.Inventory == nil {
		s.Inventory = map[string]int{}
	}
	for k, v := range s.Inventory {
		if v <= 0 {
			delete(s.Inventory, k)
		}
	}
	if s.PathHistory == nil {
		s.PathHistory = []string{}
	}
	if s.Checkpoints == nil {
		s.Checkpoints = []Snapshot{}
	}
	if s.DialogueHistory == nil {
		s.DialogueHistory = []DialogueEntry{}
	}
	if s.ChoiceHistory == nil {
		s.ChoiceHistory = []ChoiceRecord{}
	}
	if s.SeenText == nil {
		s.SeenText = map[string]bool{}
	}
	if s.OrderDrafts == nil {
		s.OrderDrafts = map[string]OrderDraft{}
	}
	if s.OrderHistory == nil {
		s.OrderHistory = []OrderRecord{}
	}
	if s.UnlockedEndings == nil {
		s.UnlockedEndings = []string{}
	}
}

// HasFlag 标记是否置位
func (s *State) HasFlag(flag string) bool {
	return s.Flags[flag]
}

// HasItem 背包中是否有该物品
func (s *State) HasItem(item string) bool {
	return s.Inventory[item] > 0
}

// SortedFlags 按字母序返回已置位标记
func (s *State) SortedFlags() []string {
	out := make([]string, 0, len(s.Flags))
	for k, v := range s.Flags {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot 截取当前叙事字段
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		SceneID:           s.SceneID,
		Flags:             cloneBoolMap(s.Flags),
		Relations:         cloneIntMap(s.Relations),
		Tendencies:        cloneIntMap(s.Tendencies),
		TendencyMagnitude: s.TendencyMagnitude,
		Inventory:         cloneIntMap(s.Inventory),
	}
}

// FromSnapshot 用快照构造一个只含叙事字段的状态
func FromSnapshot(snap Snapshot) *State {
	s := &State{
		SceneID:           snap.SceneID,
		Flags:             cloneBoolMap(snap.Flags),
		Relations:         cloneIntMap(snap.Relations),
		Tendencies:        cloneIntMap(snap.Tendencies),
		TendencyMagnitude: snap.TendencyMagnitude,
		Inventory:         cloneIntMap(snap.Inventory),
	}
	s.Normalize()
	return s
}

// Clone 深拷贝
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := &State{
		SceneID:           s.SceneID,
		Flags:             cloneBoolMap(s.Flags),
		Relations:         cloneIntMap(s.Relations),
		Tendencies:        cloneIntMap(s.Tendencies),
		TendencyMagnitude: s.TendencyMagnitude,
		Inventory:         cloneIntMap(s.Inventory),
		PathHistory:       append([]string(nil), s.PathHistory...),
		DialogueHistory:   append([]DialogueEntry(nil), s.DialogueHistory...),
		ChoiceHistory:     append([]ChoiceRecord(nil), s.ChoiceHistory...),
		SeenText:          cloneBoolMap(s.SeenText),
		RouteLock:         s.RouteLock,
		Ending:            s.Ending,
		UnlockedEndings:   append([]string(nil), s.UnlockedEndings...),
	}
	if s.Checkpoints != nil {
		c.Checkpoints = make([]Snapshot, len(s.Checkpoints))
		for i, snap := range s.Checkpoints {
			c.Checkpoints[i] = Snapshot{
				SceneID:           snap.SceneID,
				Flags:             cloneBoolMap(snap.Flags),
				Relations:         cloneIntMap(snap.Relations),
				Tendencies:        cloneIntMap(snap.Tendencies),
				TendencyMagnitude: snap.TendencyMagnitude,
				Inventory:         cloneIntMap(snap.Inventory),
			}
		}
	}
	if s.OrderDrafts != nil {
		c.OrderDrafts = make(map[string]OrderDraft, len(s.OrderDrafts))
		for k, d := range s.OrderDrafts {
			c.OrderDrafts[k] = OrderDraft{DrinkID: d.DrinkID, ExtraIDs: cloneStrings(d.ExtraIDs)}
		}
	}
	if s.OrderHistory != nil {
		c.OrderHistory = make([]OrderRecord, len(s.OrderHistory))
		for i, r := range s.OrderHistory {
			r.Extras = cloneStrings(r.Extras)
			c.OrderHistory[i] = r
		}
	}
	if s.AudioSettings != nil {
		c.AudioSettings = append(json.RawMessage(nil), s.AudioSettings...)
	}
	c.Normalize()
	return c
}

// cloneStrings 保留 nil 与空切片的区别
func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneIntMap(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
