// internal/story/graph.go
package story

import (
	"sort"

	"github.com/yzy0324/neon-tape-vn/internal/models"
)

// Chapter 章节：加载顺序与其中声明的场景ID（可能含重复，交给离线校验报告）
type Chapter struct {
	Name     string   `json:"name"`
	File     string   `json:"file"`
	SceneIDs []string `json:"scene_ids"`
}

// Graph 合并后的剧情图。加载一次，运行期不可变。
type Graph struct {
	Title      string
	Start      string
	Intro      string
	Chapters   []Chapter
	Scenes     map[string]*models.Scene
	Families   map[string]*models.VariantFamily
	Axes       []models.Axis
	Characters []models.Character
	Flags      map[string]string
	Items      map[string]string
	Endings    []models.EndingProfile
	Baseline   string
	SideQuest  *models.SideQuest
	Drinks     []models.Drink
	Extras     []models.Extra

	order []string
}

// Scene 按ID查找场景
func (g *Graph) Scene(id string) (*models.Scene, bool) {
	s, ok := g.Scenes[id]
	return s, ok
}

// Family 按基础ID查找变体族
func (g *Graph) Family(id string) (*models.VariantFamily, bool) {
	f, ok := g.Families[id]
	return f, ok
}

// SceneIDs 按编写顺序返回所有场景ID（去重）
func (g *Graph) SceneIDs() []string {
	return append([]string(nil), g.order...)
}

// AxisNames 倾向轴名称，按编写顺序
func (g *Graph) AxisNames() []string {
	out := make([]string, len(g.Axes))
	for i, a := range g.Axes {
		out[i] = a.Name
	}
	return out
}

// Axis 按名称查找倾向轴
func (g *Graph) Axis(name string) (models.Axis, bool) {
	for _, a := range g.Axes {
		if a.Name == name {
			return a, true
		}
	}
	return models.Axis{}, false
}

// Ending 按ID查找结局
func (g *Graph) Ending(id string) (models.EndingProfile, bool) {
	for _, e := range g.Endings {
		if e.ID == id {
			return e, true
		}
	}
	return models.EndingProfile{}, false
}

// EndingForScene 终章场景对应的结局
func (g *Graph) EndingForScene(sceneID string) (models.EndingProfile, bool) {
	for _, e := range g.Endings {
		if e.Scene == sceneID {
			return e, true
		}
	}
	return models.EndingProfile{}, false
}

// Character 按key查找角色
func (g *Graph) Character(key string) (models.Character, bool) {
	for _, c := range g.Characters {
		if c.Key == key {
			return c, true
		}
	}
	return models.Character{}, false
}

// CharacterName 角色显示名，未知时返回key本身
func (g *Graph) CharacterName(key string) string {
	if c, ok := g.Character(key); ok {
		return c.Name
	}
	return key
}

// Drink 按ID查找基底饮品
func (g *Graph) Drink(id string) (models.Drink, bool) {
	for _, d := range g.Drinks {
		if d.ID == id {
			return d, true
		}
	}
	return models.Drink{}, false
}

// Extra 按ID查找附加项
func (g *Graph) Extra(id string) (models.Extra, bool) {
	for _, e := range g.Extras {
		if e.ID == id {
			return e, true
		}
	}
	return models.Extra{}, false
}

// HasTarget 目标是否可解析：场景、变体族或 END
func (g *Graph) HasTarget(target string) bool {
	if target == models.EndScene {
		return true
	}
	if _, ok := g.Scenes[target]; ok {
		return true
	}
	_, ok := g.Families[target]
	return ok
}

// FlagNames 已声明标记，按字母序
func (g *Graph) FlagNames() []string {
	return sortedKeys(g.Flags)
}

// ItemNames 已声明物品，按字母序
func (g *Graph) ItemNames() []string {
	return sortedKeys(g.Items)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
