// internal/validate/validate.go
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// Severity 问题级别
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue 一条校验结果
type Issue struct {
	Severity Severity `json:"severity"`
	SceneID  string   `json:"scene_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	if i.SceneID == "" {
		return fmt.Sprintf("[%s] %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("[%s] scene:%s %s", i.Severity, i.SceneID, i.Message)
}

// Report 校验报告
type Report struct {
	Scenes int     `json:"scenes"`
	Flags  int     `json:"flags"`
	Items  int     `json:"items"`
	Issues []Issue `json:"issues"`
}

// Errors 错误级问题
func (r *Report) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings 警告级问题
func (r *Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

// OK 没有错误级问题
func (r *Report) OK() bool {
	return len(r.Errors()) == 0
}

func (r *Report) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

type checker struct {
	g      *story.Graph
	report *Report
	rels   map[string]bool
}

func (c *checker) errorf(sceneID, format string, args ...interface{}) {
	c.report.Issues = append(c.report.Issues, Issue{Severity: SeverityError, SceneID: sceneID, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) warnf(sceneID, format string, args ...interface{}) {
	c.report.Issues = append(c.report.Issues, Issue{Severity: SeverityWarning, SceneID: sceneID, Message: fmt.Sprintf(format, args...)})
}

// Story 对已加载的剧情图做发布前检查：重复ID、悬空目标、缺默认的变体族、
// 不可达结局、只读不写的标记、白名单与ID格式。
func Story(g *story.Graph) *Report {
	c := &checker{
		g:      g,
		report: &Report{Scenes: len(g.Scenes), Flags: len(g.Flags), Items: len(g.Items), Issues: []Issue{}},
		rels:   make(map[string]bool, len(g.Characters)),
	}
	for _, ch := range g.Characters {
		c.rels[ch.Key] = true
	}

	c.checkDuplicates()
	c.checkStart()
	for _, id := range g.SceneIDs() {
		scene, _ := g.Scene(id)
		c.checkScene(scene)
	}
	c.checkFamilies()
	c.checkEndings()
	c.checkOrphanFlags()
	c.checkReachability()
	return c.report
}

func (c *checker) checkDuplicates() {
	firstSeen := make(map[string]string)
	for _, ch := range c.g.Chapters {
		for _, id := range ch.SceneIDs {
			if prev, ok := firstSeen[id]; ok {
				c.errorf(id, "重复的场景ID，首次定义于 %s，%s 中的定义覆盖了它", prev, ch.File)
				continue
			}
			firstSeen[id] = ch.File
		}
	}
}

func (c *checker) checkStart() {
	if _, ok := c.g.Scene(c.g.Start); !ok {
		c.errorf("", "起始场景 %s 不存在", c.g.Start)
	}
}

func (c *checker) checkScene(scene *models.Scene) {
	if !models.ValidSceneID(scene.ID) {
		c.errorf(scene.ID, "场景ID格式非法，应为 s + 两位数字 + 可选大写后缀")
	}
	if _, clash := c.g.Family(scene.ID); clash {
		c.errorf(scene.ID, "场景ID与变体族ID冲突")
	}
	for i, seg := range scene.Body.Segments {
		c.checkGuard(scene.ID, fmt.Sprintf("正文片段 #%d", i+1), seg.When)
	}
	for i, choice := range scene.Choices {
		where := fmt.Sprintf("选项 #%d「%s」", i+1, choice.Label)
		c.checkGuard(scene.ID, where, choice.Guard)
		c.checkEffects(scene.ID, where, choice.Effects)
		c.checkTarget(scene.ID, where, choice.Target)
	}
	if scene.Order != nil {
		for _, rule := range scene.Order.Rules {
			c.checkEffects(scene.ID, "点单规则 "+rule.ID, rule.Effects)
		}
		if !c.rels[scene.Order.NPC] {
			c.errorf(scene.ID, "点单对象 %s 不在角色白名单中", scene.Order.NPC)
		}
		c.checkTarget(scene.ID, "点单", scene.Order.Next)
	}
}

func (c *checker) checkTarget(sceneID, where, target string) {
	if !c.g.HasTarget(target) {
		c.errorf(sceneID, "%s 的跳转目标不存在: %s", where, target)
	}
}

func (c *checker) checkGuard(sceneID, where string, g models.Guard) {
	for _, f := range g.ReadFlags() {
		if _, ok := c.g.Flags[f]; !ok {
			c.errorf(sceneID, "%s 的条件引用了未定义的标记: %s", where, f)
		}
	}
	for _, it := range g.ItemAny {
		if _, ok := c.g.Items[it]; !ok {
			c.errorf(sceneID, "%s 的条件引用了未定义的物品: %s", where, it)
		}
	}
	if g.RelAtLeast != nil && !c.rels[g.RelAtLeast.Name] {
		c.errorf(sceneID, "%s 的条件引用了未定义的关系: %s", where, g.RelAtLeast.Name)
	}
	for _, m := range []map[string]int{g.TendencyAtLeast, g.TendencyAtMost} {
		for axis := range m {
			if _, ok := c.g.Axis(axis); !ok {
				c.errorf(sceneID, "%s 的条件引用了未定义的倾向轴: %s", where, axis)
			}
		}
	}
	if g.RouteIs != "" {
		if _, ok := c.g.Ending(g.RouteIs); !ok {
			c.errorf(sceneID, "%s 的条件引用了未定义的结局路线: %s", where, g.RouteIs)
		}
	}
}

func (c *checker) checkEffects(sceneID, where string, effects []models.Effect) {
	for _, e := range effects {
		switch v := e.(type) {
		case models.SetFlags:
			c.checkFlags(sceneID, where, v.Flags)
		case models.ClearFlags:
			c.checkFlags(sceneID, where, v.Flags)
		case models.AddItem:
			c.checkItem(sceneID, where, v.Item)
		case models.RemoveItem:
			c.checkItem(sceneID, where, v.Item)
		case models.AdjustRelation:
			if !c.rels[v.Name] {
				c.errorf(sceneID, "%s 使用了未定义的关系: %s", where, v.Name)
			}
		}
	}
}

func (c *checker) checkFlags(sceneID, where string, flags []string) {
	for _, f := range flags {
		if _, ok := c.g.Flags[f]; !ok {
			c.errorf(sceneID, "%s 使用了未定义的标记: %s", where, f)
		}
	}
}

func (c *checker) checkItem(sceneID, where, item string) {
	if _, ok := c.g.Items[item]; !ok {
		c.errorf(sceneID, "%s 使用了未定义的物品: %s", where, item)
	}
}

func (c *checker) checkFamilies() {
	ids := make([]string, 0, len(c.g.Families))
	for id := range c.g.Families {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fam := c.g.Families[id]
		if fam.Default == "" {
			c.errorf(id, "变体族缺少默认场景")
		} else if _, ok := c.g.Scene(fam.Default); !ok {
			c.errorf(id, "变体族默认场景不存在: %s", fam.Default)
		}
		for i, v := range fam.Variants {
			if _, ok := c.g.Scene(v.Scene); !ok {
				c.errorf(id, "变体 #%d 指向不存在的场景: %s", i+1, v.Scene)
			}
			c.checkGuard(id, fmt.Sprintf("变体 #%d", i+1), v.When)
		}
	}
}

func (c *checker) checkEndings() {
	if _, ok := c.g.Ending(c.g.Baseline); !ok {
		c.errorf("", "基线结局 %s 未定义", c.g.Baseline)
	}
	for _, e := range c.g.Endings {
		if _, ok := c.g.Scene(e.Scene); !ok {
			c.errorf(e.Scene, "结局 %s 的场景不存在", e.ID)
		}
		for axis := range e.Target {
			if _, ok := c.g.Axis(axis); !ok {
				c.errorf("", "结局 %s 的画像引用了未定义的倾向轴: %s", e.ID, axis)
			}
		}
		for f := range e.FlagWeights {
			if _, ok := c.g.Flags[f]; !ok {
				c.errorf("", "结局 %s 的画像引用了未定义的标记: %s", e.ID, f)
			}
		}
	}
	if sq := c.g.SideQuest; sq != nil {
		if _, ok := c.g.Flags[sq.Flag]; !ok {
			c.errorf("", "支线标记 %s 未定义", sq.Flag)
		}
	}
}

// checkOrphanFlags 被条件读取却没有任何效果置位的标记
func (c *checker) checkOrphanFlags() {
	set := make(map[string]bool)
	read := make(map[string]string)
	noteRead := func(sceneID string, g models.Guard) {
		for _, f := range g.FlagsAll {
			if _, ok := read[f]; !ok {
				read[f] = sceneID
			}
		}
		for _, f := range g.FlagsAny {
			if _, ok := read[f]; !ok {
				read[f] = sceneID
			}
		}
	}
	noteSet := func(effects []models.Effect) {
		for _, e := range effects {
			if sf, ok := e.(models.SetFlags); ok {
				for _, f := range sf.Flags {
					set[f] = true
				}
			}
		}
	}

	for _, id := range c.g.SceneIDs() {
		scene, _ := c.g.Scene(id)
		for _, seg := range scene.Body.Segments {
			noteRead(id, seg.When)
		}
		for _, choice := range scene.Choices {
			noteRead(id, choice.Guard)
			noteSet(choice.Effects)
		}
		if scene.Order != nil {
			for _, rule := range scene.Order.Rules {
				noteSet(rule.Effects)
			}
		}
	}
	for id, fam := range c.g.Families {
		for _, v := range fam.Variants {
			noteRead(id, v.When)
		}
	}

	flags := make([]string, 0, len(read))
	for f := range read {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	for _, f := range flags {
		if !set[f] {
			c.errorf(read[f], "标记 %s 被条件读取，但没有任何效果置位它", f)
		}
	}
}

// checkReachability 从起点沿所有出边（不看守卫）做可达分析
func (c *checker) checkReachability() {
	reached := make(map[string]bool)
	queue := []string{c.g.Start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] || id == models.EndScene {
			continue
		}
		if fam, ok := c.g.Family(id); ok {
			reached[id] = true
			for _, v := range fam.Variants {
				queue = append(queue, v.Scene)
			}
			if fam.Default != "" {
				queue = append(queue, fam.Default)
			}
			continue
		}
		scene, ok := c.g.Scene(id)
		if !ok {
			continue
		}
		reached[id] = true
		queue = append(queue, scene.Targets()...)
	}

	for _, e := range c.g.Endings {
		if _, ok := c.g.Scene(e.Scene); ok && !reached[e.Scene] {
			c.errorf(e.Scene, "结局 %s 从起点不可达", e.ID)
		}
	}
	var unreached []string
	for _, id := range c.g.SceneIDs() {
		if !reached[id] {
			unreached = append(unreached, id)
		}
	}
	if len(unreached) > 0 {
		c.warnf("", "以下场景从起点不可达: %s", strings.Join(unreached, ", "))
	}
}
