// internal/story/loader.go
package story

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

//go:embed data/*.yaml
var embedded embed.FS

const (
	metaFile       = "meta.yaml"
	drinksFile     = "drinks.yaml"
	chapterPattern = "chapter*.yaml"
)

var (
	defaultOnce  sync.Once
	defaultGraph *Graph
	defaultErr   error
)

// Default 返回内置剧情图（进程内只加载一次）
func Default() (*Graph, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "data")
		if err != nil {
			defaultErr = fmt.Errorf("读取内置剧情失败: %w", err)
			return
		}
		defaultGraph, defaultErr = LoadFS(sub)
	})
	return defaultGraph, defaultErr
}

// LoadDir 从目录加载剧情，目录结构与内置数据一致
func LoadDir(dir string) (*Graph, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("剧情目录不可用: %w", err)
	}
	return LoadFS(os.DirFS(dir))
}

type metaDoc struct {
	Title      string                 `yaml:"title"`
	Start      string                 `yaml:"start"`
	Intro      string                 `yaml:"intro"`
	Axes       []models.Axis          `yaml:"axes"`
	Characters []models.Character     `yaml:"characters"`
	Flags      map[string]string      `yaml:"flags"`
	Items      map[string]string      `yaml:"items"`
	Endings    []models.EndingProfile `yaml:"endings"`
	Baseline   string                 `yaml:"baseline"`
	SideQuest  *models.SideQuest      `yaml:"sideQuest"`
	Families   []familyDoc            `yaml:"families"`
}

type familyDoc struct {
	ID       string           `yaml:"id"`
	Variants []models.Variant `yaml:"variants"`
	Default  string           `yaml:"default"`
}

type catalogDoc struct {
	Drinks []models.Drink `yaml:"drinks"`
	Extras []models.Extra `yaml:"extras"`
}

type chapterDoc struct {
	Chapter string     `yaml:"chapter"`
	Scenes  []sceneDoc `yaml:"scenes"`
}

type sceneDoc struct {
	ID         string               `yaml:"id"`
	Type       string               `yaml:"type"`
	Title      string               `yaml:"title"`
	Speaker    string               `yaml:"speaker"`
	Expression string               `yaml:"expression"`
	Background string               `yaml:"bg"`
	Text       string               `yaml:"text"`
	Segments   []models.TextSegment `yaml:"segments"`
	Choices    []choiceDoc          `yaml:"choices"`
	Order      *orderDoc            `yaml:"order"`
}

type choiceDoc struct {
	Label     string       `yaml:"label"`
	Guard     models.Guard `yaml:"guard"`
	Effects   []effectDoc  `yaml:"effects"`
	Target    string       `yaml:"target"`
	LockRoute bool         `yaml:"lockRoute"`
}

type orderDoc struct {
	NPC     string    `yaml:"npc"`
	Request string    `yaml:"request"`
	Note    string    `yaml:"note"`
	Next    string    `yaml:"next"`
	Rules   []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID      string                `yaml:"id"`
	When    models.OrderCondition `yaml:"when"`
	Effects []effectDoc           `yaml:"effects"`
	Reply   string                `yaml:"reply"`
}

// effectDoc 单键映射形式的效果条目，例如 `- setFlags: [a, b]`
type effectDoc struct {
	Key   string
	Value yaml.Node
	Line  int
}

// UnmarshalYAML 要求每个效果条目恰好有一个键
func (e *effectDoc) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("第%d行: 效果条目必须是单键映射", node.Line)
	}
	e.Key = node.Content[0].Value
	e.Value = *node.Content[1]
	e.Line = node.Line
	return nil
}

// LoadFS 从文件系统加载并合并 meta、饮品目录与各章节
func LoadFS(fsys fs.FS) (*Graph, error) {
	var meta metaDoc
	if err := decodeFile(fsys, metaFile, &meta); err != nil {
		return nil, err
	}
	var catalog catalogDoc
	if err := decodeFile(fsys, drinksFile, &catalog); err != nil {
		return nil, err
	}

	g := &Graph{
		Title:      meta.Title,
		Start:      meta.Start,
		Intro:      meta.Intro,
		Scenes:     make(map[string]*models.Scene),
		Families:   make(map[string]*models.VariantFamily),
		Axes:       meta.Axes,
		Characters: meta.Characters,
		Flags:      meta.Flags,
		Items:      meta.Items,
		Endings:    meta.Endings,
		Baseline:   meta.Baseline,
		SideQuest:  meta.SideQuest,
		Drinks:     catalog.Drinks,
		Extras:     catalog.Extras,
	}
	if g.Flags == nil {
		g.Flags = map[string]string{}
	}
	if g.Items == nil {
		g.Items = map[string]string{}
	}
	if len(g.Axes) == 0 {
		return nil, apperrors.NewAuthoringError("至少需要一条倾向轴", nil)
	}
	if len(g.Drinks) == 0 {
		return nil, apperrors.NewAuthoringError("饮品目录为空", nil)
	}

	for _, f := range meta.Families {
		g.Families[f.ID] = &models.VariantFamily{ID: f.ID, Variants: f.Variants, Default: f.Default}
	}

	poles := poleTable(g.Axes)

	files, err := fs.Glob(fsys, chapterPattern)
	if err != nil {
		return nil, fmt.Errorf("枚举章节文件失败: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, apperrors.NewAuthoringError("没有找到章节文件", nil)
	}

	seen := make(map[string]bool)
	for _, file := range files {
		var doc chapterDoc
		if err := decodeFile(fsys, file, &doc); err != nil {
			return nil, err
		}
		chapter := Chapter{Name: doc.Chapter, File: file}
		if chapter.Name == "" {
			chapter.Name = path.Base(file)
		}
		for _, sd := range doc.Scenes {
			scene, err := compileScene(sd, chapter.Name, poles)
			if err != nil {
				return nil, apperrors.NewAuthoringError(fmt.Sprintf("%s 场景 %s 编译失败", file, sd.ID), err)
			}
			chapter.SceneIDs = append(chapter.SceneIDs, scene.ID)
			// 章节按对象展开语义合并：后者覆盖前者，重复由离线校验报告
			g.Scenes[scene.ID] = scene
			if !seen[scene.ID] {
				seen[scene.ID] = true
				g.order = append(g.order, scene.ID)
			}
		}
		g.Chapters = append(g.Chapters, chapter)
	}

	return g, nil
}

func decodeFile(fsys fs.FS, name string, out interface{}) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("读取剧情文件 %s 失败: %w", name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return apperrors.NewAuthoringError(fmt.Sprintf("解析剧情文件 %s 失败", name), err)
	}
	return nil
}

type pole struct {
	axis string
	sign int
}

// poleTable 极性名/轴名 -> (轴, 符号)
func poleTable(axes []models.Axis) map[string]pole {
	table := make(map[string]pole, len(axes)*3)
	for _, a := range axes {
		table[a.Name] = pole{axis: a.Name, sign: 1}
		if a.Positive != "" {
			table[a.Positive] = pole{axis: a.Name, sign: 1}
		}
		if a.Negative != "" {
			table[a.Negative] = pole{axis: a.Name, sign: -1}
		}
	}
	return table
}

func compileScene(sd sceneDoc, chapter string, poles map[string]pole) (*models.Scene, error) {
	if sd.ID == "" {
		return nil, fmt.Errorf("缺少场景ID")
	}
	scene := &models.Scene{
		ID:      sd.ID,
		Chapter: chapter,
		Type:    models.SceneType(sd.Type),
		Body: models.Body{
			Title:      sd.Title,
			Speaker:    sd.Speaker,
			Expression: sd.Expression,
			Background: sd.Background,
			Text:       sd.Text,
			Segments:   sd.Segments,
		},
	}
	if scene.Type == "" {
		scene.Type = models.SceneNormal
		if len(sd.Choices) > 1 {
			scene.Type = models.SceneBranch
		}
	}
	if scene.Body.Expression == "" {
		scene.Body.Expression = "neutral"
	}

	switch scene.Type {
	case models.SceneOrder:
		if sd.Order == nil {
			return nil, fmt.Errorf("点单场景缺少 order 载荷")
		}
		if len(sd.Choices) > 0 {
			return nil, fmt.Errorf("点单场景不能同时声明 choices")
		}
		spec, err := compileOrder(*sd.Order, poles)
		if err != nil {
			return nil, err
		}
		scene.Order = spec
	case models.SceneNormal, models.SceneBranch:
		if sd.Order != nil {
			return nil, fmt.Errorf("%s 场景不能声明 order 载荷", scene.Type)
		}
		if len(sd.Choices) == 0 {
			return nil, fmt.Errorf("场景没有任何选项")
		}
		for i, cd := range sd.Choices {
			effects, err := compileEffects(cd.Effects, poles)
			if err != nil {
				return nil, fmt.Errorf("选项 #%d: %w", i+1, err)
			}
			scene.Choices = append(scene.Choices, models.Choice{
				Label:     cd.Label,
				Guard:     cd.Guard,
				Effects:   effects,
				Target:    cd.Target,
				LockRoute: cd.LockRoute,
			})
		}
	default:
		return nil, fmt.Errorf("未知场景类型 %q", sd.Type)
	}
	return scene, nil
}

func compileOrder(od orderDoc, poles map[string]pole) (*models.OrderSpec, error) {
	if len(od.Rules) == 0 {
		return nil, fmt.Errorf("点单场景没有反馈规则")
	}
	spec := &models.OrderSpec{
		NPC:     od.NPC,
		Request: od.Request,
		Note:    od.Note,
		Next:    od.Next,
	}
	for i, rd := range od.Rules {
		effects, err := compileEffects(rd.Effects, poles)
		if err != nil {
			return nil, fmt.Errorf("规则 %s: %w", rd.ID, err)
		}
		if i == len(od.Rules)-1 && !rd.When.IsZero() {
			return nil, fmt.Errorf("最后一条规则 %s 必须是无条件兜底", rd.ID)
		}
		spec.Rules = append(spec.Rules, models.OrderRule{
			ID:      rd.ID,
			When:    rd.When,
			Effects: effects,
			Reply:   rd.Reply,
		})
	}
	return spec, nil
}

func compileEffects(docs []effectDoc, poles map[string]pole) ([]models.Effect, error) {
	out := make([]models.Effect, 0, len(docs))
	for _, d := range docs {
		e, err := compileEffect(d, poles)
		if err != nil {
			return nil, fmt.Errorf("第%d行: %w", d.Line, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func compileEffect(d effectDoc, poles map[string]pole) (models.Effect, error) {
	switch models.EffectKind(d.Key) {
	case models.EffectSetFlags:
		flags, err := stringList(&d.Value)
		if err != nil {
			return nil, err
		}
		return models.SetFlags{Flags: flags}, nil
	case models.EffectClearFlags:
		flags, err := stringList(&d.Value)
		if err != nil {
			return nil, err
		}
		return models.ClearFlags{Flags: flags}, nil
	case models.EffectAddItem:
		item, count, err := itemRef(&d.Value, 1)
		if err != nil {
			return nil, err
		}
		if count <= 0 {
			return nil, fmt.Errorf("addItem 数量必须为正: %d", count)
		}
		return models.AddItem{Item: item, Count: count}, nil
	case models.EffectRemoveItem:
		item, count, err := itemRef(&d.Value, 0)
		if err != nil {
			return nil, err
		}
		return models.RemoveItem{Item: item, Count: count}, nil
	case models.EffectRelation:
		var rel struct {
			Name  string `yaml:"name"`
			Value int    `yaml:"value"`
		}
		if err := d.Value.Decode(&rel); err != nil {
			return nil, fmt.Errorf("rel 格式错误: %w", err)
		}
		if rel.Name == "" {
			return nil, fmt.Errorf("rel 缺少 name")
		}
		return models.AdjustRelation{Name: rel.Name, Delta: rel.Value}, nil
	case models.EffectTendency:
		var raw map[string]int
		if err := d.Value.Decode(&raw); err != nil {
			return nil, fmt.Errorf("tendency 格式错误: %w", err)
		}
		deltas := make(map[string]int, len(raw))
		for name, v := range raw {
			p, ok := poles[name]
			if !ok {
				return nil, fmt.Errorf("未知倾向极性 %q", name)
			}
			deltas[p.axis] += p.sign * v
		}
		return models.AdjustTendency{Deltas: deltas}, nil
	}
	return nil, fmt.Errorf("未知效果类型 %q", d.Key)
}

func stringList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.ScalarNode {
		return []string{node.Value}, nil
	}
	var out []string
	if err := node.Decode(&out); err != nil {
		return nil, fmt.Errorf("需要字符串列表: %w", err)
	}
	return out, nil
}

func itemRef(node *yaml.Node, defaultCount int) (string, int, error) {
	if node.Kind == yaml.ScalarNode {
		return node.Value, defaultCount, nil
	}
	ref := struct {
		Item  string `yaml:"item"`
		Count *int   `yaml:"count"`
	}{}
	if err := node.Decode(&ref); err != nil {
		return "", 0, fmt.Errorf("物品格式错误: %w", err)
	}
	if ref.Item == "" {
		return "", 0, fmt.Errorf("物品条目缺少 item")
	}
	if ref.Count == nil {
		return ref.Item, defaultCount, nil
	}
	return ref.Item, *ref.Count, nil
}
