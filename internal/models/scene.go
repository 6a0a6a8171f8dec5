// internal/models/scene.go
package models

import "regexp"

// SceneType 场景类型
type SceneType string

const (
	SceneNormal SceneType = "normal"
	SceneBranch SceneType = "branch"
	SceneOrder  SceneType = "order"
)

// 特殊场景指针
const (
	TitleScene = "__TITLE__"
	EndScene   = "END"
)

// sceneIDPattern 场景ID：s + 两位数字 + 可选的路线后缀字母
var sceneIDPattern = regexp.MustCompile(`^s\d{2}[A-Z]?$`)

// ValidSceneID 检查场景ID格式
func ValidSceneID(id string) bool {
	return sceneIDPattern.MatchString(id)
}

// Scene 表示一个编写好的剧情单元。加载后不可变。
type Scene struct {
	ID      string     `json:"id"`
	Chapter string     `json:"chapter"`
	Type    SceneType  `json:"type"`
	Body    Body       `json:"body"`
	Choices []Choice   `json:"choices,omitempty"`
	Order   *OrderSpec `json:"order,omitempty"`
}

// Body 场景正文引用。对核心而言是不透明内容，只在组装文本时按条件选择片段。
type Body struct {
	Title      string        `json:"title"`
	Speaker    string        `json:"speaker"`
	Expression string        `json:"expression"`
	Background string        `json:"background"`
	Text       string        `json:"text"`
	Segments   []TextSegment `json:"segments,omitempty"`
}

// TextSegment 条件文本片段：守卫成立时追加 Text，否则追加 Else
type TextSegment struct {
	When Guard  `json:"when"`
	Text string `json:"text"`
	Else string `json:"else,omitempty"`
}

// Choice 场景中的一个选项
type Choice struct {
	Label     string   `json:"label"`
	Guard     Guard    `json:"guard"`
	Effects   []Effect `json:"-"`
	Target    string   `json:"target"`
	LockRoute bool     `json:"lock_route,omitempty"`
}

// IsTerminal 是否为终章场景（只通向 END）
func (s *Scene) IsTerminal() bool {
	if s.Type == SceneOrder || len(s.Choices) == 0 {
		return false
	}
	for _, c := range s.Choices {
		if c.Target != EndScene {
			return false
		}
	}
	return true
}

// Targets 返回场景所有出边目标（选项目标或点单的 next）
func (s *Scene) Targets() []string {
	if s.Type == SceneOrder && s.Order != nil {
		return []string{s.Order.Next}
	}
	targets := make([]string, 0, len(s.Choices))
	for _, c := range s.Choices {
		targets = append(targets, c.Target)
	}
	return targets
}
