// internal/engine/history.go
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// MinDisplayLimit 历史面板最少可见条目数
const MinDisplayLimit = 30

// Compose 按状态组装场景正文：基础文本 + 条件片段，并替换 {tendency.x} / {relation.x} 占位符
func Compose(scene *models.Scene, s *models.State) string {
	var b strings.Builder
	b.WriteString(scene.Body.Text)
	for _, seg := range scene.Body.Segments {
		if EvalGuard(seg.When, s) {
			b.WriteString(seg.Text)
		} else {
			b.WriteString(seg.Else)
		}
	}
	text := b.String()
	if !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, 2*(len(s.Tendencies)+len(s.Relations)))
	for k, v := range s.Tendencies {
		pairs = append(pairs, "{tendency."+k+"}", strconv.Itoa(v))
	}
	for k, v := range s.Relations {
		pairs = append(pairs, "{relation."+k+"}", strconv.Itoa(v))
	}
	text = strings.NewReplacer(pairs...).Replace(text)
	// 未出现过的轴按0显示
	for _, prefix := range []string{"{tendency.", "{relation."} {
		for {
			i := strings.Index(text, prefix)
			if i < 0 {
				break
			}
			j := strings.Index(text[i:], "}")
			if j < 0 {
				break
			}
			text = text[:i] + "0" + text[i+j+1:]
		}
	}
	return text
}

// TextHash 文本块指纹，用于"新内容"标记
func TextHash(sceneID, text string) string {
	sum := sha256.Sum256([]byte(sceneID + "\x00" + text))
	return hex.EncodeToString(sum[:8])
}

// DialogueWindow 返回最近的 limit 条对话，窗口不小于 MinDisplayLimit；上限由调用方按配置截断
func DialogueWindow(s *models.State, limit int) []models.DialogueEntry {
	if limit < MinDisplayLimit {
		limit = MinDisplayLimit
	}
	entries := s.DialogueHistory
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]models.DialogueEntry(nil), entries...)
}

// ReviewStep 本次通关路径上的一个节点
type ReviewStep struct {
	Step    int    `json:"step"`
	SceneID string `json:"scene_id"`
	Title   string `json:"title"`
	Chapter string `json:"chapter"`
	Choice  string `json:"choice,omitempty"`
}

// Review 返回完整路径（不受显示窗口限制），只包含实际走过的场景
func Review(g *story.Graph, s *models.State) []ReviewStep {
	steps := make([]ReviewStep, 0, len(s.PathHistory))
	j := 0
	for i, id := range s.PathHistory {
		step := ReviewStep{Step: i, SceneID: id}
		if scene, ok := g.Scene(id); ok {
			step.Title = scene.Body.Title
			step.Chapter = scene.Chapter
		}
		if j < len(s.ChoiceHistory) && s.ChoiceHistory[j].SceneID == id {
			step.Choice = s.ChoiceHistory[j].Choice
			j++
		}
		steps = append(steps, step)
	}
	return steps
}

// Frame 只读回放帧
type Frame struct {
	Step       int             `json:"step"`
	SceneID    string          `json:"scene_id"`
	Title      string          `json:"title"`
	Speaker    string          `json:"speaker"`
	Expression string          `json:"expression"`
	Background string          `json:"background"`
	Text       string          `json:"text"`
	Choices    []string        `json:"choices"`
	Taken      string          `json:"taken,omitempty"`
	Snapshot   models.Snapshot `json:"snapshot"`
	ReadOnly   bool            `json:"read_only"`
}

// Playback 用该步的历史快照渲染回放帧。
// 帧基于快照的独立副本组装，不会触碰实时状态。
func Playback(g *story.Graph, s *models.State, step int) (Frame, error) {
	if step < 0 || step >= len(s.PathHistory) {
		return Frame{}, apperrors.NewNotFoundError(fmt.Sprintf("回放步骤 %d 不存在", step), nil)
	}
	sceneID := s.PathHistory[step]
	scene, ok := g.Scene(sceneID)
	if !ok {
		return Frame{}, apperrors.NewNotFoundError(fmt.Sprintf("场景 %s 不存在", sceneID), nil)
	}
	var historical *models.State
	if step < len(s.Checkpoints) && s.Checkpoints[step].SceneID == sceneID {
		historical = models.FromSnapshot(s.Checkpoints[step])
	} else {
		// 旧存档没有快照时退化为空状态
		historical = models.NewState()
		historical.SceneID = sceneID
	}

	frame := Frame{
		Step:       step,
		SceneID:    sceneID,
		Title:      scene.Body.Title,
		Speaker:    g.CharacterName(scene.Body.Speaker),
		Expression: scene.Body.Expression,
		Background: scene.Body.Background,
		Text:       Compose(scene, historical),
		Choices:    []string{},
		Snapshot:   historical.Snapshot(),
		ReadOnly:   true,
	}
	for _, c := range scene.Choices {
		if EvalGuard(c.Guard, historical) {
			frame.Choices = append(frame.Choices, c.Label)
		}
	}
	for _, r := range Review(g, s) {
		if r.Step == step {
			frame.Taken = r.Choice
		}
	}
	return frame, nil
}
