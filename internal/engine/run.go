// internal/engine/run.go
package engine

import (
	"fmt"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

// TransitionKind 状态变化通知类型
type TransitionKind string

const (
	TransitionStart  TransitionKind = "start"
	TransitionEnter  TransitionKind = "enter"
	TransitionEnding TransitionKind = "ending"
	TransitionDraft  TransitionKind = "draft"
	TransitionLoad   TransitionKind = "load"
	TransitionAudio  TransitionKind = "audio"
)

// Transition 交给宿主的变化通知（自动存档、环境音、推送）
type Transition struct {
	Kind       TransitionKind
	From       string
	To         string
	Background string
	Ending     string
	State      *models.State
	Forecast   models.Forecast
}

// TransitionListener 变化监听器
type TransitionListener func(Transition)

// ChoiceView 可见选项
type ChoiceView struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	LockRoute bool   `json:"lock_route,omitempty"`
}

// OrderView 点单面板载荷
type OrderView struct {
	NPC     string            `json:"npc"`
	NPCName string            `json:"npc_name"`
	Request string            `json:"request"`
	Note    string            `json:"note,omitempty"`
	Draft   models.OrderDraft `json:"draft"`
	Preview models.Order      `json:"preview"`
	Drinks  []models.Drink    `json:"drinks"`
	Extras  []models.Extra    `json:"extras"`
}

// EndingView 结局回放
type EndingView struct {
	ID         string                `json:"id"`
	Title      string                `json:"title"`
	Text       string                `json:"text"`
	SideQuest  string                `json:"side_quest,omitempty"`
	KeyChoices []models.ChoiceRecord `json:"key_choices"`
	Unlocked   []string              `json:"unlocked"`
}

// View 当前场景的展示数据
type View struct {
	SceneID     string          `json:"scene_id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Speaker     string          `json:"speaker"`
	SpeakerName string          `json:"speaker_name"`
	Expression  string          `json:"expression"`
	Background  string          `json:"background"`
	Text        string          `json:"text"`
	IsNew       bool            `json:"is_new"`
	Choices     []ChoiceView    `json:"choices"`
	Order       *OrderView      `json:"order,omitempty"`
	Ending      *EndingView     `json:"ending,omitempty"`
	Forecast    models.Forecast `json:"forecast"`
}

// keyChoiceCount 结局页回顾的关键选择数
const keyChoiceCount = 8

// Run 单次游玩的显式上下文：持有唯一的状态与剧情图引用。
// 非并发安全，调用方保证同一时刻只有一个修改者。
type Run struct {
	graph      *story.Graph
	resolver   *Resolver
	forecaster *Forecaster
	state      *models.State
	fault      error
	lastNew    bool
	listeners  []TransitionListener
}

// NewRun 创建停留在标题页的运行
func NewRun(g *story.Graph) *Run {
	return &Run{
		graph:      g,
		resolver:   NewResolver(g),
		forecaster: NewForecaster(g),
		state:      models.NewState(),
	}
}

// Graph 剧情图
func (r *Run) Graph() *story.Graph {
	return r.graph
}

// OnTransition 注册变化监听器
func (r *Run) OnTransition(fn TransitionListener) {
	r.listeners = append(r.listeners, fn)
}

// State 返回状态副本
func (r *Run) State() *models.State {
	return r.state.Clone()
}

// Faulted 运行是否已因致命错误终止
func (r *Run) Faulted() error {
	return r.fault
}

func (r *Run) check() error {
	if r.fault != nil {
		return apperrors.NewRunFaultedError("本次运行已终止，请重新开始", r.fault)
	}
	return nil
}

// markFault 编写错误与守卫缺口使本次运行不可继续
func (r *Run) markFault(err error) error {
	if apperrors.IsFatal(err) {
		r.fault = err
	}
	return err
}

// Start 开始新卷。已解锁结局与音频设置跨卷保留。
func (r *Run) Start() (*View, error) {
	prev := r.state
	next := models.NewState()
	next.UnlockedEndings = append(next.UnlockedEndings, prev.UnlockedEndings...)
	next.AudioSettings = prev.AudioSettings
	next.DialogueHistory = append(next.DialogueHistory, models.DialogueEntry{Text: "[系统] 新的一卷磁带开始转动。"})

	if err := r.enter(next, r.graph.Start); err != nil {
		return nil, r.markFault(err)
	}
	r.fault = nil
	r.commit(TransitionStart, prev.SceneID, next)
	return r.Current()
}

// Replace 读档：整体替换状态，不做合并。场景指针无效时拒绝并保留原状态。
func (r *Run) Replace(s *models.State) (*View, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.NewValidationError("存档状态为空", nil)
	}
	if s.SceneID != models.TitleScene && s.SceneID != models.EndScene {
		if _, ok := r.graph.Scene(s.SceneID); !ok {
			return nil, apperrors.NewSaveCorruptError(fmt.Sprintf("存档场景 %s 不存在于当前剧情", s.SceneID), nil)
		}
	}
	next := s.Clone()
	next.Normalize()
	prev := r.state.SceneID
	r.lastNew = false
	r.commit(TransitionLoad, prev, next)
	return r.Current()
}

// Current 当前场景视图。不改变状态，但当前场景缺失时会终止运行。
func (r *Run) Current() (*View, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	s := r.state
	v := &View{
		SceneID:  s.SceneID,
		Choices:  []ChoiceView{},
		Forecast: r.forecaster.Forecast(s),
	}
	switch s.SceneID {
	case models.TitleScene:
		v.Type = "title"
		v.Title = "标题：" + r.graph.Title
		v.Text = r.graph.Intro
		v.Speaker = "zero"
		v.SpeakerName = r.graph.CharacterName("zero")
		v.Expression = "neutral"
		v.Background = "bar"
		return v, nil
	case models.EndScene:
		v.Type = "ending"
		v.Title = "结局回放"
		v.Background = "dawn"
		v.Ending = r.endingView(s)
		if v.Ending != nil {
			v.Text = v.Ending.Text
		}
		return v, nil
	}

	scene, ok := r.graph.Scene(s.SceneID)
	if !ok {
		return nil, r.markFault(apperrors.NewGuardGapError(fmt.Sprintf("当前场景 %s 不存在", s.SceneID), nil))
	}
	v.Type = string(scene.Type)
	v.Title = scene.Body.Title
	v.Speaker = scene.Body.Speaker
	v.SpeakerName = r.graph.CharacterName(scene.Body.Speaker)
	v.Expression = scene.Body.Expression
	v.Background = scene.Body.Background
	v.Text = Compose(scene, s)
	v.IsNew = r.lastNew
	if scene.Type == models.SceneOrder {
		draft, ok := s.OrderDrafts[scene.ID]
		if !ok {
			draft = DefaultDraft(r.graph)
		}
		v.Order = &OrderView{
			NPC:     scene.Order.NPC,
			NPCName: r.graph.CharacterName(scene.Order.NPC),
			Request: scene.Order.Request,
			Note:    scene.Order.Note,
			Draft:   draft,
			Preview: BuildOrder(r.graph, draft),
			Drinks:  r.graph.Drinks,
			Extras:  r.graph.Extras,
		}
		return v, nil
	}
	v.Choices = r.visibleChoices(scene, s)
	return v, nil
}

// AvailableChoices 当前场景守卫成立的选项
func (r *Run) AvailableChoices() ([]ChoiceView, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	scene, ok := r.graph.Scene(r.state.SceneID)
	if !ok || scene.Type == models.SceneOrder {
		return []ChoiceView{}, nil
	}
	return r.visibleChoices(scene, r.state), nil
}

func (r *Run) visibleChoices(scene *models.Scene, s *models.State) []ChoiceView {
	out := make([]ChoiceView, 0, len(scene.Choices))
	for i, c := range scene.Choices {
		if EvalGuard(c.Guard, s) {
			out = append(out, ChoiceView{Index: i, Label: c.Label, LockRoute: c.LockRoute})
		}
	}
	return out
}

// Forecast 当前状态的结局预测
func (r *Run) Forecast() (models.Forecast, error) {
	if err := r.check(); err != nil {
		return models.Forecast{}, err
	}
	return r.forecaster.Forecast(r.state), nil
}

// Choose 选择编写顺序中第 index 个选项：先整批应用效果，再解析下一场景
func (r *Run) Choose(index int) (*View, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	scene, ok := r.graph.Scene(r.state.SceneID)
	if !ok {
		return nil, apperrors.NewValidationError("当前不在可选择的场景", nil)
	}
	if scene.Type == models.SceneOrder {
		return nil, apperrors.NewValidationError("点单场景需要提交订单", nil)
	}
	if index < 0 || index >= len(scene.Choices) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("选项 %d 不存在", index), nil)
	}
	choice := scene.Choices[index]
	if !EvalGuard(choice.Guard, r.state) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("选项 %d 当前不可用", index), nil)
	}

	next, err := Apply(r.state, choice.Effects)
	if err != nil {
		return nil, err
	}
	next.ChoiceHistory = append(next.ChoiceHistory, models.ChoiceRecord{
		SceneID: scene.ID,
		Scene:   scene.Body.Title,
		Choice:  choice.Label,
	})
	next.DialogueHistory = append(next.DialogueHistory, models.DialogueEntry{
		SceneID: scene.ID,
		Text:    "▶ " + choice.Label,
	})

	if err := r.advance(next, choice.Target, choice.LockRoute); err != nil {
		return nil, r.markFault(err)
	}
	return r.Current()
}

// SaveOrderDraft 暂存点单面板草稿
func (r *Run) SaveOrderDraft(draft models.OrderDraft) (models.OrderDraft, error) {
	if err := r.check(); err != nil {
		return models.OrderDraft{}, err
	}
	scene, err := r.orderScene()
	if err != nil {
		return models.OrderDraft{}, err
	}
	clean := NormalizeDraft(r.graph, draft)
	next := r.state.Clone()
	next.OrderDrafts[scene.ID] = clean
	r.commit(TransitionDraft, scene.ID, next)
	return clean, nil
}

// SubmitOrder 把饮品面板提交的订单翻译成效果，并沿普通路径推进
func (r *Run) SubmitOrder(draft models.OrderDraft) (*View, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	scene, err := r.orderScene()
	if err != nil {
		return nil, err
	}
	order := BuildOrder(r.graph, draft)
	rule, ok := MatchRule(scene.Order, order)
	if !ok {
		return nil, r.markFault(apperrors.NewAuthoringError(fmt.Sprintf("点单场景 %s 没有兜底规则", scene.ID), nil))
	}

	next, err := Apply(r.state, rule.Effects)
	if err != nil {
		return nil, err
	}
	npcName := r.graph.CharacterName(scene.Order.NPC)
	extraNames := make([]string, len(order.Extras))
	for i, e := range order.Extras {
		extraNames[i] = e.Name
	}
	next.OrderDrafts[scene.ID] = NormalizeDraft(r.graph, draft)
	next.OrderHistory = append(next.OrderHistory, models.OrderRecord{
		SceneID: scene.ID,
		NPC:     scene.Order.NPC,
		Drink:   order.Drink.Name,
		Extras:  extraNames,
		RuleID:  rule.ID,
	})
	next.ChoiceHistory = append(next.ChoiceHistory, models.ChoiceRecord{
		SceneID: scene.ID,
		Scene:   scene.Body.Title,
		Choice:  fmt.Sprintf("给 %s：%s", npcName, order.Drink.Name),
	})
	next.DialogueHistory = append(next.DialogueHistory,
		models.DialogueEntry{SceneID: scene.ID, Text: "↳ 反馈：" + rule.Reply},
		models.DialogueEntry{SceneID: scene.ID, Text: fmt.Sprintf("🍸 给了%s：%s", npcName, DescribeOrder(order))},
	)

	if err := r.advance(next, scene.Order.Next, false); err != nil {
		return nil, r.markFault(err)
	}
	return r.Current()
}

// SetAudioSettings 音频协作方持有的不透明设置块
func (r *Run) SetAudioSettings(raw []byte) error {
	if err := r.check(); err != nil {
		return err
	}
	next := r.state.Clone()
	next.AudioSettings = append([]byte(nil), raw...)
	r.commit(TransitionAudio, next.SceneID, next)
	return nil
}

func (r *Run) orderScene() (*models.Scene, error) {
	scene, ok := r.graph.Scene(r.state.SceneID)
	if !ok || scene.Type != models.SceneOrder || scene.Order == nil {
		return nil, apperrors.NewValidationError("当前场景不是点单场景", nil)
	}
	return scene, nil
}

// advance 在已应用效果的新状态上解析目标；成功后才替换运行状态
func (r *Run) advance(next *models.State, target string, lockRoute bool) error {
	from := r.state.SceneID
	if lockRoute {
		// 先按预测锁定路线，终章变体再据锁定结果解析
		lock := r.forecaster.Forecast(next).EndingID
		next.RouteLock = lock
		if e, ok := r.graph.Ending(lock); ok {
			next.DialogueHistory = append(next.DialogueHistory, models.DialogueEntry{
				Text: fmt.Sprintf("[系统] 终章路线锁定：%s【%s】", e.ID, e.Name),
			})
		}
	}
	resolved, err := r.resolver.Select(next, target)
	if err != nil {
		return err
	}
	if resolved == models.EndScene {
		r.finish(next)
		r.commit(TransitionEnding, from, next)
		return nil
	}
	if err := r.enter(next, resolved); err != nil {
		return err
	}
	r.commit(TransitionEnter, from, next)
	return nil
}

// enter 解析并进入场景：记录路径、快照、正文与已读指纹
func (r *Run) enter(next *models.State, target string) error {
	id, err := r.resolver.Resolve(next, target)
	if err != nil {
		return err
	}
	scene, ok := r.graph.Scene(id)
	if !ok {
		return apperrors.NewGuardGapError(fmt.Sprintf("场景 %s 不存在", id), nil)
	}
	text := Compose(scene, next)
	h := TextHash(id, text)
	r.lastNew = !next.SeenText[h]
	next.SeenText[h] = true
	next.DialogueHistory = append(next.DialogueHistory, models.DialogueEntry{
		SceneID: id,
		Speaker: scene.Body.Speaker,
		Text:    fmt.Sprintf("[%s]\n%s", scene.Body.Title, text),
	})
	return nil
}

// finish 到达 END：确定结局并解锁
func (r *Run) finish(next *models.State) {
	next.SceneID = models.EndScene
	ending := next.RouteLock
	if ending == "" {
		ending = r.forecaster.Forecast(next).EndingID
	}
	next.Ending = ending
	if ending == "" {
		return
	}
	unlocked := false
	for _, id := range next.UnlockedEndings {
		if id == ending {
			unlocked = true
			break
		}
	}
	if !unlocked {
		next.UnlockedEndings = append(next.UnlockedEndings, ending)
	}
	if e, ok := r.graph.Ending(ending); ok {
		next.DialogueHistory = append(next.DialogueHistory, models.DialogueEntry{
			Text: fmt.Sprintf("[结局] 结局%s【%s】", e.ID, e.Name),
		})
	}
	r.lastNew = false
}

func (r *Run) endingView(s *models.State) *EndingView {
	e, ok := r.graph.Ending(s.Ending)
	if !ok {
		return nil
	}
	v := &EndingView{
		ID:         e.ID,
		Title:      fmt.Sprintf("结局%s【%s】", e.ID, e.Name),
		Text:       e.Text,
		KeyChoices: []models.ChoiceRecord{},
		Unlocked:   append([]string(nil), s.UnlockedEndings...),
	}
	if sq := r.graph.SideQuest; sq != nil && s.HasFlag(sq.Flag) {
		v.SideQuest = sq.Note
	}
	history := s.ChoiceHistory
	if len(history) > keyChoiceCount {
		history = history[len(history)-keyChoiceCount:]
	}
	v.KeyChoices = append(v.KeyChoices, history...)
	return v
}

// commit 替换运行状态并通知监听器。监听器拿到的是副本。
func (r *Run) commit(kind TransitionKind, from string, next *models.State) {
	r.state = next
	if len(r.listeners) == 0 {
		return
	}
	t := Transition{
		Kind:     kind,
		From:     from,
		To:       next.SceneID,
		Ending:   next.Ending,
		State:    next.Clone(),
		Forecast: r.forecaster.Forecast(next),
	}
	if scene, ok := r.graph.Scene(next.SceneID); ok {
		t.Background = scene.Body.Background
	}
	for _, fn := range r.listeners {
		fn(t)
	}
}
