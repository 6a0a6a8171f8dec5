// internal/services/session_service.go
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yzy0324/neon-tape-vn/internal/audio"
	"github.com/yzy0324/neon-tape-vn/internal/engine"
	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/savegame"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

// RunEvent 推送给前端的运行变化事件
type RunEvent struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to"`
	Ending    string          `json:"ending,omitempty"`
	Forecast  models.Forecast `json:"forecast"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventPublisher 运行事件的接收方（WebSocket 中心实现）
type EventPublisher interface {
	PublishRunEvent(event RunEvent)
}

// RunSession 一次活动中的游玩
type RunSession struct {
	ID         string    `json:"id"`
	Profile    string    `json:"profile"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`

	run *engine.Run
}

// SessionService 管理活动运行。每个运行的所有访问都经过运行锁串行化。
type SessionService struct {
	graph        *story.Graph
	locks        *LockManager
	autosaver    *savegame.AutoSaver
	historyLimit int

	mu        sync.RWMutex
	sessions  map[string]*RunSession
	notifier  audio.Notifier
	publisher EventPublisher
	stats     *StatsService

	metrics *utils.MetricsCollector
	logger  *utils.Logger
}

// NewSessionService 创建会话服务。autosaver 可以为 nil（不做自动存档）。
func NewSessionService(graph *story.Graph, locks *LockManager, autosaver *savegame.AutoSaver, historyLimit int) *SessionService {
	if locks == nil {
		locks = NewLockManager()
	}
	if historyLimit < engine.MinDisplayLimit {
		historyLimit = engine.MinDisplayLimit
	}
	return &SessionService{
		graph:        graph,
		locks:        locks,
		autosaver:    autosaver,
		historyLimit: historyLimit,
		sessions:     make(map[string]*RunSession),
		notifier:     audio.NopNotifier{},
		metrics:      utils.GetMetricsCollector(),
		logger:       utils.GetLogger(),
	}
}

// SetNotifier 设置音频通知接收方
func (s *SessionService) SetNotifier(n audio.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == nil {
		n = audio.NopNotifier{}
	}
	s.notifier = n
}

// SetPublisher 设置运行事件接收方
func (s *SessionService) SetPublisher(p EventPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// SetStats 设置游玩统计
func (s *SessionService) SetStats(stats *StatsService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
}

// Graph 剧情图
func (s *SessionService) Graph() *story.Graph {
	return s.graph
}

// Start 为档案开启新运行
func (s *SessionService) Start(profile string) (*RunSession, *engine.View, error) {
	if profile == "" {
		profile = storage.DefaultProfile
	}
	if err := storage.ValidateProfile(profile); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	sess := &RunSession{
		ID:         uuid.New().String(),
		Profile:    profile,
		CreatedAt:  now,
		LastActive: now,
		run:        engine.NewRun(s.graph),
	}
	sess.run.OnTransition(s.transitionHandler(sess))

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	var view *engine.View
	err := s.locks.ExecuteWithRunLock(sess.ID, func() error {
		v, err := sess.run.Start()
		view = v
		return err
	})
	if err != nil {
		s.drop(sess.ID)
		return nil, nil, s.observe(sess.ID, err)
	}

	s.metrics.IncGauge(utils.MetricActiveRuns)
	if stats := s.statsService(); stats != nil {
		stats.RecordRunStarted()
	}
	s.logger.Info("新运行开始", utils.Fields{"run_id": sess.ID, "profile": profile})
	return sess, view, nil
}

// Get 查找运行
func (s *SessionService) Get(runID string) (*RunSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("运行 %s 不存在", runID), nil)
	}
	return sess, nil
}

// Close 结束运行并释放其锁
func (s *SessionService) Close(runID string) error {
	if !s.drop(runID) {
		return apperrors.NewNotFoundError(fmt.Sprintf("运行 %s 不存在", runID), nil)
	}
	s.metrics.DecGauge(utils.MetricActiveRuns)
	return nil
}

func (s *SessionService) drop(runID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[runID]
	delete(s.sessions, runID)
	s.mu.Unlock()
	if ok {
		s.locks.Forget(runID)
	}
	return ok
}

// Count 活动运行数
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// WithRun 在运行写锁下执行
func (s *SessionService) WithRun(runID string, fn func(sess *RunSession, run *engine.Run) error) error {
	sess, err := s.Get(runID)
	if err != nil {
		return err
	}
	err = s.locks.ExecuteWithRunLock(runID, func() error {
		sess.LastActive = time.Now()
		return fn(sess, sess.run)
	})
	return s.observe(runID, err)
}

// ReadRun 在运行读锁下执行，fn 不得修改运行
func (s *SessionService) ReadRun(runID string, fn func(sess *RunSession, run *engine.Run) error) error {
	sess, err := s.Get(runID)
	if err != nil {
		return err
	}
	return s.locks.ExecuteWithRunReadLock(runID, func() error {
		return fn(sess, sess.run)
	})
}

// observe 记录致命错误
func (s *SessionService) observe(runID string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsGuardGapError(err) {
		s.metrics.IncrementCounter(utils.MetricGuardGaps)
	}
	if apperrors.IsFatal(err) {
		s.logger.Error("运行因剧情错误终止", utils.Fields{"run_id": runID, "error": err.Error()})
	}
	return err
}

// Restart 在同一运行上重新开局；已终止的运行也可以重新开始
func (s *SessionService) Restart(runID string) (*engine.View, error) {
	var view *engine.View
	err := s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		v, err := run.Start()
		view = v
		return err
	})
	if err == nil {
		if stats := s.statsService(); stats != nil {
			stats.RecordRunStarted()
		}
	}
	return view, err
}

// Current 当前视图
func (s *SessionService) Current(runID string) (*engine.View, error) {
	var view *engine.View
	// Current 可能把运行标记为故障，需要写锁
	err := s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		v, err := run.Current()
		view = v
		return err
	})
	return view, err
}

// Choose 作出选择
func (s *SessionService) Choose(runID string, index int) (*engine.View, error) {
	started := time.Now()
	var view *engine.View
	err := s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		v, err := run.Choose(index)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter(utils.MetricChoicesApplied)
	s.metrics.RecordHistogram(utils.MetricChoiceLatency, time.Since(started).Microseconds())
	if stats := s.statsService(); stats != nil {
		stats.RecordChoice()
	}
	s.notify().Sfx(runID, audio.SfxClick)
	return view, nil
}

// SaveDraft 暂存点单草稿
func (s *SessionService) SaveDraft(runID string, draft models.OrderDraft) (models.OrderDraft, error) {
	var clean models.OrderDraft
	err := s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		d, err := run.SaveOrderDraft(draft)
		clean = d
		return err
	})
	return clean, err
}

// SubmitOrder 提交订单
func (s *SessionService) SubmitOrder(runID string, draft models.OrderDraft) (*engine.View, error) {
	var view *engine.View
	err := s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		v, err := run.SubmitOrder(draft)
		view = v
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCounter(utils.MetricOrdersServed)
	s.notify().Sfx(runID, audio.SfxConfirm)
	return view, nil
}

// Forecast 结局预测
func (s *SessionService) Forecast(runID string) (models.Forecast, error) {
	var fc models.Forecast
	err := s.ReadRun(runID, func(_ *RunSession, run *engine.Run) error {
		f, err := run.Forecast()
		fc = f
		return err
	})
	return fc, err
}

// History 对白历史窗口。limit 缺省或超过配置窗口时按配置窗口截断，低于 MinDisplayLimit 时按下限返回。
func (s *SessionService) History(runID string, limit int) ([]models.DialogueEntry, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	var entries []models.DialogueEntry
	err := s.ReadRun(runID, func(_ *RunSession, run *engine.Run) error {
		if err := run.Faulted(); err != nil {
			return apperrors.NewRunFaultedError("本次运行已终止，请重新开始", err)
		}
		entries = engine.DialogueWindow(run.State(), limit)
		return nil
	})
	return entries, err
}

// Review 完整路径回顾
func (s *SessionService) Review(runID string) ([]engine.ReviewStep, error) {
	var steps []engine.ReviewStep
	err := s.ReadRun(runID, func(_ *RunSession, run *engine.Run) error {
		steps = engine.Review(s.graph, run.State())
		return nil
	})
	return steps, err
}

// Playback 只读回放某一步
func (s *SessionService) Playback(runID string, step int) (engine.Frame, error) {
	var frame engine.Frame
	err := s.ReadRun(runID, func(_ *RunSession, run *engine.Run) error {
		f, err := engine.Playback(s.graph, run.State(), step)
		frame = f
		return err
	})
	return frame, err
}

// SetAudio 校验并保存音频设置块
func (s *SessionService) SetAudio(runID string, raw []byte) (audio.Settings, error) {
	settings, err := audio.ParseSettings(raw)
	if err != nil {
		return audio.Settings{}, err
	}
	normalized, err := settings.Marshal()
	if err != nil {
		return audio.Settings{}, apperrors.NewProcessingError("保存音频设置失败", err)
	}
	err = s.WithRun(runID, func(_ *RunSession, run *engine.Run) error {
		return run.SetAudioSettings(normalized)
	})
	return settings, err
}

// UnlockedEndings 某档案下活动运行已解锁的结局
func (s *SessionService) UnlockedEndings(profile string) []string {
	s.mu.RLock()
	sessions := make([]*RunSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.Profile == profile {
			sessions = append(sessions, sess)
		}
	}
	s.mu.RUnlock()

	var out []string
	for _, sess := range sessions {
		_ = s.locks.ExecuteWithRunReadLock(sess.ID, func() error {
			out = append(out, sess.run.State().UnlockedEndings...)
			return nil
		})
	}
	return out
}

func (s *SessionService) notify() audio.Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifier
}

func (s *SessionService) statsService() *StatsService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// transitionHandler 把运行变化分发给自动存档、音频与推送。在运行锁内同步调用。
func (s *SessionService) transitionHandler(sess *RunSession) engine.TransitionListener {
	return func(t engine.Transition) {
		switch t.Kind {
		case engine.TransitionStart, engine.TransitionEnter, engine.TransitionEnding, engine.TransitionDraft, engine.TransitionAudio:
			if s.autosaver != nil {
				s.autosaver.Enqueue(sess.Profile, t.State)
			}
		}

		notifier := s.notify()
		switch t.Kind {
		case engine.TransitionStart, engine.TransitionEnter, engine.TransitionLoad, engine.TransitionAudio:
			notifier.SceneEntered(sess.ID, audio.NewCue(t.To, t.Background, t.State.AudioSettings))
		case engine.TransitionEnding:
			notifier.SceneEntered(sess.ID, audio.NewCue(t.To, "dawn", t.State.AudioSettings))
			notifier.Sfx(sess.ID, audio.SfxClue)
			if stats := s.statsService(); stats != nil {
				stats.RecordEnding(t.Ending)
			}
		}

		s.mu.RLock()
		publisher := s.publisher
		s.mu.RUnlock()
		if publisher != nil {
			publisher.PublishRunEvent(RunEvent{
				Type:      string(t.Kind),
				RunID:     sess.ID,
				From:      t.From,
				To:        t.To,
				Ending:    t.Ending,
				Forecast:  t.Forecast,
				Timestamp: time.Now(),
			})
		}
	}
}
