// internal/services/stats_service.go
package services

import (
	"maps"
	"sync"
	"time"

	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

const (
	statsDir  = "stats"
	statsFile = "play_stats.json"
)

// PlayStats 跨运行的游玩统计
type PlayStats struct {
	RunsStarted    int            `json:"runs_started"`
	ChoicesMade    int            `json:"choices_made"`
	EndingsReached map[string]int `json:"endings_reached"`
	DailyRuns      map[string]int `json:"daily_runs"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// StatsService 提供游玩统计功能，批量落盘
type StatsService struct {
	files       *storage.FileStorage
	mutex       sync.Mutex
	cachedStats *PlayStats

	// 批量保存控制
	isDirty      bool
	lastSaveTime time.Time
	saveInterval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewStatsService 创建统计服务实例
func NewStatsService(files *storage.FileStorage) *StatsService {
	service := &StatsService{
		files:        files,
		saveInterval: 30 * time.Second,
		stop:         make(chan struct{}),
		now:          time.Now,
	}
	service.mutex.Lock()
	service.initStatsUnlocked()
	service.mutex.Unlock()

	service.startPeriodicSave()
	return service
}

func newPlayStats(now time.Time) *PlayStats {
	return &PlayStats{
		EndingsReached: make(map[string]int),
		DailyRuns:      make(map[string]int),
		LastUpdated:    now,
	}
}

// initStatsUnlocked 初始化统计数据（无锁版本）
func (s *StatsService) initStatsUnlocked() {
	var loaded PlayStats
	if s.files != nil {
		if err := s.files.LoadJSONFile(statsDir, statsFile, &loaded); err == nil {
			if loaded.EndingsReached == nil {
				loaded.EndingsReached = make(map[string]int)
			}
			if loaded.DailyRuns == nil {
				loaded.DailyRuns = make(map[string]int)
			}
			s.cachedStats = &loaded
			return
		}
	}
	s.cachedStats = newPlayStats(s.now())
}

// GetPlayStats 获取统计副本
func (s *StatsService) GetPlayStats() *PlayStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return &PlayStats{
		RunsStarted:    s.cachedStats.RunsStarted,
		ChoicesMade:    s.cachedStats.ChoicesMade,
		EndingsReached: copyIntMap(s.cachedStats.EndingsReached),
		DailyRuns:      copyIntMap(s.cachedStats.DailyRuns),
		LastUpdated:    s.cachedStats.LastUpdated,
	}
}

// 简化的映射复制
func copyIntMap(original map[string]int) map[string]int {
	out := make(map[string]int, len(original))
	maps.Copy(out, original)
	return out
}

// RecordRunStarted 记录一次开局
func (s *StatsService) RecordRunStarted() {
	s.update(func(st *PlayStats, now time.Time) {
		st.RunsStarted++
		st.DailyRuns[now.Format("2006-01-02")]++
	})
}

// RecordChoice 记录一次选择
func (s *StatsService) RecordChoice() {
	s.update(func(st *PlayStats, _ time.Time) {
		st.ChoicesMade++
	})
}

// RecordEnding 记录到达的结局
func (s *StatsService) RecordEnding(endingID string) {
	if endingID == "" {
		return
	}
	s.update(func(st *PlayStats, _ time.Time) {
		st.EndingsReached[endingID]++
	})
}

func (s *StatsService) update(fn func(st *PlayStats, now time.Time)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	fn(s.cachedStats, now)
	s.cachedStats.LastUpdated = now
	s.isDirty = true

	if now.Sub(s.lastSaveTime) > s.saveInterval {
		if err := s.saveStatsImmediate(); err != nil {
			utils.GetLogger().Warn("保存统计数据失败", utils.Fields{"error": err.Error()})
		}
	}
}

// 立即保存（调用方持有锁）
func (s *StatsService) saveStatsImmediate() error {
	if !s.isDirty || s.files == nil {
		return nil
	}
	if err := s.files.SaveJSONFile(statsDir, statsFile, s.cachedStats); err != nil {
		return err
	}
	s.isDirty = false
	s.lastSaveTime = s.now()
	return nil
}

// 定时保存机制
func (s *StatsService) startPeriodicSave() {
	go func() {
		ticker := time.NewTicker(s.saveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.mutex.Lock()
				if err := s.saveStatsImmediate(); err != nil {
					utils.GetLogger().Warn("定时保存统计数据失败", utils.Fields{"error": err.Error()})
				}
				s.mutex.Unlock()
			}
		}
	}()
}

// ResetStats 重置统计数据
func (s *StatsService) ResetStats() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cachedStats = newPlayStats(s.now())
	s.isDirty = true
	return s.saveStatsImmediate()
}

// Close 停止定时保存并写出未保存的数据
func (s *StatsService) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saveStatsImmediate()
}
