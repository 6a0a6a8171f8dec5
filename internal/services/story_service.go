// internal/services/story_service.go
package services

import (
	"context"

	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
	"github.com/yzy0324/neon-tape-vn/internal/validate"
)

// EndingEntry 结局档案条目
type EndingEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Hint     string `json:"hint"`
	Unlocked bool   `json:"unlocked"`
}

// EndingArchive 某档案的结局收集情况
type EndingArchive struct {
	Profile  string        `json:"profile"`
	Endings  []EndingEntry `json:"endings"`
	Unlocked int           `json:"unlocked"`
	Total    int           `json:"total"`
}

// StoryOverview 剧情图概况
type StoryOverview struct {
	Title    string          `json:"title"`
	Start    string          `json:"start"`
	Scenes   int             `json:"scenes"`
	Chapters []story.Chapter `json:"chapters"`
	Endings  int             `json:"endings"`
}

// StoryService 只读的剧情信息与结局档案
type StoryService struct {
	graph    *story.Graph
	saves    *SaveService
	sessions *SessionService
}

// NewStoryService 创建剧情服务
func NewStoryService(graph *story.Graph, saves *SaveService, sessions *SessionService) *StoryService {
	return &StoryService{graph: graph, saves: saves, sessions: sessions}
}

// Overview 剧情概况
func (s *StoryService) Overview() StoryOverview {
	return StoryOverview{
		Title:    s.graph.Title,
		Start:    s.graph.Start,
		Scenes:   len(s.graph.Scenes),
		Chapters: s.graph.Chapters,
		Endings:  len(s.graph.Endings),
	}
}

// Validate 对当前加载的剧情做离线校验
func (s *StoryService) Validate() *validate.Report {
	return validate.Story(s.graph)
}

// Endings 结局档案：存档槽与活动运行中已解锁结局的并集
func (s *StoryService) Endings(ctx context.Context, profile string) (*EndingArchive, error) {
	if profile == "" {
		profile = storage.DefaultProfile
	}
	if err := storage.ValidateProfile(profile); err != nil {
		return nil, err
	}

	unlocked := make(map[string]bool)
	if s.saves != nil {
		ids, err := s.saves.Manager().UnlockedEndings(ctx, profile)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			unlocked[id] = true
		}
	}
	if s.sessions != nil {
		for _, id := range s.sessions.UnlockedEndings(profile) {
			unlocked[id] = true
		}
	}

	archive := &EndingArchive{Profile: profile, Endings: make([]EndingEntry, 0, len(s.graph.Endings)), Total: len(s.graph.Endings)}
	for _, e := range s.graph.Endings {
		entry := EndingEntry{ID: e.ID, Name: e.Name, Hint: e.Hint, Unlocked: unlocked[e.ID]}
		if entry.Unlocked {
			archive.Unlocked++
		}
		archive.Endings = append(archive.Endings, entry)
	}
	return archive, nil
}
