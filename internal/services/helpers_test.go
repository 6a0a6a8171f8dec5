// internal/services/helpers_test.go
package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/audio"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/savegame"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

type fixture struct {
	graph     *story.Graph
	files     *storage.FileStorage
	manager   *savegame.Manager
	autosaver *savegame.AutoSaver
	locks     *LockManager
	sessions  *SessionService
	saves     *SaveService
}

func newFixture(t *testing.T, g *story.Graph) *fixture {
	t.Helper()
	if g == nil {
		var err error
		g, err = story.Default()
		require.NoError(t, err)
	}
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	f := &fixture{graph: g, files: files, locks: NewLockManager()}
	f.manager = savegame.NewManager(files, g)
	f.autosaver = savegame.NewAutoSaver(f.manager, 16)
	f.sessions = NewSessionService(g, f.locks, f.autosaver, 30)
	f.saves = NewSaveService(f.manager, f.sessions)

	t.Cleanup(func() {
		f.autosaver.Close()
		f.locks.Stop()
		files.Close()
	})
	return f
}

// gapGraph 入口之后的变体族没有默认场景且守卫永不成立
func gapGraph() *story.Graph {
	return &story.Graph{
		Title: "缺口",
		Start: "s00",
		Scenes: map[string]*models.Scene{
			"s00": {
				ID:      "s00",
				Type:    models.SceneNormal,
				Body:    models.Body{Title: "入口", Text: "入口"},
				Choices: []models.Choice{{Label: "前进", Target: "s01"}},
			},
			"s01A": {
				ID:      "s01A",
				Type:    models.SceneNormal,
				Body:    models.Body{Title: "甲", Text: "甲"},
				Choices: []models.Choice{{Label: "完", Target: models.EndScene}},
			},
		},
		Families: map[string]*models.VariantFamily{
			"s01": {ID: "s01", Variants: []models.Variant{{Scene: "s01A", When: models.Guard{FlagsAll: []string{"never"}}}}},
		},
		Axes:  []models.Axis{{Name: "rational", Label: "理性↔感性"}},
		Flags: map[string]string{"never": "不会置位"},
		Items: map[string]string{},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []RunEvent
	scenes []string
	sfx    []audio.SfxKind
}

func (r *recorder) PublishRunEvent(e RunEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) SceneEntered(_ string, cue audio.Cue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes = append(r.scenes, cue.SceneID)
}

func (r *recorder) Sfx(_ string, kind audio.SfxKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sfx = append(r.sfx, kind)
}

func (r *recorder) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) sounds() []audio.SfxKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audio.SfxKind(nil), r.sfx...)
}

func (r *recorder) entered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scenes...)
}
