// internal/services/story_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func TestStoryOverviewAndValidate(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewStoryService(f.graph, f.saves, f.sessions)

	overview := svc.Overview()
	assert.Equal(t, "s00", overview.Start)
	assert.Equal(t, 3, overview.Endings)
	assert.Equal(t, len(f.graph.Scenes), overview.Scenes)
	assert.NotEmpty(t, overview.Chapters)

	assert.True(t, svc.Validate().OK())
}

func TestEndingArchiveUnion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	svc := NewStoryService(f.graph, f.saves, f.sessions)

	archive, err := svc.Endings(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, archive.Unlocked)
	assert.Equal(t, 3, archive.Total)

	stored := models.NewState()
	stored.SceneID = "s00"
	stored.UnlockedEndings = []string{"B"}
	_, err = f.manager.Save(ctx, "alice", models.Slot2, stored)
	require.NoError(t, err)

	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)
	playMoves(t, f.sessions, sess.ID, routeA...)

	archive, err = svc.Endings(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, archive.Unlocked, "存档与活动运行的并集")
	unlocked := map[string]bool{}
	for _, e := range archive.Endings {
		unlocked[e.ID] = e.Unlocked
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": false}, unlocked)

	_, err = svc.Endings(ctx, "bad profile")
	assert.True(t, apperrors.IsValidationError(err))

	archive, err = svc.Endings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "default", archive.Profile)
}
