// internal/services/save_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/engine"
	apperrors "github.com/yzy0324/neon-tape-vn/internal/errors"
	"github.com/yzy0324/neon-tape-vn/internal/models"
)

func currentPath(t *testing.T, s *SessionService, runID string) []string {
	t.Helper()
	var path []string
	require.NoError(t, s.ReadRun(runID, func(_ *RunSession, run *engine.Run) error {
		path = run.State().PathHistory
		return nil
	}))
	return path
}

func TestSaveAndLoadSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)
	playMoves(t, f.sessions, sess.ID, pick(0), serve("cipher-tonic"), pick(0))
	savedPath := currentPath(t, f.sessions, sess.ID)

	summary, err := f.saves.Save(ctx, sess.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, models.Slot1, summary.Slot)
	assert.False(t, summary.Empty)
	assert.Equal(t, "s03", summary.SceneID)
	assert.Equal(t, len(savedPath), summary.Steps)

	playMoves(t, f.sessions, sess.ID, serve("proxy-smoke"), pick(0))
	require.NotEqual(t, savedPath, currentPath(t, f.sessions, sess.ID))

	view, err := f.saves.Load(ctx, sess.ID, "slot1")
	require.NoError(t, err)
	assert.Equal(t, "s03", view.SceneID)
	assert.Equal(t, savedPath, currentPath(t, f.sessions, sess.ID), "读档整体替换状态")
}

func TestSaveRejectsBadSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)

	for _, slot := range []string{"auto", "9", ""} {
		_, err := f.saves.Save(ctx, sess.ID, slot)
		assert.True(t, apperrors.IsValidationError(err), "槽位 %q", slot)
	}
	assert.True(t, apperrors.IsValidationError(f.saves.Delete(ctx, sess.ID, "auto")))

	_, err = f.saves.Save(ctx, "missing", "1")
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestLoadFailureKeepsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)
	playMoves(t, f.sessions, sess.ID, pick(1))
	before := currentPath(t, f.sessions, sess.ID)

	_, err = f.saves.Load(ctx, sess.ID, "2")
	assert.True(t, apperrors.IsNotFoundError(err))

	require.NoError(t, f.files.PutSlot(ctx, "alice", models.Slot3, []byte(`{"schemaVersion":4,"sceneId":"s42"}`)))
	_, err = f.saves.Load(ctx, sess.ID, "3")
	assert.True(t, apperrors.IsSaveCorruptError(err))

	assert.Equal(t, before, currentPath(t, f.sessions, sess.ID), "读档失败时运行保持原样")
}

func TestExportImportAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)
	playMoves(t, f.sessions, sess.ID, pick(0))

	_, err = f.saves.Save(ctx, sess.ID, "1")
	require.NoError(t, err)
	text, err := f.saves.Export(ctx, sess.ID, "1")
	require.NoError(t, err)

	summary, err := f.saves.Import(ctx, sess.ID, "2", text)
	require.NoError(t, err)
	assert.Equal(t, models.Slot2, summary.Slot)
	assert.Equal(t, "s01", summary.SceneID)

	_, err = f.saves.Import(ctx, sess.ID, "2", "NEONTAPE1.garbage")
	assert.True(t, apperrors.IsSaveCorruptError(err))
	_, err = f.saves.Import(ctx, sess.ID, "auto", text)
	assert.True(t, apperrors.IsValidationError(err), "导入不能写自动槽")

	require.NoError(t, f.saves.Delete(ctx, sess.ID, "1"))
	summaries, err := f.saves.Summaries(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, summaries[0].Empty)
	assert.False(t, summaries[1].Empty, "导入失败不影响已有槽位")
}

func TestSaveFaultedRun(t *testing.T) {
	f := newFixture(t, gapGraph())
	sess, _, err := f.sessions.Start("alice")
	require.NoError(t, err)
	_, err = f.sessions.Choose(sess.ID, 0)
	require.Error(t, err)

	_, err = f.saves.Save(context.Background(), sess.ID, "1")
	assert.True(t, apperrors.IsRunFaultedError(err))
}
