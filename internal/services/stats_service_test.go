// internal/services/stats_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/storage"
)

func TestStatsRecordAndPersist(t *testing.T) {
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	defer files.Close()

	stats := NewStatsService(files)
	stats.now = func() time.Time { return time.Date(2026, 4, 1, 23, 0, 0, 0, time.UTC) }
	stats.RecordRunStarted()
	stats.RecordChoice()
	stats.RecordChoice()
	stats.RecordEnding("B")
	stats.RecordEnding("")
	require.NoError(t, stats.Close())

	ps := stats.GetPlayStats()
	assert.Equal(t, 1, ps.RunsStarted)
	assert.Equal(t, 2, ps.ChoicesMade)
	assert.Equal(t, map[string]int{"B": 1}, ps.EndingsReached)
	assert.Equal(t, map[string]int{"2026-04-01": 1}, ps.DailyRuns)

	reopened := NewStatsService(files)
	defer reopened.Close()
	assert.Equal(t, ps.ChoicesMade, reopened.GetPlayStats().ChoicesMade, "统计从磁盘恢复")
	assert.Equal(t, 1, reopened.GetPlayStats().EndingsReached["B"])
}

func TestStatsCopyIsIsolated(t *testing.T) {
	stats := NewStatsService(nil)
	defer stats.Close()
	stats.RecordEnding("A")

	ps := stats.GetPlayStats()
	ps.EndingsReached["A"] = 99
	assert.Equal(t, 1, stats.GetPlayStats().EndingsReached["A"])
}

func TestStatsReset(t *testing.T) {
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	defer files.Close()

	stats := NewStatsService(files)
	defer stats.Close()
	stats.RecordRunStarted()
	require.NoError(t, stats.ResetStats())
	assert.Zero(t, stats.GetPlayStats().RunsStarted)
}
