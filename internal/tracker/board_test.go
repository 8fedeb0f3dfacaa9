package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsertest/dashboard/internal/agentapi"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func task(id string, state agentapi.TaskState, created time.Time) agentapi.TaskStatus {
	return agentapi.TaskStatus{TaskID: id, Status: state, CreatedAt: agentapi.NewTime(created)}
}

func TestBoard_StaleTaskWriteIsDiscarded(t *testing.T) {
	b := NewBoard()

	require.True(t, b.ApplyTask(task("a", agentapi.StateCompleted, t0), t0.Add(10*time.Second)))
	// a poll issued before the socket update arrives late
	assert.False(t, b.ApplyTask(task("a", agentapi.StateRunning, t0), t0.Add(5*time.Second)))

	got, ok := b.Task("a")
	require.True(t, ok)
	assert.Equal(t, agentapi.StateCompleted, got.Status)

	assert.True(t, b.ApplyTask(task("a", agentapi.StateFailed, t0), t0.Add(10*time.Second)), "equal timestamps win")
}

func TestBoard_MetricsAndCounts(t *testing.T) {
	b := NewBoard()
	assert.Nil(t, b.Snapshot().Metrics)

	b.ApplyMetrics(agentapi.Metrics{ActiveTasks: 1, TotalTasks: 5, SuccessRate: 80, AverageExecutionTime: 12}, t0)
	require.True(t, b.ApplyCounts(Counts{Active: 3, Pending: 2, Completed: 4, Total: 9}, t0.Add(time.Second)))

	m := b.Snapshot().Metrics
	require.NotNil(t, m)
	assert.Equal(t, 3, m.ActiveTasks)
	assert.Equal(t, 9, m.TotalTasks)
	assert.Equal(t, 80.0, m.SuccessRate, "live counters keep the polled rates")

	// a slower poll issued before the live update keeps its rates but not its counters
	assert.True(t, b.ApplyMetrics(agentapi.Metrics{ActiveTasks: 0, TotalTasks: 5, SuccessRate: 81}, t0.Add(500*time.Millisecond)))
	m = b.Snapshot().Metrics
	assert.Equal(t, 3, m.ActiveTasks)
	assert.Equal(t, 81.0, m.SuccessRate)

	assert.False(t, b.ApplyCounts(Counts{Active: 100}, t0))
	assert.Equal(t, t0.Add(time.Second), b.Snapshot().LastUpdated)
}

func TestBoard_ApplyActiveDropsFinishedTasks(t *testing.T) {
	b := NewBoard()
	b.ApplyActive([]agentapi.TaskStatus{
		task("a", agentapi.StateRunning, t0),
		task("b", agentapi.StatePending, t0.Add(time.Second)),
	}, t0)

	snap := b.Snapshot()
	require.Len(t, snap.Active, 2)
	assert.Equal(t, "b", snap.Active[0].TaskID, "newest first")

	b.ApplyActive([]agentapi.TaskStatus{task("b", agentapi.StateRunning, t0.Add(time.Second))}, t0.Add(time.Minute))
	snap = b.Snapshot()
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "b", snap.Active[0].TaskID)
}

func TestBoard_ApplyActiveKeepsNewerLiveTask(t *testing.T) {
	b := NewBoard()
	b.ApplyTask(task("live", agentapi.StatePending, t0), t0.Add(time.Minute))

	// listing issued before the task appeared
	b.ApplyActive(nil, t0.Add(30*time.Second))
	_, ok := b.Task("live")
	assert.True(t, ok)
}

func TestBoard_RecentIsBounded(t *testing.T) {
	b := NewBoard()
	var tasks []agentapi.TaskStatus
	for i := 0; i < 15; i++ {
		created := t0.Add(time.Duration(i) * time.Minute)
		tk := task(fmt.Sprintf("t%02d", i), agentapi.StateCompleted, created)
		done := agentapi.NewTime(created.Add(time.Second))
		tk.CompletedAt = &done
		tasks = append(tasks, tk)
	}
	b.ApplyRecent(tasks, t0)

	snap := b.Snapshot()
	require.Len(t, snap.Recent, RecentLimit)
	assert.Equal(t, "t14", snap.Recent[0].TaskID)
	assert.Equal(t, "t05", snap.Recent[RecentLimit-1].TaskID)
	assert.Empty(t, snap.Active)
}

func TestBoard_Connected(t *testing.T) {
	b := NewBoard()
	assert.False(t, b.Connected())
	b.SetConnected(true)
	assert.True(t, b.Connected())
	assert.True(t, b.Snapshot().Connected)
}
