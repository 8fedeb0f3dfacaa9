package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsertest/dashboard/internal/agentapi"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func fptr(v float64) *float64 { return &v }

func historyTask(id string, state agentapi.TaskState, created time.Time, secs float64) agentapi.TaskStatus {
	return agentapi.TaskStatus{
		TaskID:        id,
		Status:        state,
		CreatedAt:     agentapi.NewTime(created),
		ExecutionTime: fptr(secs),
		Result:        map[string]any{"message": "done"},
	}
}

func newMemory() *MemoryDatabase {
	db := NewMemoryDatabase()
	db.now = func() time.Time { return now }
	return db
}

func TestMemoryDatabase_UpsertAndGet(t *testing.T) {
	db := newMemory()

	require.NoError(t, db.UpsertTask(historyTask("a", agentapi.StateRunning, now, 0)))
	require.NoError(t, db.UpsertTask(historyTask("a", agentapi.StateCompleted, now, 12)))

	got, err := db.GetTask("a")
	require.NoError(t, err)
	assert.Equal(t, agentapi.StateCompleted, got.Status)

	_, err = db.GetTask("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, db.Close())
}

func TestMemoryDatabase_ListTasks(t *testing.T) {
	db := newMemory()
	for i := 0; i < 5; i++ {
		require.NoError(t, db.UpsertTask(historyTask(fmt.Sprintf("t%d", i), agentapi.StateCompleted, now.Add(time.Duration(i)*time.Minute), 1)))
	}

	all, err := db.ListTasks(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "t4", all[0].TaskID)

	two, err := db.ListTasks(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMemoryDatabase_Trends(t *testing.T) {
	db := newMemory()
	day := 24 * time.Hour

	// current week: 3 completed of 4 terminal, avg 20s
	db.UpsertTask(historyTask("c1", agentapi.StateCompleted, now.Add(-1*day), 10))
	db.UpsertTask(historyTask("c2", agentapi.StateCompleted, now.Add(-2*day), 20))
	db.UpsertTask(historyTask("c3", agentapi.StateCompleted, now.Add(-3*day), 30))
	db.UpsertTask(historyTask("c4", agentapi.StateFailed, now.Add(-4*day), 0))
	// previous week: 1 completed of 2 terminal, avg 40s
	db.UpsertTask(historyTask("p1", agentapi.StateCompleted, now.Add(-8*day), 40))
	db.UpsertTask(historyTask("p2", agentapi.StateFailed, now.Add(-9*day), 0))
	// outside both windows
	db.UpsertTask(historyTask("old", agentapi.StateFailed, now.Add(-30*day), 0))

	trends, err := db.GetTrends(7)
	require.NoError(t, err)
	assert.Equal(t, 4, trends.Total)
	assert.InDelta(t, 75.0, trends.CurrentPassRate, 0.001)
	assert.Equal(t, "+25.0%", trends.PassRateChange)
	assert.Equal(t, 20*time.Second, trends.AvgDuration)
	assert.Equal(t, "-50.0%", trends.DurationChange)
}

func TestMemoryDatabase_TrendsWithoutHistory(t *testing.T) {
	trends, err := newMemory().GetTrends(0)
	require.NoError(t, err)
	assert.Zero(t, trends.Total)
	assert.Equal(t, "0%", trends.PassRateChange)
	assert.Equal(t, "0%", trends.DurationChange)
}

func TestMemoryDatabase_DailyMetrics(t *testing.T) {
	db := newMemory()
	yesterday := time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC)
	db.UpsertTask(historyTask("a", agentapi.StateCompleted, yesterday, 10))
	db.UpsertTask(historyTask("b", agentapi.StateFailed, yesterday.Add(time.Hour), 30))
	db.UpsertTask(historyTask("c", agentapi.StateCancelled, now.Add(-time.Hour), 0))
	db.UpsertTask(historyTask("too-old", agentapi.StateCompleted, now.AddDate(0, 0, -20), 5))

	points, err := db.GetDailyMetrics(7)
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), points[0].Date)
	assert.Equal(t, 2, points[0].Count)
	assert.Equal(t, 1, points[0].Completed)
	assert.Equal(t, 1, points[0].Failed)
	assert.InDelta(t, 50.0, points[0].PassRate, 0.001)
	assert.InDelta(t, 20.0, points[0].AvgDuration, 0.001)

	assert.Equal(t, 1, points[1].Cancelled)
	assert.Zero(t, points[1].PassRate)
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", rebind(DialectPostgres, q))
	assert.Equal(t, q, rebind(DialectMySQL, q))
}

func TestUpsertQuery(t *testing.T) {
	pg := upsertQuery(DialectPostgres)
	assert.Contains(t, pg, "$9")
	assert.Contains(t, pg, "ON CONFLICT (task_id)")
	assert.NotContains(t, pg, "?")

	my := upsertQuery(DialectMySQL)
	assert.Contains(t, my, "ON DUPLICATE KEY UPDATE")
	assert.Equal(t, 9, strings.Count(my, "?"))
}

func TestParseDatabaseURL(t *testing.T) {
	dialect, dsn, err := parseDatabaseURL("postgres://app:secret@db:5432/history?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, dialect)
	assert.Equal(t, "postgres://app:secret@db:5432/history?sslmode=disable", dsn)

	dialect, dsn, err = parseDatabaseURL("mysql://app:secret@db/history")
	require.NoError(t, err)
	assert.Equal(t, DialectMySQL, dialect)
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/history?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")

	_, _, err = parseDatabaseURL("sqlite:///tmp/x.db")
	assert.Error(t, err)
}

func TestOpen_EmptyURLUsesMemory(t *testing.T) {
	db, err := Open("")
	require.NoError(t, err)
	_, ok := db.(*MemoryDatabase)
	assert.True(t, ok)
}

func TestSchema(t *testing.T) {
	assert.Len(t, schema(DialectPostgres), 2)
	require.Len(t, schema(DialectMySQL), 1)
	assert.Contains(t, schema(DialectMySQL)[0], "DATETIME(6)")
}
