package database

import (
	"sort"
	"sync"
	"time"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// MemoryDatabase is used when DATABASE_URL is not set. History is lost on restart.
type MemoryDatabase struct {
	mu    sync.RWMutex
	tasks map[string]agentapi.TaskStatus
	now   func() time.Time
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		tasks: make(map[string]agentapi.TaskStatus),
		now:   time.Now,
	}
}

func (db *MemoryDatabase) UpsertTask(task agentapi.TaskStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tasks[task.TaskID] = task
	return nil
}

func (db *MemoryDatabase) GetTask(taskID string) (*agentapi.TaskStatus, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

// ListTasks returns the newest tasks first; limit <= 0 means all.
func (db *MemoryDatabase) ListTasks(limit int) ([]agentapi.TaskStatus, error) {
	db.mu.RLock()
	out := make([]agentapi.TaskStatus, 0, len(db.tasks))
	for _, t := range db.tasks {
		out = append(out, t)
	}
	db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].TaskID > out[j].TaskID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (db *MemoryDatabase) records() []record {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]record, 0, len(db.tasks))
	for _, t := range db.tasks {
		out = append(out, record{createdAt: t.CreatedAt.Time, status: t.Status, executionTime: t.ExecutionTime})
	}
	return out
}

func (db *MemoryDatabase) GetTrends(days int) (*TrendData, error) {
	return computeTrends(db.records(), db.now(), days), nil
}

func (db *MemoryDatabase) GetDailyMetrics(days int) ([]DataPoint, error) {
	return bucketDaily(db.records(), db.now(), days), nil
}

func (db *MemoryDatabase) Close() error {
	return nil
}
