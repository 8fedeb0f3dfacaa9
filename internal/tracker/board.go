// Package tracker holds the latest known dashboard state.
//
// Polled responses and live-status messages both write into a Board. Every
// write carries the time it was observed: for a poll, when the request was
// issued; for a socket message, its timestamp. A write older than what the
// Board already holds for the same item is discarded.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// RecentLimit is how many terminal tasks the board keeps for display.
const RecentLimit = 10

// Counts are the queue counters a live status update carries.
type Counts struct {
	Active    int
	Pending   int
	Completed int
	Total     int
}

type taskEntry struct {
	task agentapi.TaskStatus
	at   time.Time
}

type Board struct {
	mu          sync.RWMutex
	tasks       map[string]taskEntry
	metrics     agentapi.Metrics
	hasMetrics  bool
	countsAt    time.Time
	ratesAt     time.Time
	lastUpdated time.Time
	connected   bool
}

func NewBoard() *Board {
	return &Board{tasks: make(map[string]taskEntry)}
}

// Snapshot is a consistent copy of the board for rendering.
type Snapshot struct {
	Metrics     *agentapi.Metrics     `json:"metrics"`
	Active      []agentapi.TaskStatus `json:"active_tasks"`
	Recent      []agentapi.TaskStatus `json:"recent_tasks"`
	LastUpdated time.Time             `json:"last_updated"`
	Connected   bool                  `json:"connected"`
}

// ApplyTask stores task unless the board holds a newer observation of it.
func (b *Board) ApplyTask(task agentapi.TaskStatus, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok := b.applyTaskLocked(task, at)
	b.pruneLocked()
	return ok
}

func (b *Board) applyTaskLocked(task agentapi.TaskStatus, at time.Time) bool {
	if cur, ok := b.tasks[task.TaskID]; ok && at.Before(cur.at) {
		return false
	}
	b.tasks[task.TaskID] = taskEntry{task: task, at: at}
	b.touchLocked(at)
	return true
}

// ApplyActive records a full active-task listing observed at at. Tasks the
// board still thinks are active but that are missing from the listing are
// dropped when the listing is newer than what the board knew of them.
func (b *Board) ApplyActive(tasks []agentapi.TaskStatus, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		seen[t.TaskID] = true
		b.applyTaskLocked(t, at)
	}
	for id, e := range b.tasks {
		if !seen[id] && !e.task.Status.IsTerminal() && e.at.Before(at) {
			delete(b.tasks, id)
		}
	}
	b.touchLocked(at)
}

// ApplyRecent records a listing of finished tasks observed at at.
func (b *Board) ApplyRecent(tasks []agentapi.TaskStatus, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tasks {
		b.applyTaskLocked(t, at)
	}
	b.pruneLocked()
	b.touchLocked(at)
}

// ApplyMetrics replaces the metrics unless either part is newer on the board.
// Counters and rates are tracked separately because live updates only carry counters.
func (b *Board) ApplyMetrics(m agentapi.Metrics, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	applied := false
	if !at.Before(b.countsAt) {
		b.metrics.ActiveTasks = m.ActiveTasks
		b.metrics.PendingTasks = m.PendingTasks
		b.metrics.CompletedTasks = m.CompletedTasks
		b.metrics.TotalTasks = m.TotalTasks
		b.countsAt = at
		applied = true
	}
	if !at.Before(b.ratesAt) {
		b.metrics.SuccessRate = m.SuccessRate
		b.metrics.AverageExecutionTime = m.AverageExecutionTime
		b.ratesAt = at
		applied = true
	}
	if applied {
		b.hasMetrics = true
		b.touchLocked(at)
	}
	return applied
}

// ApplyCounts updates only the queue counters.
func (b *Board) ApplyCounts(c Counts, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if at.Before(b.countsAt) {
		return false
	}
	b.metrics.ActiveTasks = c.Active
	b.metrics.PendingTasks = c.Pending
	b.metrics.CompletedTasks = c.Completed
	b.metrics.TotalTasks = c.Total
	b.countsAt = at
	b.hasMetrics = true
	b.touchLocked(at)
	return true
}

func (b *Board) SetConnected(connected bool) {
	b.mu.Lock()
	b.connected = connected
	b.mu.Unlock()
}

func (b *Board) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Task returns the board's latest view of one task.
func (b *Board) Task(id string) (agentapi.TaskStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.tasks[id]
	return e.task, ok
}

func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Snapshot{LastUpdated: b.lastUpdated, Connected: b.connected}
	if b.hasMetrics {
		m := b.metrics
		s.Metrics = &m
	}
	for _, e := range b.tasks {
		if e.task.Status.IsTerminal() {
			s.Recent = append(s.Recent, e.task)
		} else {
			s.Active = append(s.Active, e.task)
		}
	}
	sort.Slice(s.Active, func(i, j int) bool {
		return s.Active[i].CreatedAt.After(s.Active[j].CreatedAt.Time)
	})
	sortNewestFirst(s.Recent)
	if len(s.Recent) > RecentLimit {
		s.Recent = s.Recent[:RecentLimit]
	}
	return s
}

func (b *Board) touchLocked(at time.Time) {
	if at.After(b.lastUpdated) {
		b.lastUpdated = at
	}
}

// pruneLocked keeps only the RecentLimit newest terminal tasks.
func (b *Board) pruneLocked() {
	var terminal []agentapi.TaskStatus
	for _, e := range b.tasks {
		if e.task.Status.IsTerminal() {
			terminal = append(terminal, e.task)
		}
	}
	if len(terminal) <= RecentLimit {
		return
	}
	sortNewestFirst(terminal)
	for _, t := range terminal[RecentLimit:] {
		delete(b.tasks, t.TaskID)
	}
}

func sortNewestFirst(tasks []agentapi.TaskStatus) {
	sort.Slice(tasks, func(i, j int) bool {
		ui, uj := tasks[i].UpdatedAt(), tasks[j].UpdatedAt()
		if ui.Equal(uj.Time) {
			return tasks[i].TaskID > tasks[j].TaskID
		}
		return ui.After(uj.Time)
	})
}
