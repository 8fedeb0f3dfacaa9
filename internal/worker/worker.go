// Package worker keeps the dashboard board fresh when the live-status
// socket is down, and records finished tasks in the history store.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/api"
	"github.com/browsertest/dashboard/internal/database"
	"github.com/browsertest/dashboard/internal/events"
	"github.com/browsertest/dashboard/internal/livestatus"
	"github.com/browsertest/dashboard/internal/metrics"
	"github.com/browsertest/dashboard/internal/tracker"
)

const (
	// DefaultInterval is how often the dashboard is reloaded while disconnected.
	DefaultInterval = 10 * time.Second
	// RecentLimit is the number of completed tasks each refresh asks for.
	RecentLimit = 10
)

// Refresh triggers, used as the metrics label.
const (
	TriggerPoll   = "poll"
	TriggerLive   = "live"
	TriggerManual = "manual"
)

// ConnectionState reports whether the live-status socket is open.
type ConnectionState interface {
	Connected() bool
}

type Worker struct {
	api      agentapi.Client
	board    *tracker.Board
	db       database.Database
	hub      *events.Hub
	conn     ConnectionState
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	// serializes refreshes; a live trigger during a poll waits its turn
	mu sync.Mutex
	// set while a live refresh waits for mu; later messages ride on it
	liveQueued atomic.Bool
}

func NewWorker(api agentapi.Client, board *tracker.Board, db database.Database, hub *events.Hub, conn ConnectionState, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		api:      api,
		board:    board,
		db:       db,
		hub:      hub,
		conn:     conn,
		logger:   logger.Named("worker"),
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// SetInterval overrides DefaultInterval. Must be called before Start.
func (w *Worker) SetInterval(d time.Duration) {
	w.interval = d
}

// Start loads the dashboard once, then reloads it on every tick while the
// live connection is down. It returns when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting dashboard refresh worker", zap.Duration("interval", w.interval))
	w.Refresh(ctx, TriggerManual)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping dashboard refresh worker")
			return
		case <-ticker.C:
			if w.conn != nil && w.conn.Connected() {
				continue
			}
			w.Refresh(ctx, TriggerPoll)
		}
	}
}

// Refresh loads metrics, active tasks and the most recent completed tasks
// into the board. Each part is stamped with the time its request was issued
// so a slow response cannot overwrite a newer live update.
func (w *Worker) Refresh(ctx context.Context, trigger string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshLocked(ctx, trigger)
}

// refreshLive coalesces live triggers: while one live refresh is waiting for
// the lock, further status updates are covered by it and return at once.
func (w *Worker) refreshLive(ctx context.Context) {
	if !w.liveQueued.CompareAndSwap(false, true) {
		return
	}
	w.mu.Lock()
	w.liveQueued.Store(false)
	defer w.mu.Unlock()
	w.refreshLocked(ctx, TriggerLive)
}

func (w *Worker) refreshLocked(ctx context.Context, trigger string) error {
	var firstErr error
	fail := func(what string, err error) {
		w.logger.Warn("refresh failed", zap.String("part", what), zap.String("trigger", trigger), zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	at := w.now()
	if m, err := w.api.GetMetrics(ctx); err != nil {
		fail("metrics", err)
	} else {
		w.board.ApplyMetrics(*m, at)
	}

	at = w.now()
	if active, err := w.api.GetActiveTasks(ctx); err != nil {
		fail("active", err)
	} else {
		w.board.ApplyActive(active, at)
	}

	at = w.now()
	if recent, err := w.api.GetCompletedTasks(ctx, RecentLimit); err != nil {
		fail("recent", err)
	} else {
		w.board.ApplyRecent(recent, at)
		w.record(recent)
	}

	outcome := "success"
	if firstErr != nil {
		outcome = "error"
		if w.hub != nil && trigger != TriggerPoll {
			w.hub.Toast(events.LevelError, api.Notice(firstErr))
		}
	}
	metrics.DashboardRefreshTotal.WithLabelValues(trigger, outcome).Inc()

	if w.hub != nil {
		w.hub.Broadcast(events.New(events.TypeRefreshed, w.board.Snapshot()))
	}
	return firstErr
}

func (w *Worker) record(tasks []agentapi.TaskStatus) {
	if w.db == nil {
		return
	}
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			continue
		}
		if err := w.db.UpsertTask(t); err != nil {
			w.logger.Warn("failed to store task history", zap.String("task_id", t.TaskID), zap.Error(err))
		}
	}
}

// HandleMessage is subscribed to the live-status connection. Every message is
// relayed to the hub; a status update with a queue snapshot also updates the
// board counters and triggers an immediate refresh.
//
// The backend stamps messages with its own naive local clock, so the board
// write uses the receive time. msg.Timestamp is kept for display only.
func (w *Worker) HandleMessage(ctx context.Context, msg livestatus.Message) {
	if w.hub != nil {
		w.hub.Broadcast(events.New(events.TypeLiveStatus, msg))
	}
	if msg.Type != livestatus.TypeStatusUpdate {
		return
	}

	su, err := msg.StatusUpdate()
	if err != nil {
		w.logger.Warn("dropping status update", zap.Error(err))
		return
	}
	if su.QueueStatus == nil {
		return
	}

	q := su.QueueStatus
	w.board.ApplyCounts(tracker.Counts{
		Active:    q.ActiveTasks,
		Pending:   q.PendingTasks,
		Completed: q.CompletedTasks,
		Total:     q.TotalTasks,
	}, w.now())

	w.refreshLive(ctx)
}

// HandleStateChange is registered with the live-status connection.
func (w *Worker) HandleStateChange(connected bool) {
	w.board.SetConnected(connected)
	if w.hub == nil {
		return
	}
	w.hub.Broadcast(events.New(events.TypeConnection, map[string]bool{"connected": connected}))
}
