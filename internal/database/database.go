package database

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/browsertest/dashboard/internal/agentapi"
)

var ErrNotFound = errors.New("task not found")

type TrendData struct {
	Total           int           `json:"total"`
	CurrentPassRate float64       `json:"current_pass_rate"` // percent
	PassRateChange  string        `json:"pass_rate_change"`  // e.g. "+5.2%"
	AvgDuration     time.Duration `json:"avg_duration"`
	DurationChange  string        `json:"duration_change"` // e.g. "-12%"
}

type DataPoint struct {
	Date        time.Time `json:"date"`
	Count       int       `json:"count"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Cancelled   int       `json:"cancelled"`
	PassRate    float64   `json:"pass_rate"`    // percent
	AvgDuration float64   `json:"avg_duration"` // seconds
}

// Database keeps the history of finished tasks seen by the dashboard.
type Database interface {
	UpsertTask(task agentapi.TaskStatus) error
	GetTask(taskID string) (*agentapi.TaskStatus, error)
	ListTasks(limit int) ([]agentapi.TaskStatus, error)

	GetTrends(days int) (*TrendData, error)
	GetDailyMetrics(days int) ([]DataPoint, error)

	Close() error
}

// record is the slice of a task the aggregate queries need.
type record struct {
	createdAt     time.Time
	status        agentapi.TaskState
	executionTime *float64
}

type window struct {
	total, completed, terminal int
	durationSum                float64
	timed                      int
}

func (w *window) add(r record) {
	w.total++
	if r.status.IsTerminal() {
		w.terminal++
	}
	if r.status == agentapi.StateCompleted {
		w.completed++
	}
	if r.executionTime != nil && *r.executionTime > 0 {
		w.timed++
		w.durationSum += *r.executionTime
	}
}

func (w window) passRate() float64 {
	if w.terminal == 0 {
		return 0
	}
	return float64(w.completed) / float64(w.terminal) * 100
}

func (w window) avgSeconds() float64 {
	if w.timed == 0 {
		return 0
	}
	return w.durationSum / float64(w.timed)
}

// computeTrends compares the last days with the days before them.
func computeTrends(records []record, now time.Time, days int) *TrendData {
	if days <= 0 {
		days = 7
	}
	span := time.Duration(days) * 24 * time.Hour
	currentStart := now.Add(-span)
	previousStart := currentStart.Add(-span)

	var cur, prev window
	for _, r := range records {
		switch {
		case !r.createdAt.Before(currentStart) && !r.createdAt.After(now):
			cur.add(r)
		case !r.createdAt.Before(previousStart) && r.createdAt.Before(currentStart):
			prev.add(r)
		}
	}

	t := &TrendData{
		Total:           cur.total,
		CurrentPassRate: cur.passRate(),
		AvgDuration:     time.Duration(cur.avgSeconds() * float64(time.Second)),
		PassRateChange:  "0%",
		DurationChange:  "0%",
	}
	if prev.terminal > 0 {
		t.PassRateChange = signedPercent(cur.passRate() - prev.passRate())
	}
	if prev.avgSeconds() > 0 {
		t.DurationChange = signedPercent((cur.avgSeconds() - prev.avgSeconds()) / prev.avgSeconds() * 100)
	}
	return t
}

func signedPercent(v float64) string {
	if v > 0 {
		return fmt.Sprintf("+%.1f%%", v)
	}
	return fmt.Sprintf("%.1f%%", v)
}

// bucketDaily groups records into UTC days, oldest first. Days without
// records are omitted.
func bucketDaily(records []record, now time.Time, days int) []DataPoint {
	if days <= 0 {
		days = 7
	}
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	windows := map[time.Time]*window{}
	points := map[time.Time]*DataPoint{}
	for _, r := range records {
		if r.createdAt.Before(since) || r.createdAt.After(now) {
			continue
		}
		c := r.createdAt.UTC()
		day := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
		w, ok := windows[day]
		if !ok {
			w = &window{}
			windows[day] = w
			points[day] = &DataPoint{Date: day}
		}
		w.add(r)
		p := points[day]
		switch r.status {
		case agentapi.StateCompleted:
			p.Completed++
		case agentapi.StateFailed:
			p.Failed++
		case agentapi.StateCancelled:
			p.Cancelled++
		}
	}

	out := make([]DataPoint, 0, len(points))
	for day, p := range points {
		w := windows[day]
		p.Count = w.total
		p.PassRate = w.passRate()
		p.AvgDuration = w.avgSeconds()
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
