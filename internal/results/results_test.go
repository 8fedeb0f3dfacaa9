package results

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsertest/dashboard/internal/agentapi"
)

func mkTask(id string, state agentapi.TaskState, msg string) agentapi.TaskStatus {
	t := agentapi.TaskStatus{TaskID: id, Status: state}
	if msg != "" {
		t.Result = map[string]any{"message": msg}
	}
	return t
}

func fptr(v float64) *float64 { return &v }

func TestFilter(t *testing.T) {
	tasks := []agentapi.TaskStatus{
		mkTask("task-001", agentapi.StateCompleted, "Login works"),
		mkTask("task-002", agentapi.StateFailed, "Timeout on checkout"),
		mkTask("TASK-abc", agentapi.StateCompleted, ""),
	}

	assert.Len(t, Apply(tasks, Filter{Status: StatusAll}), 3)
	assert.Len(t, Apply(tasks, Filter{}), 3)
	assert.Len(t, Apply(tasks, Filter{Status: "completed"}), 2)

	got := Apply(tasks, Filter{Status: StatusAll, Query: "CHECKOUT"})
	require.Len(t, got, 1)
	assert.Equal(t, "task-002", got[0].TaskID)

	got = Apply(tasks, Filter{Query: "abc"})
	require.Len(t, got, 1)
	assert.Equal(t, "TASK-abc", got[0].TaskID)

	assert.Empty(t, Apply(tasks, Filter{Status: "failed", Query: "login"}))
}

func TestPaginate(t *testing.T) {
	var tasks []agentapi.TaskStatus
	for i := 0; i < 23; i++ {
		tasks = append(tasks, mkTask(fmt.Sprintf("t%02d", i), agentapi.StateCompleted, ""))
	}

	p := Paginate(tasks, 0, 10)
	assert.Len(t, p.Items, 10)
	assert.Equal(t, 3, p.Pages)
	assert.False(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.First())
	assert.Equal(t, 10, p.Last())

	p = Paginate(tasks, 2, 10)
	assert.Len(t, p.Items, 3)
	assert.Equal(t, "t20", p.Items[0].TaskID)
	assert.False(t, p.HasNext())
	assert.Equal(t, 21, p.First())
	assert.Equal(t, 23, p.Last())

	p = Paginate(tasks, 99, 25)
	assert.Equal(t, 0, p.Index)
	assert.Len(t, p.Items, 23)

	p = Paginate(tasks, 0, 7)
	assert.Equal(t, DefaultPageSize, p.Size)

	p = Paginate(nil, 3, 5)
	assert.Equal(t, 0, p.Index)
	assert.Empty(t, p.Items)
	assert.Equal(t, 0, p.First())
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery(url.Values{})
	assert.Equal(t, StatusAll, q.Status)
	assert.Equal(t, 0, q.Page)
	assert.Equal(t, DefaultPageSize, q.Size)

	q = ParseQuery(url.Values{"status": {"failed"}, "q": {"login"}, "page": {"2"}, "size": {"25"}})
	assert.Equal(t, "failed", q.Status)
	assert.Equal(t, "login", q.Query)
	assert.Equal(t, 2, q.Page)
	assert.Equal(t, 25, q.Size)

	q = ParseQuery(url.Values{"page": {"-1"}, "size": {"1000"}})
	assert.Equal(t, 0, q.Page)
	assert.Equal(t, DefaultPageSize, q.Size)

	v := Query{Filter: Filter{Status: "failed", Query: "x"}, Size: 5}.Values(3)
	assert.Equal(t, "page=3&q=x&size=5&status=failed", v.Encode())
	assert.Equal(t, "page=0&size=10", Query{Filter: Filter{Status: StatusAll}, Size: 10}.Values(0).Encode())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		desc string
		want Kind
	}{
		{"Cross-browser test: home", KindCrossBrowser},
		{"Responsive design test for https://x", KindResponsive},
		{"check mobile menu", KindResponsive},
		{"Performance test for https://x", KindPerformance},
		{"Test form functionality on https://x", KindForm},
		{"Test website functionality", KindWeb},
	}
	for _, tt := range tests {
		task := agentapi.TaskStatus{TaskID: "id", Result: map[string]any{"task_description": tt.desc}}
		assert.Equal(t, tt.want, Classify(task), tt.desc)
	}

	assert.Equal(t, KindPerformance, Classify(agentapi.TaskStatus{TaskID: "speed-run-1"}))
	assert.Equal(t, KindWeb, Classify(agentapi.TaskStatus{TaskID: "3f2a"}))
}

func TestSummarize(t *testing.T) {
	tasks := []agentapi.TaskStatus{
		{TaskID: "a", Status: agentapi.StateCompleted, ExecutionTime: fptr(10)},
		{TaskID: "b", Status: agentapi.StateCompleted, ExecutionTime: fptr(20)},
		{TaskID: "c", Status: agentapi.StateFailed, ExecutionTime: fptr(0)},
		{TaskID: "d", Status: agentapi.StateCancelled},
		{TaskID: "e", Status: agentapi.StateRunning},
	}
	s := Summarize(tasks)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.ByState[agentapi.StateCompleted])
	assert.Equal(t, 1, s.ByState[agentapi.StateRunning])
	assert.InDelta(t, 50.0, s.SuccessRate, 0.001)
	assert.InDelta(t, 15.0, s.AvgExecutionTime, 0.001)

	empty := Summarize(nil)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.AvgExecutionTime)
}

func TestDecodeDetail_CrossBrowser(t *testing.T) {
	task := agentapi.TaskStatus{TaskID: "x", Status: agentapi.StateCompleted, Result: map[string]any{
		"message": "done",
		"cross_browser_results": map[string]any{
			"firefox":  map[string]any{"status": "error", "error": "crash", "timestamp": "2024-05-01T10:00:00"},
			"chromium": map[string]any{"status": "success", "execution_time": 12.5},
		},
		"summary": map[string]any{
			"total_browsers_tested": 2,
			"successful_tests":      1,
			"success_rate":          50.0,
			"browsers_tested":       []any{"chromium", "firefox"},
			"failed_browsers":       []any{"firefox"},
		},
		"actions_performed": []any{"open page", "click login"},
	}}

	d := DecodeDetail(task)
	assert.Equal(t, "done", d.Message)
	assert.Equal(t, []string{"open page", "click login"}, d.Actions)
	require.NotNil(t, d.CrossBrowser)
	require.Len(t, d.CrossBrowser.Results, 2)
	assert.Equal(t, "chromium", d.CrossBrowser.Results[0].Browser)
	assert.Equal(t, 12.5, *d.CrossBrowser.Results[0].ExecutionTime)
	assert.Equal(t, "crash", d.CrossBrowser.Results[1].Error)
	require.NotNil(t, d.CrossBrowser.Summary)
	assert.Equal(t, []string{"firefox"}, d.CrossBrowser.Summary.FailedBrowsers)
	assert.Nil(t, d.Responsive)
	assert.Nil(t, d.Performance)
	assert.Contains(t, d.Raw, "cross_browser_results")
}

func TestDecodeDetail_ResponsiveAndPerformance(t *testing.T) {
	responsive := DecodeDetail(agentapi.TaskStatus{Result: map[string]any{
		"status": "success",
		"viewports_tested": []any{
			map[string]any{"width": 375, "height": 667, "name": "Mobile"},
		},
	}})
	require.NotNil(t, responsive.Responsive)
	assert.Equal(t, "success", responsive.Responsive.Status)
	assert.Equal(t, []agentapi.Viewport{{Width: 375, Height: 667, Name: "Mobile"}}, responsive.Responsive.Viewports)

	perf := DecodeDetail(agentapi.TaskStatus{Result: map[string]any{
		"url":                 "https://example.com",
		"test_execution_time": 3.5,
		"performance_metrics": map[string]any{"page_load_time": 1.2, "dom_ready_time": 0.8},
	}})
	require.NotNil(t, perf.Performance)
	assert.Equal(t, "https://example.com", perf.Performance.URL)
	assert.Equal(t, 1.2, *perf.Performance.PageLoadTime)
	assert.Equal(t, 0.8, *perf.Performance.DOMReadyTime)
	assert.Equal(t, 3.5, *perf.Performance.TestExecutionTime)
}

func TestDecodeDetail_EmptyAndOddShapes(t *testing.T) {
	assert.Equal(t, Detail{}, DecodeDetail(agentapi.TaskStatus{}))

	d := DecodeDetail(agentapi.TaskStatus{Result: map[string]any{
		"message":           "still shown",
		"actions_performed": "not a list",
	}})
	assert.Equal(t, "still shown", d.Message)
	assert.Nil(t, d.Actions)
	assert.NotEmpty(t, d.Raw)
}
