package agentapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskState is the lifecycle state of a backend task.
type TaskState string

const (
	StateSubmitted TaskState = "submitted"
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateCancelled TaskState = "cancelled"
)

// TaskStates lists every valid TaskState in display order.
var TaskStates = []TaskState{StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled}

func (s TaskState) Valid() bool {
	switch s {
	case StateSubmitted, StatePending, StateRunning, StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// IsTerminal is true once the backend will no longer change the task.
func (s TaskState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s *TaskState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	st := TaskState(strings.ToLower(raw))
	if !st.Valid() {
		return fmt.Errorf("unknown task status %q", raw)
	}
	*s = st
	return nil
}

// ResultState is the status of a legacy TestResult record.
type ResultState string

const (
	ResultSuccess ResultState = "success"
	ResultWarning ResultState = "warning"
	ResultError   ResultState = "error"
	ResultRunning ResultState = "running"
)

func (s ResultState) Valid() bool {
	switch s {
	case ResultSuccess, ResultWarning, ResultError, ResultRunning:
		return true
	}
	return false
}

// AgentType names a backend executor variant.
type AgentType string

const (
	AgentWebTest         AgentType = "web_test"
	AgentEnhancedTest    AgentType = "enhanced_test"
	AgentFormTest        AgentType = "form_test"
	AgentAPITest         AgentType = "api_test"
	AgentPerformanceTest AgentType = "performance_test"
)

type TaskSubmission struct {
	AgentType       AgentType      `json:"agent_type"`
	TaskDescription string         `json:"task_description"`
	Parameters      map[string]any `json:"parameters"`
}

type TaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TaskStatus struct {
	TaskID        string         `json:"task_id"`
	Status        TaskState      `json:"status"`
	CreatedAt     Time           `json:"created_at"`
	StartedAt     *Time          `json:"started_at,omitempty"`
	CompletedAt   *Time          `json:"completed_at,omitempty"`
	Result        map[string]any `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime *float64       `json:"execution_time,omitempty"`
}

func (t *TaskStatus) UnmarshalJSON(data []byte) error {
	type plain TaskStatus
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.ExecutionTime != nil && *p.ExecutionTime < 0 {
		zero := 0.0
		p.ExecutionTime = &zero
	}
	*t = TaskStatus(p)
	return nil
}

// UpdatedAt is the most recent timestamp the backend reported for the task.
func (t TaskStatus) UpdatedAt() Time {
	switch {
	case t.CompletedAt != nil && !t.CompletedAt.IsZero():
		return *t.CompletedAt
	case t.StartedAt != nil && !t.StartedAt.IsZero():
		return *t.StartedAt
	default:
		return t.CreatedAt
	}
}

// ResultMessage returns result.message when the backend provided one.
func (t TaskStatus) ResultMessage() string {
	if t.Result == nil {
		return ""
	}
	if msg, ok := t.Result["message"].(string); ok {
		return msg
	}
	return ""
}

// Description returns the task description echoed in the result payload, if any.
func (t TaskStatus) Description() string {
	if t.Result == nil {
		return ""
	}
	for _, key := range []string{"task_description", "description"} {
		if s, ok := t.Result[key].(string); ok {
			return s
		}
	}
	return ""
}

type Metrics struct {
	ActiveTasks          int     `json:"active_tasks"`
	PendingTasks         int     `json:"pending_tasks"`
	CompletedTasks       int     `json:"completed_tasks"`
	TotalTasks           int     `json:"total_tasks"`
	SuccessRate          float64 `json:"success_rate"`
	AverageExecutionTime float64 `json:"average_execution_time"`
}

type Scenario struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ScenarioType string   `json:"scenario_type"`
	URL          string   `json:"url"`
	ActionsCount int      `json:"actions_count"`
	Tags         []string `json:"tags,omitempty"`
	Priority     int      `json:"priority"`
}

type ScenarioRunRequest struct {
	ScenarioID string         `json:"scenario_id"`
	Parameters map[string]any `json:"parameters"`
}

type ScenarioRunResponse struct {
	TaskID     string `json:"task_id"`
	ScenarioID string `json:"scenario_id"`
	Message    string `json:"message"`
}

// Execution is a persisted test-suite run from GET /api/executions/recent.
type Execution struct {
	ID            string   `json:"id"`
	TestSuiteID   string   `json:"test_suite_id"`
	AgentType     string   `json:"agent_type"`
	Status        string   `json:"status"`
	StartedAt     Time     `json:"started_at"`
	CompletedAt   *Time    `json:"completed_at,omitempty"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
	TotalTests    int      `json:"total_tests"`
	PassedTests   int      `json:"passed_tests"`
	FailedTests   int      `json:"failed_tests"`
}

type Health struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Timestamp  Time              `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

type Viewport struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Name   string `json:"name"`
}

// DefaultViewports is the viewport set used by responsive tests when none is given.
var DefaultViewports = []Viewport{
	{Width: 1920, Height: 1080, Name: "Desktop Large"},
	{Width: 1366, Height: 768, Name: "Desktop Medium"},
	{Width: 768, Height: 1024, Name: "Tablet"},
	{Width: 375, Height: 667, Name: "Mobile"},
}

// DefaultBrowsers is the browser set used by cross-browser tests when none is given.
var DefaultBrowsers = []string{"chromium", "firefox", "webkit"}

// AgentStatus is the display status of a mock agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentRunning AgentStatus = "running"
	AgentError   AgentStatus = "error"
	AgentPaused  AgentStatus = "paused"
)

type AgentPerformance struct {
	TestsCompleted   int     `json:"tests_completed"`
	SuccessRate      float64 `json:"success_rate"`
	AvgExecutionTime float64 `json:"avg_execution_time"`
}

// Agent is display-only data; the backend does not expose agents.
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Status       AgentStatus       `json:"status"`
	CurrentTask  string            `json:"current_task,omitempty"`
	LastActivity Time              `json:"last_activity"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Performance  *AgentPerformance `json:"performance_metrics,omitempty"`
}

// TestResult is the legacy per-test-case result record.
type TestResult struct {
	ID            string         `json:"id"`
	TestCaseID    string         `json:"test_case_id"`
	Status        ResultState    `json:"status"`
	Result        map[string]any `json:"result"`
	Error         string         `json:"error,omitempty"`
	Screenshots   []string       `json:"screenshots,omitempty"`
	ExecutionTime int64          `json:"execution_time,omitempty"` // milliseconds
	Timestamp     Time           `json:"timestamp"`
}
