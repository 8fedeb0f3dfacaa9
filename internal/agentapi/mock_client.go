package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/browsertest/dashboard/internal/api"
)

// MockClient serves generated data when no backend is available (USE_MOCK=true).
// Submitted tasks advance one state per status poll: pending, running, completed.
// Metrics are derived locally from the task list.
type MockClient struct {
	mu        sync.Mutex
	tasks     map[string]*TaskStatus
	order     []string
	scenarios []Scenario
	seq       int
	now       func() time.Time
}

func NewMockClient() *MockClient {
	c := &MockClient{
		tasks: make(map[string]*TaskStatus),
		now:   time.Now,
	}
	c.generateMockData()
	return c
}

func (c *MockClient) generateMockData() {
	c.scenarios = []Scenario{
		{ID: "login-flow", Name: "Login Flow", Description: "Sign in with valid and invalid credentials", ScenarioType: "functional", URL: "https://example.com/login", ActionsCount: 6, Tags: []string{"auth"}, Priority: 1},
		{ID: "checkout", Name: "Checkout", Description: "Add to cart and complete checkout", ScenarioType: "e2e", URL: "https://example.com/shop", ActionsCount: 12, Tags: []string{"shop", "critical"}, Priority: 1},
		{ID: "contact-form", Name: "Contact Form", Description: "Submit the contact form", ScenarioType: "form", URL: "https://example.com/contact", ActionsCount: 4, Priority: 2},
	}

	descriptions := []string{
		"Cross-browser test: homepage renders",
		"Responsive design test for https://example.com",
		"Performance test for https://example.com",
		"Test form functionality on https://example.com/contact",
		"Test website functionality for https://example.com",
	}

	now := c.now()
	for i := 0; i < 25; i++ {
		state := StateCompleted
		errMsg := ""
		if i%6 == 0 {
			state = StateFailed
			errMsg = "Timeout waiting for selector"
		}
		if i%11 == 0 {
			state = StateCancelled
			errMsg = ""
		}
		created := now.Add(time.Duration(-i-1) * time.Hour)
		started := created.Add(5 * time.Second)
		completed := started.Add(time.Duration(30+i*7) * time.Second)
		execTime := completed.Sub(started).Seconds()

		id := fmt.Sprintf("task-%03d", i)
		c.tasks[id] = &TaskStatus{
			TaskID:      id,
			Status:      state,
			CreatedAt:   NewTime(created),
			StartedAt:   timePtr(started),
			CompletedAt: timePtr(completed),
			Result: map[string]any{
				"message":          fmt.Sprintf("%s finished with status %s", descriptions[i%len(descriptions)], state),
				"task_description": descriptions[i%len(descriptions)],
			},
			Error:         errMsg,
			ExecutionTime: &execTime,
		}
		c.order = append(c.order, id)
	}
	c.seq = len(c.order)
}

func timePtr(t time.Time) *Time {
	v := NewTime(t)
	return &v
}

func (c *MockClient) nextID() string {
	c.seq++
	return fmt.Sprintf("task-%03d", c.seq)
}

func (c *MockClient) SubmitTask(ctx context.Context, sub TaskSubmission) (*TaskResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID()
	params := map[string]any{}
	for k, v := range sub.Parameters {
		params[k] = v
	}
	c.tasks[id] = &TaskStatus{
		TaskID:    id,
		Status:    StatePending,
		CreatedAt: NewTime(c.now()),
		Result: map[string]any{
			"task_description": sub.TaskDescription,
			"agent_type":       string(sub.AgentType),
			"parameters":       params,
		},
	}
	c.order = append([]string{id}, c.order...)
	return &TaskResponse{TaskID: id, Status: string(StateSubmitted), Message: "Task submitted successfully"}, nil
}

func (c *MockClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok {
		return nil, &api.Error{
			Kind:       api.KindStatus,
			Method:     http.MethodGet,
			Path:       "/api/tasks/" + taskID + "/status",
			StatusCode: http.StatusNotFound,
			Body:       "Task not found",
		}
	}
	c.advance(t)
	cp := *t
	return &cp, nil
}

func (c *MockClient) advance(t *TaskStatus) {
	now := c.now()
	switch t.Status {
	case StatePending:
		t.Status = StateRunning
		t.StartedAt = timePtr(now)
	case StateRunning:
		t.Status = StateCompleted
		t.CompletedAt = timePtr(now)
		secs := now.Sub(t.StartedAt.Time).Seconds()
		t.ExecutionTime = &secs
		t.Result["message"] = "Mock run finished"
		t.Result["success"] = true
	}
}

func (c *MockClient) GetActiveTasks(ctx context.Context) ([]TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TaskStatus
	for _, id := range c.order {
		t := c.tasks[id]
		if !t.Status.IsTerminal() {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (c *MockClient) GetCompletedTasks(ctx context.Context, limit int) ([]TaskStatus, error) {
	if limit <= 0 {
		limit = DefaultCompletedLimit
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TaskStatus
	for _, id := range c.order {
		t := c.tasks[id]
		if t.Status.IsTerminal() {
			out = append(out, *t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt().After(out[j].UpdatedAt().Time)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *MockClient) CancelTask(ctx context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok || t.Status.IsTerminal() {
		return fmt.Errorf("task %s not found or cannot be cancelled", taskID)
	}
	t.Status = StateCancelled
	t.CompletedAt = timePtr(c.now())
	return nil
}

func (c *MockClient) GetScenarios(ctx context.Context) ([]Scenario, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Scenario(nil), c.scenarios...), nil
}

func (c *MockClient) RunScenario(ctx context.Context, scenarioID string, params map[string]any) (*ScenarioRunResponse, error) {
	var scenario *Scenario
	c.mu.Lock()
	for i := range c.scenarios {
		if c.scenarios[i].ID == scenarioID {
			scenario = &c.scenarios[i]
			break
		}
	}
	c.mu.Unlock()
	if scenario == nil {
		return nil, fmt.Errorf("scenario %s not found", scenarioID)
	}

	merged := map[string]any{"url": scenario.URL}
	for k, v := range params {
		merged[k] = v
	}
	resp, err := c.SubmitTask(ctx, TaskSubmission{
		AgentType:       AgentEnhancedTest,
		TaskDescription: "Execute scenario: " + scenario.Name,
		Parameters:      merged,
	})
	if err != nil {
		return nil, err
	}
	return &ScenarioRunResponse{TaskID: resp.TaskID, ScenarioID: scenarioID, Message: "Scenario execution started"}, nil
}

// GetMetrics derives the aggregate counters from the mock task list.
func (c *MockClient) GetMetrics(ctx context.Context) (*Metrics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &Metrics{TotalTasks: len(c.tasks)}
	var finished, succeeded int
	var totalTime float64
	for _, t := range c.tasks {
		switch t.Status {
		case StateRunning:
			m.ActiveTasks++
		case StatePending, StateSubmitted:
			m.PendingTasks++
		case StateCompleted:
			succeeded++
		}
		if t.Status.IsTerminal() {
			m.CompletedTasks++
			if t.ExecutionTime != nil {
				finished++
				totalTime += *t.ExecutionTime
			}
		}
	}
	if m.CompletedTasks > 0 {
		m.SuccessRate = float64(succeeded) / float64(m.CompletedTasks) * 100
	}
	if finished > 0 {
		m.AverageExecutionTime = totalTime / float64(finished)
	}
	return m, nil
}

func (c *MockClient) GetRecentExecutions(ctx context.Context, limit int) ([]Execution, error) {
	completed, _ := c.GetCompletedTasks(ctx, limit)
	out := make([]Execution, 0, len(completed))
	for _, t := range completed {
		e := Execution{
			ID:            "exec-" + strings.TrimPrefix(t.TaskID, "task-"),
			TestSuiteID:   "default",
			AgentType:     string(AgentEnhancedTest),
			Status:        string(t.Status),
			CompletedAt:   t.CompletedAt,
			ExecutionTime: t.ExecutionTime,
			TotalTests:    1,
		}
		if t.StartedAt != nil {
			e.StartedAt = *t.StartedAt
		}
		if t.Status == StateCompleted {
			e.PassedTests = 1
		} else {
			e.FailedTests = 1
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *MockClient) HealthCheck(ctx context.Context) (*Health, error) {
	return &Health{
		Status:    "healthy",
		Version:   "mock",
		Timestamp: NewTime(c.now()),
		Components: map[string]string{
			"agent_manager": "operational",
			"database":      "operational",
			"scenarios":     "operational",
		},
	}, nil
}

// Agents returns the display-only agent roster shown on the agent dashboard.
func (c *MockClient) Agents() []Agent {
	return MockAgents(c.now())
}

// MockAgents is the fixed agent roster; the backend has no agent endpoint.
func MockAgents(now time.Time) []Agent {
	return []Agent{
		{
			ID:           "agent-1",
			Name:         "Primary Test Agent",
			Status:       AgentRunning,
			CurrentTask:  "Testing login functionality",
			LastActivity: NewTime(now.Add(-1 * time.Minute)),
			Capabilities: []string{"functional", "ui", "form"},
			Performance:  &AgentPerformance{TestsCompleted: 156, SuccessRate: 94.2, AvgExecutionTime: 45.3},
		},
		{
			ID:           "agent-2",
			Name:         "UI Validation Agent",
			Status:       AgentIdle,
			LastActivity: NewTime(now.Add(-15 * time.Minute)),
			Capabilities: []string{"ui", "responsive", "accessibility"},
			Performance:  &AgentPerformance{TestsCompleted: 89, SuccessRate: 97.8, AvgExecutionTime: 32.1},
		},
		{
			ID:           "agent-3",
			Name:         "Performance Agent",
			Status:       AgentError,
			CurrentTask:  "Load testing checkout",
			LastActivity: NewTime(now.Add(-2 * time.Hour)),
			Capabilities: []string{"performance", "load"},
			Performance:  &AgentPerformance{TestsCompleted: 34, SuccessRate: 82.4, AvgExecutionTime: 120.7},
		},
	}
}

// MockTestResults is the legacy per-test result list shown next to the agents.
func MockTestResults(now time.Time) []TestResult {
	return []TestResult{
		{ID: "result-1", TestCaseID: "login-page-loads", Status: ResultSuccess, Result: map[string]any{"message": "Login page rendered"}, ExecutionTime: 1200, Timestamp: NewTime(now.Add(-5 * time.Minute))},
		{ID: "result-2", TestCaseID: "submit-contact-form", Status: ResultError, Result: map[string]any{}, Error: "Timeout waiting for selector", ExecutionTime: 5000, Timestamp: NewTime(now.Add(-30 * time.Minute))},
		{ID: "result-3", TestCaseID: "homepage-performance", Status: ResultWarning, Result: map[string]any{"message": "LCP above budget"}, ExecutionTime: 125000, Timestamp: NewTime(now.Add(-3 * time.Hour))},
	}
}
