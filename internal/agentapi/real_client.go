package agentapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/api"
)

// DefaultCompletedLimit is the page size used when no limit is given.
const DefaultCompletedLimit = 20

type RealClient struct {
	http   *api.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewRealClient talks to the backend through the given HTTP wrapper.
func NewRealClient(httpClient *api.Client, logger *zap.Logger) *RealClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealClient{
		http:   httpClient,
		logger: logger,
		now:    time.Now,
	}
}

func (c *RealClient) SubmitTask(ctx context.Context, sub TaskSubmission) (*TaskResponse, error) {
	if sub.Parameters == nil {
		sub.Parameters = map[string]any{}
	}
	var resp TaskResponse
	if err := c.http.Post(ctx, "/api/tasks/submit", sub, &resp); err != nil {
		c.logger.Error("Failed to submit task", zap.String("agent_type", string(sub.AgentType)), zap.Error(err))
		return nil, fmt.Errorf("failed to submit task: %w", err)
	}
	c.logger.Info("Task submitted", zap.String("task_id", resp.TaskID), zap.String("agent_type", string(sub.AgentType)))
	return &resp, nil
}

func (c *RealClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var status TaskStatus
	if err := c.http.Get(ctx, "/api/tasks/"+url.PathEscape(taskID)+"/status", &status); err != nil {
		c.logger.Error("Failed to get task status", zap.String("task_id", taskID), zap.Error(err))
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}
	return &status, nil
}

func (c *RealClient) GetActiveTasks(ctx context.Context) ([]TaskStatus, error) {
	var tasks []TaskStatus
	if err := c.http.Get(ctx, "/api/tasks/active", &tasks); err != nil {
		c.logger.Error("Failed to get active tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to get active tasks: %w", err)
	}
	return tasks, nil
}

// GetCompletedTasks adds a _t timestamp so intermediaries never serve a cached list.
func (c *RealClient) GetCompletedTasks(ctx context.Context, limit int) ([]TaskStatus, error) {
	if limit <= 0 {
		limit = DefaultCompletedLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("_t", strconv.FormatInt(c.now().UnixMilli(), 10))

	var tasks []TaskStatus
	if err := c.http.Get(ctx, "/api/tasks/completed?"+params.Encode(), &tasks); err != nil {
		c.logger.Error("Failed to get completed tasks", zap.Int("limit", limit), zap.Error(err))
		return nil, fmt.Errorf("failed to get completed tasks: %w", err)
	}
	return tasks, nil
}

func (c *RealClient) CancelTask(ctx context.Context, taskID string) error {
	if err := c.http.Delete(ctx, "/api/tasks/"+url.PathEscape(taskID), nil); err != nil {
		c.logger.Error("Failed to cancel task", zap.String("task_id", taskID), zap.Error(err))
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	c.logger.Info("Task cancelled", zap.String("task_id", taskID))
	return nil
}

func (c *RealClient) GetScenarios(ctx context.Context) ([]Scenario, error) {
	var scenarios []Scenario
	if err := c.http.Get(ctx, "/api/scenarios", &scenarios); err != nil {
		c.logger.Error("Failed to get scenarios", zap.Error(err))
		return nil, fmt.Errorf("failed to get scenarios: %w", err)
	}
	return scenarios, nil
}

func (c *RealClient) RunScenario(ctx context.Context, scenarioID string, params map[string]any) (*ScenarioRunResponse, error) {
	if params == nil {
		params = map[string]any{}
	}
	req := ScenarioRunRequest{ScenarioID: scenarioID, Parameters: params}
	var resp ScenarioRunResponse
	if err := c.http.Post(ctx, "/api/scenarios/"+url.PathEscape(scenarioID)+"/run", req, &resp); err != nil {
		c.logger.Error("Failed to run scenario", zap.String("scenario_id", scenarioID), zap.Error(err))
		return nil, fmt.Errorf("failed to run scenario: %w", err)
	}
	c.logger.Info("Scenario started", zap.String("scenario_id", scenarioID), zap.String("task_id", resp.TaskID))
	return &resp, nil
}

func (c *RealClient) GetMetrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	if err := c.http.Get(ctx, "/api/metrics", &m); err != nil {
		c.logger.Error("Failed to get metrics", zap.Error(err))
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	return &m, nil
}

func (c *RealClient) GetRecentExecutions(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 10
	}
	var execs []Execution
	if err := c.http.Get(ctx, "/api/executions/recent?limit="+strconv.Itoa(limit), &execs); err != nil {
		c.logger.Error("Failed to get recent executions", zap.Error(err))
		return nil, fmt.Errorf("failed to get recent executions: %w", err)
	}
	return execs, nil
}

func (c *RealClient) HealthCheck(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.http.Get(ctx, "/api/health", &h); err != nil {
		c.logger.Error("Health check failed", zap.Error(err))
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	return &h, nil
}
