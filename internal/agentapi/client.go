// Package agentapi maps dashboard actions onto the agent backend REST API.
package agentapi

import (
	"context"
)

// Client is one method per backend endpoint. Every call is a fresh request:
// no retries, caching or deduplication.
type Client interface {
	SubmitTask(ctx context.Context, sub TaskSubmission) (*TaskResponse, error)
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	GetActiveTasks(ctx context.Context) ([]TaskStatus, error)
	GetCompletedTasks(ctx context.Context, limit int) ([]TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	GetScenarios(ctx context.Context) ([]Scenario, error)
	RunScenario(ctx context.Context, scenarioID string, params map[string]any) (*ScenarioRunResponse, error)
	GetMetrics(ctx context.Context) (*Metrics, error)
	GetRecentExecutions(ctx context.Context, limit int) ([]Execution, error)
	HealthCheck(ctx context.Context) (*Health, error)
}
