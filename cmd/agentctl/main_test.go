package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/api"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	svc := agentapi.NewService(agentapi.NewMockClient())
	svc.PollInterval = 5 * time.Millisecond
	svc.PollTimeout = 2 * time.Second

	g := &globals{
		apiURL:  "http://localhost:8000",
		wsURL:   "ws://localhost:8000/ws",
		timeout: time.Second,
		service: func() (*agentapi.Service, error) { return svc, nil },
	}
	root := newRootCmd(g, newUI())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	out, err := run(t, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: healthy (version mock)")
	assert.Contains(t, out, "agent_manager")
}

func TestMetrics(t *testing.T) {
	out, err := run(t, "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "Queue")
	assert.Contains(t, out, "total      25")
}

func TestTasksCompleted(t *testing.T) {
	out, err := run(t, "tasks", "completed", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "task-000")
	assert.Contains(t, out, "task-002")
	assert.NotContains(t, out, "task-003")
	assert.Contains(t, out, "Total: 3 tasks")
}

func TestTasksCompletedStatusFilter(t *testing.T) {
	out, err := run(t, "tasks", "completed", "--limit", "25", "--status", "failed")
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "task-") {
			assert.Contains(t, line, "failed")
		}
	}
	assert.Contains(t, out, "Timeout waiting for selector")
}

func TestTasksActiveEmpty(t *testing.T) {
	out, err := run(t, "tasks", "active")
	require.NoError(t, err)
	assert.Contains(t, out, "No active tasks")
}

func TestTaskStatus(t *testing.T) {
	out, err := run(t, "task", "status", "task-003")
	require.NoError(t, err)
	assert.Contains(t, out, "task-003")
	assert.Contains(t, out, "Form Test")
	assert.Contains(t, out, "finished with status completed")
}

func TestTaskStatusNotFound(t *testing.T) {
	_, err := run(t, "task", "status", "missing")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))
}

func TestTaskCancelFinished(t *testing.T) {
	_, err := run(t, "task", "cancel", "task-001")
	assert.Error(t, err)
}

func TestSubmitAndWait(t *testing.T) {
	out, err := run(t, "submit", "--type", "cross_browser", "--url", "https://example.com",
		"--browsers", "chromium,firefox", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Task submitted: task-026")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Cross-browser")
}

func TestSubmitWithoutWait(t *testing.T) {
	out, err := run(t, "submit", "--type", "performance", "--url", "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Task submitted")
	assert.NotContains(t, out, "Mock run finished")
}

func TestSubmitValidation(t *testing.T) {
	_, err := run(t, "submit", "--url", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")

	_, err = run(t, "submit", "--type", "bogus", "--url", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown test type")

	_, err = run(t, "submit", "--type", "web")
	assert.Error(t, err)
}

func TestScenarios(t *testing.T) {
	out, err := run(t, "scenarios", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "login-flow")
	assert.Contains(t, out, "Login Flow")
	assert.Contains(t, out, "(functional, 6 actions)")

	out, err = run(t, "scenarios", "run", "checkout", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Scenario execution started")
	assert.Contains(t, out, "Mock run finished")
}
