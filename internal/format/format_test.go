package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/browsertest/dashboard/internal/agentapi"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{125000, "2m 5s"},
		{45000, "45s"},
		{0, "0s"},
		{999, "0s"},
		{60000, "1m 0s"},
		{-5000, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Duration(tt.ms), tt.ms)
	}
}

func TestExecutionTime(t *testing.T) {
	v := 125.0
	zero := 0.0
	assert.Equal(t, "2m 5s", ExecutionTime(&v))
	assert.Equal(t, "N/A", ExecutionTime(&zero))
	assert.Equal(t, "N/A", ExecutionTime(nil))
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://example.com"))
	assert.True(t, IsValidURL("http://localhost:3000/path?q=1"))
	assert.False(t, IsValidURL("not-a-url"))
	assert.False(t, IsValidURL(""))
	assert.False(t, IsValidURL("/relative/path"))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusInfo{"Success", "success"}, Status("success"))
	assert.Equal(t, StatusInfo{"Error", "error"}, Status("error"))
	assert.Equal(t, StatusInfo{"Warning", "warning"}, Status("warning"))
	assert.Equal(t, StatusInfo{"mystery", "default"}, Status("mystery"))
}

func TestStatusColor(t *testing.T) {
	assert.Equal(t, "success", StatusColor(agentapi.StateCompleted))
	assert.Equal(t, "error", StatusColor(agentapi.StateFailed))
	assert.Equal(t, "error", StatusColor(agentapi.StateCancelled))
	assert.Equal(t, "info", StatusColor(agentapi.StateRunning))
	assert.Equal(t, "warning", StatusColor(agentapi.StatePending))
	assert.Equal(t, "default", StatusColor("odd"))
}

func TestAgentTypeName(t *testing.T) {
	assert.Equal(t, "Web Test Agent", AgentTypeName(agentapi.AgentWebTest))
	assert.Equal(t, "Performance Test Agent", AgentTypeName(agentapi.AgentPerformanceTest))
	assert.Equal(t, "custom_agent", AgentTypeName("custom_agent"))
}

func TestRelative(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Just now", Relative(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", Relative(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", Relative(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", Relative(now.Add(-49*time.Hour), now))
	assert.Equal(t, "Apr 1, 2024", Relative(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "May 11, 2024 12:00", Relative(now.Add(24*time.Hour), now))
	assert.Equal(t, "N/A", Relative(time.Time{}, now))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "72.0%", Percent(72))
}
