// Package format holds the display helpers shared by the dashboard pages and agentctl.
package format

import (
	"fmt"
	"net/url"
	"time"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// Duration renders milliseconds as "2m 5s" or "45s".
func Duration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	minutes := secs / 60
	secs %= 60
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

// ExecutionTime renders a task's execution time in seconds. Missing or zero is "N/A".
func ExecutionTime(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return "N/A"
	}
	return Duration(int64(*seconds * 1000))
}

// IsValidURL reports whether s parses as an absolute URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

// StatusInfo is the label and color class a status badge is drawn with.
type StatusInfo struct {
	Label string
	Color string
}

func Status(s string) StatusInfo {
	switch s {
	case "success":
		return StatusInfo{Label: "Success", Color: "success"}
	case "error":
		return StatusInfo{Label: "Error", Color: "error"}
	case "warning":
		return StatusInfo{Label: "Warning", Color: "warning"}
	default:
		return StatusInfo{Label: s, Color: "default"}
	}
}

// StatusColor maps a task state to a badge color class.
func StatusColor(s agentapi.TaskState) string {
	switch s {
	case agentapi.StateCompleted:
		return "success"
	case agentapi.StateFailed, agentapi.StateCancelled:
		return "error"
	case agentapi.StateRunning:
		return "info"
	case agentapi.StatePending, agentapi.StateSubmitted:
		return "warning"
	default:
		return "default"
	}
}

var agentNames = map[agentapi.AgentType]string{
	agentapi.AgentWebTest:         "Web Test Agent",
	agentapi.AgentEnhancedTest:    "Enhanced Test Agent",
	agentapi.AgentFormTest:        "Form Test Agent",
	agentapi.AgentAPITest:         "API Test Agent",
	agentapi.AgentPerformanceTest: "Performance Test Agent",
}

func AgentTypeName(t agentapi.AgentType) string {
	if name, ok := agentNames[t]; ok {
		return name
	}
	return string(t)
}

// Relative renders t relative to now ("Just now", "5m ago", "3h ago", "2d ago").
// Anything older than a week, or in the future, is shown as a date.
func Relative(t, now time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return t.Format("Jan 2, 2006 15:04")
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}

// Percent renders a 0-100 rate with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
