package results

import (
	"strings"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// Kind is the display category of a task.
type Kind struct {
	Label string
	Color string
}

var (
	KindCrossBrowser = Kind{"Cross-browser", "#2196F3"}
	KindResponsive   = Kind{"Responsive", "#4CAF50"}
	KindPerformance  = Kind{"Performance", "#FF9800"}
	KindForm         = Kind{"Form Test", "#9C27B0"}
	KindWeb          = Kind{"Web Test", "#607D8B"}
)

// Classify guesses the test kind from keywords in the task description,
// falling back to the task id when the result carries no description.
func Classify(t agentapi.TaskStatus) Kind {
	text := t.Description()
	if text == "" {
		text = t.TaskID
	}
	text = strings.ToLower(text)

	switch {
	case strings.Contains(text, "cross-browser") || strings.Contains(text, "browser"):
		return KindCrossBrowser
	case strings.Contains(text, "responsive") || strings.Contains(text, "mobile"):
		return KindResponsive
	case strings.Contains(text, "performance") || strings.Contains(text, "speed"):
		return KindPerformance
	case strings.Contains(text, "form"):
		return KindForm
	default:
		return KindWeb
	}
}

type Summary struct {
	Total            int
	ByState          map[agentapi.TaskState]int
	SuccessRate      float64 // percent of terminal tasks that completed
	AvgExecutionTime float64 // seconds, over tasks that report one
}

func Summarize(tasks []agentapi.TaskStatus) Summary {
	s := Summary{Total: len(tasks), ByState: make(map[agentapi.TaskState]int)}
	var terminal, timed int
	var total float64
	for _, t := range tasks {
		s.ByState[t.Status]++
		if t.Status.IsTerminal() {
			terminal++
		}
		if t.ExecutionTime != nil && *t.ExecutionTime > 0 {
			timed++
			total += *t.ExecutionTime
		}
	}
	if terminal > 0 {
		s.SuccessRate = float64(s.ByState[agentapi.StateCompleted]) / float64(terminal) * 100
	}
	if timed > 0 {
		s.AvgExecutionTime = total / float64(timed)
	}
	return s
}
