package agentapi

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// AllCompletedLimit asks the backend for its whole completed history.
	AllCompletedLimit = 9999

	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// ErrPollTimeout is returned when a task does not finish within the poll window.
var ErrPollTimeout = errors.New("task did not complete in time")

// Service adds the specialised test submissions and polling on top of a Client.
type Service struct {
	Client

	PollInterval time.Duration
	PollTimeout  time.Duration
}

func NewService(c Client) *Service {
	return &Service{
		Client:       c,
		PollInterval: DefaultPollInterval,
		PollTimeout:  DefaultPollTimeout,
	}
}

func (s *Service) GetAllCompletedTasks(ctx context.Context) ([]TaskStatus, error) {
	return s.GetCompletedTasks(ctx, AllCompletedLimit)
}

func (s *Service) submit(ctx context.Context, agent AgentType, description string, params map[string]any) (*TaskResponse, error) {
	return s.SubmitTask(ctx, TaskSubmission{
		AgentType:       agent,
		TaskDescription: description,
		Parameters:      params,
	})
}

func (s *Service) SubmitWebTest(ctx context.Context, url string, actions []string) (*TaskResponse, error) {
	return s.submit(ctx, AgentWebTest, "Test website functionality for "+url, map[string]any{
		"url":     url,
		"actions": actions,
	})
}

func (s *Service) SubmitEnhancedTest(ctx context.Context, url, description string, takeScreenshots bool) (*TaskResponse, error) {
	return s.submit(ctx, AgentEnhancedTest, description, map[string]any{
		"url":              url,
		"take_screenshots": takeScreenshots,
	})
}

// SubmitFormTest omits form_selector when empty so the backend picks the first form.
func (s *Service) SubmitFormTest(ctx context.Context, url, formSelector string) (*TaskResponse, error) {
	params := map[string]any{"url": url}
	if formSelector != "" {
		params["form_selector"] = formSelector
	}
	return s.submit(ctx, AgentFormTest, "Test form functionality on "+url, params)
}

func (s *Service) SubmitPerformanceTest(ctx context.Context, url string) (*TaskResponse, error) {
	return s.submit(ctx, AgentPerformanceTest, "Performance test for "+url, map[string]any{
		"url": url,
	})
}

// SubmitCrossBrowserTest runs on the enhanced agent; an empty browser list means DefaultBrowsers.
func (s *Service) SubmitCrossBrowserTest(ctx context.Context, url, description string, browsers []string) (*TaskResponse, error) {
	if len(browsers) == 0 {
		browsers = DefaultBrowsers
	}
	return s.submit(ctx, AgentEnhancedTest, "Cross-browser test: "+description, map[string]any{
		"url":           url,
		"cross_browser": true,
		"browsers":      append([]string(nil), browsers...),
		"test_type":     "cross_browser",
	})
}

// SubmitResponsiveTest runs on the enhanced agent; an empty viewport list means DefaultViewports.
func (s *Service) SubmitResponsiveTest(ctx context.Context, url string, viewports []Viewport) (*TaskResponse, error) {
	if len(viewports) == 0 {
		viewports = DefaultViewports
	}
	return s.submit(ctx, AgentEnhancedTest, "Responsive design test for "+url, map[string]any{
		"url":             url,
		"responsive_test": true,
		"viewports":       append([]Viewport(nil), viewports...),
		"test_type":       "responsive",
	})
}

// PollTaskUntilComplete fetches the task status every PollInterval until it is
// terminal. onProgress, when set, sees every fetched status.
func (s *Service) PollTaskUntilComplete(ctx context.Context, taskID string, onProgress func(TaskStatus)) (*TaskStatus, error) {
	interval := s.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := s.PollTimeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := s.GetTaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("task %s: %w after %s", taskID, ErrPollTimeout, timeout)
			}
			return nil, err
		}
		if onProgress != nil {
			onProgress(*status)
		}
		if status.Status.IsTerminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("task %s: %w after %s", taskID, ErrPollTimeout, timeout)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
