package agentapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClient captures submissions and replays a scripted status sequence.
type recordingClient struct {
	MockClient

	mu          sync.Mutex
	submissions []TaskSubmission
	statuses    []TaskState
	polls       int
	limits      []int
}

func (c *recordingClient) SubmitTask(ctx context.Context, sub TaskSubmission) (*TaskResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions = append(c.submissions, sub)
	return &TaskResponse{TaskID: "t1", Status: string(StateSubmitted)}, nil
}

func (c *recordingClient) GetTaskStatus(ctx context.Context, id string) (*TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.polls
	if i >= len(c.statuses) {
		i = len(c.statuses) - 1
	}
	c.polls++
	return &TaskStatus{TaskID: id, Status: c.statuses[i]}, nil
}

func (c *recordingClient) GetCompletedTasks(ctx context.Context, limit int) ([]TaskStatus, error) {
	c.limits = append(c.limits, limit)
	return nil, nil
}

func (c *recordingClient) last(t *testing.T) TaskSubmission {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.submissions)
	return c.submissions[len(c.submissions)-1]
}

func TestService_SubmitCrossBrowserTest(t *testing.T) {
	rc := &recordingClient{}
	svc := NewService(rc)

	resp, err := svc.SubmitCrossBrowserTest(context.Background(), "https://example.com", "home page", []string{"chromium", "firefox"})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.TaskID)

	sub := rc.last(t)
	assert.Equal(t, AgentEnhancedTest, sub.AgentType)
	assert.Equal(t, "Cross-browser test: home page", sub.TaskDescription)
	assert.Equal(t, "https://example.com", sub.Parameters["url"])
	assert.Equal(t, true, sub.Parameters["cross_browser"])
	assert.Equal(t, []string{"chromium", "firefox"}, sub.Parameters["browsers"])
	assert.Equal(t, "cross_browser", sub.Parameters["test_type"])
}

func TestService_SubmitCrossBrowserTest_DefaultBrowsers(t *testing.T) {
	rc := &recordingClient{}
	_, err := NewService(rc).SubmitCrossBrowserTest(context.Background(), "https://example.com", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"chromium", "firefox", "webkit"}, rc.last(t).Parameters["browsers"])
}

func TestService_SubmitResponsiveTest(t *testing.T) {
	rc := &recordingClient{}
	svc := NewService(rc)

	vp := []Viewport{{Width: 375, Height: 667, Name: "Mobile"}}
	_, err := svc.SubmitResponsiveTest(context.Background(), "https://example.com", vp)
	require.NoError(t, err)

	sub := rc.last(t)
	assert.Equal(t, AgentEnhancedTest, sub.AgentType)
	assert.Equal(t, "Responsive design test for https://example.com", sub.TaskDescription)
	assert.Equal(t, true, sub.Parameters["responsive_test"])
	assert.Equal(t, vp, sub.Parameters["viewports"])
	assert.Equal(t, "responsive", sub.Parameters["test_type"])

	_, err = svc.SubmitResponsiveTest(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultViewports, rc.last(t).Parameters["viewports"])
}

func TestService_SimpleSubmissions(t *testing.T) {
	rc := &recordingClient{}
	svc := NewService(rc)
	ctx := context.Background()

	_, err := svc.SubmitWebTest(ctx, "https://a.test", []string{"click"})
	require.NoError(t, err)
	assert.Equal(t, AgentWebTest, rc.last(t).AgentType)
	assert.Equal(t, []string{"click"}, rc.last(t).Parameters["actions"])

	_, err = svc.SubmitEnhancedTest(ctx, "https://a.test", "look around", false)
	require.NoError(t, err)
	assert.Equal(t, AgentEnhancedTest, rc.last(t).AgentType)
	assert.Equal(t, "look around", rc.last(t).TaskDescription)
	assert.Equal(t, false, rc.last(t).Parameters["take_screenshots"])

	_, err = svc.SubmitFormTest(ctx, "https://a.test", "")
	require.NoError(t, err)
	assert.Equal(t, AgentFormTest, rc.last(t).AgentType)
	assert.NotContains(t, rc.last(t).Parameters, "form_selector")

	_, err = svc.SubmitFormTest(ctx, "https://a.test", "#signup")
	require.NoError(t, err)
	assert.Equal(t, "#signup", rc.last(t).Parameters["form_selector"])

	_, err = svc.SubmitPerformanceTest(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, AgentPerformanceTest, rc.last(t).AgentType)
}

func TestService_GetAllCompletedTasks(t *testing.T) {
	rc := &recordingClient{}
	_, err := NewService(rc).GetAllCompletedTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{AllCompletedLimit}, rc.limits)
}

func TestService_PollTaskUntilComplete(t *testing.T) {
	rc := &recordingClient{statuses: []TaskState{StatePending, StateRunning, StateCompleted}}
	svc := NewService(rc)
	svc.PollInterval = 5 * time.Millisecond

	var seen []TaskState
	status, err := svc.PollTaskUntilComplete(context.Background(), "t1", func(s TaskStatus) {
		seen = append(seen, s.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, status.Status)
	assert.Equal(t, []TaskState{StatePending, StateRunning, StateCompleted}, seen)
}

func TestService_PollTaskUntilComplete_Timeout(t *testing.T) {
	rc := &recordingClient{statuses: []TaskState{StateRunning}}
	svc := NewService(rc)
	svc.PollInterval = 5 * time.Millisecond
	svc.PollTimeout = 30 * time.Millisecond

	_, err := svc.PollTaskUntilComplete(context.Background(), "t1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPollTimeout))
}

func TestService_PollTaskUntilComplete_Cancelled(t *testing.T) {
	rc := &recordingClient{statuses: []TaskState{StateRunning}}
	svc := NewService(rc)
	svc.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := svc.PollTaskUntilComplete(ctx, "t1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
