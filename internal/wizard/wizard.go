// Package wizard drives a test run through Configure, Options, Execute and
// Results. One Wizard holds one run at a time; its poll loop keeps the task
// status current until the backend reports a terminal state.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/events"
	"github.com/browsertest/dashboard/internal/metrics"
)

var (
	ErrRunning    = errors.New("a test is running")
	ErrNoTask     = errors.New("no test is running")
	ErrLastStep   = errors.New("already on the last step")
	ErrNotOptions = errors.New("a run can only start from the options step")
	ErrAbandoned  = errors.New("the run was reset before the test started")
)

// Notifier receives the toast messages of a run. *events.Hub satisfies it.
type Notifier interface {
	Toast(level events.Level, message string)
}

type nopNotifier struct{}

func (nopNotifier) Toast(events.Level, string) {}

// State is a copy of the wizard for rendering.
type State struct {
	Step    Step                 `json:"step"`
	Config  Config               `json:"config"`
	TaskID  string               `json:"task_id,omitempty"`
	Status  *agentapi.TaskStatus `json:"status,omitempty"`
	Running bool                 `json:"running"`
	Error   string               `json:"error,omitempty"`
}

type Wizard struct {
	svc      *agentapi.Service
	notifier Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	step       Step
	cfg        Config
	taskID     string
	status     *agentapi.TaskStatus
	running    bool
	lastErr    string
	run        uint64
	cancelPoll context.CancelFunc
	onChange   func(State)
}

func New(svc *agentapi.Service, notifier Notifier, logger *zap.Logger) *Wizard {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wizard{
		svc:      svc,
		notifier: notifier,
		logger:   logger,
		cfg:      DefaultConfig(),
	}
}

// OnChange registers fn to run after every state change.
func (w *Wizard) OnChange(fn func(State)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

func (w *Wizard) stateLocked() State {
	s := State{
		Step:    w.step,
		Config:  w.cfg.clone(),
		TaskID:  w.taskID,
		Running: w.running,
		Error:   w.lastErr,
	}
	if w.status != nil {
		st := *w.status
		s.Status = &st
	}
	return s
}

// changed must be called without the lock held.
func (w *Wizard) changed() {
	w.mu.Lock()
	fn := w.onChange
	s := w.stateLocked()
	w.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// SetConfig replaces the configuration. It is refused while a test runs.
func (w *Wizard) SetConfig(cfg Config) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	w.cfg = cfg.clone()
	w.lastErr = ""
	w.mu.Unlock()
	w.changed()
	return nil
}

// Next validates the current step and advances. Leaving Options starts the run.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	step := w.step
	cfg := w.cfg
	w.mu.Unlock()

	switch step {
	case StepConfigure:
		if err := cfg.ValidateConfigure(); err != nil {
			w.fail(err)
			return err
		}
		w.setStep(StepOptions)
		return nil
	case StepOptions:
		return w.Execute(ctx)
	case StepExecute:
		return ErrRunning
	default:
		return ErrLastStep
	}
}

// Back steps from Options to Configure and from Results to Options.
func (w *Wizard) Back() error {
	w.mu.Lock()
	switch w.step {
	case StepOptions:
		w.step = StepConfigure
	case StepResults:
		w.step = StepOptions
	case StepExecute:
		w.mu.Unlock()
		return ErrRunning
	}
	w.lastErr = ""
	w.mu.Unlock()
	w.changed()
	return nil
}

// Execute validates the whole configuration, submits it and starts polling.
// A submission failure returns the wizard to Options. A Reset or Cancel while
// the submission is in flight wins: the new task is cancelled and dropped.
func (w *Wizard) Execute(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	if w.step != StepOptions {
		w.mu.Unlock()
		return ErrNotOptions
	}
	cfg := w.cfg.clone()
	w.mu.Unlock()

	if err := cfg.ValidateConfigure(); err != nil {
		w.fail(err)
		return err
	}
	if err := cfg.ValidateOptions(); err != nil {
		w.fail(err)
		return err
	}

	w.mu.Lock()
	// another request may have started a run while this one validated
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	if w.step != StepOptions {
		w.mu.Unlock()
		return ErrNotOptions
	}
	w.stopPollLocked()
	run := w.run
	w.step = StepExecute
	w.running = true
	w.status = nil
	w.taskID = ""
	w.lastErr = ""
	w.mu.Unlock()
	w.changed()

	taskID, err := w.submit(ctx, cfg)
	if err != nil {
		w.logger.Error("Failed to start test", zap.String("test_type", string(cfg.TestType)), zap.Error(err))
		metrics.WizardRunsTotal.WithLabelValues(string(cfg.TestType), "submit_error").Inc()
		w.mu.Lock()
		if run != w.run {
			w.mu.Unlock()
			return fmt.Errorf("start test: %w", err)
		}
		w.running = false
		w.step = StepOptions
		w.lastErr = err.Error()
		w.mu.Unlock()
		w.notifier.Toast(events.LevelError, "Failed to start test")
		w.changed()
		return fmt.Errorf("start test: %w", err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	if run != w.run {
		w.mu.Unlock()
		cancel()
		w.abandon(ctx, taskID, cfg.TestType)
		return ErrAbandoned
	}
	w.taskID = taskID
	w.cancelPoll = cancel
	w.mu.Unlock()

	w.logger.Info("Test started", zap.String("task_id", taskID), zap.String("test_type", string(cfg.TestType)))
	w.notifier.Toast(events.LevelSuccess, "Test started successfully!")
	w.changed()

	go w.poll(pollCtx, run, taskID, cfg.TestType)
	return nil
}

// abandon cancels a task whose run was reset before the submission returned.
func (w *Wizard) abandon(ctx context.Context, taskID string, testType TestType) {
	metrics.WizardRunsTotal.WithLabelValues(string(testType), "abandoned").Inc()
	w.logger.Warn("Run was reset during submission, cancelling task", zap.String("task_id", taskID))
	if err := w.svc.CancelTask(context.WithoutCancel(ctx), taskID); err != nil {
		w.logger.Warn("Failed to cancel abandoned task", zap.String("task_id", taskID), zap.Error(err))
	}
}

// submit dispatches on the test type; custom tests dispatch on the agent type.
func (w *Wizard) submit(ctx context.Context, cfg Config) (string, error) {
	withCustom := func() map[string]any {
		params := map[string]any{
			"url":              cfg.URL,
			"take_screenshots": cfg.TakeScreenshots,
		}
		for k, v := range cfg.CustomParameters {
			params[k] = v
		}
		return params
	}

	var resp *agentapi.TaskResponse
	var err error
	switch cfg.TestType {
	case TestScenario:
		run, err := w.svc.RunScenario(ctx, cfg.ScenarioID, withCustom())
		if err != nil {
			return "", err
		}
		return run.TaskID, nil
	case TestCrossBrowser:
		resp, err = w.svc.SubmitCrossBrowserTest(ctx, cfg.URL, cfg.Description, cfg.Browsers)
	case TestResponsive:
		resp, err = w.svc.SubmitResponsiveTest(ctx, cfg.URL, cfg.Viewports)
	case TestPerformance:
		resp, err = w.svc.SubmitPerformanceTest(ctx, cfg.URL)
	default:
		switch cfg.AgentType {
		case agentapi.AgentEnhancedTest:
			resp, err = w.svc.SubmitEnhancedTest(ctx, cfg.URL, cfg.Description, cfg.TakeScreenshots)
		case agentapi.AgentWebTest:
			resp, err = w.svc.SubmitWebTest(ctx, cfg.URL, []string{cfg.Description})
		case agentapi.AgentFormTest:
			resp, err = w.svc.SubmitFormTest(ctx, cfg.URL, "")
		default:
			resp, err = w.svc.SubmitTask(ctx, agentapi.TaskSubmission{
				AgentType:       cfg.AgentType,
				TaskDescription: cfg.Description,
				Parameters:      withCustom(),
			})
		}
	}
	if err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// poll fetches the task status every PollInterval. Fetch errors are logged and
// polling continues; only a terminal state, the poll timeout, or cancellation ends it.
func (w *Wizard) poll(ctx context.Context, run uint64, taskID string, testType TestType) {
	interval := w.svc.PollInterval
	if interval <= 0 {
		interval = agentapi.DefaultPollInterval
	}
	timeout := w.svc.PollTimeout
	if timeout <= 0 {
		timeout = agentapi.DefaultPollTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				w.finishTimeout(run, taskID, testType, timeout)
			}
			return
		case <-ticker.C:
		}

		status, err := w.svc.GetTaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("Error polling task status", zap.String("task_id", taskID), zap.Error(err))
			continue
		}

		w.mu.Lock()
		if run != w.run {
			w.mu.Unlock()
			return
		}
		w.status = status
		terminal := status.Status.IsTerminal()
		if terminal {
			w.running = false
			w.step = StepResults
			w.cancelPoll = nil
		}
		w.mu.Unlock()
		w.changed()

		if terminal {
			w.finish(taskID, testType, status)
			return
		}
	}
}

func (w *Wizard) finish(taskID string, testType TestType, status *agentapi.TaskStatus) {
	metrics.WizardRunsTotal.WithLabelValues(string(testType), string(status.Status)).Inc()
	w.logger.Info("Test finished", zap.String("task_id", taskID), zap.String("status", string(status.Status)))
	switch status.Status {
	case agentapi.StateCompleted:
		w.notifier.Toast(events.LevelSuccess, "Test completed successfully!")
	case agentapi.StateFailed:
		w.notifier.Toast(events.LevelError, "Test failed - check results for details")
	case agentapi.StateCancelled:
		w.notifier.Toast(events.LevelWarning, "Test was cancelled")
	}
}

func (w *Wizard) finishTimeout(run uint64, taskID string, testType TestType, timeout time.Duration) {
	w.mu.Lock()
	if run != w.run {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.step = StepResults
	w.cancelPoll = nil
	w.lastErr = fmt.Sprintf("task %s did not finish within %s", taskID, timeout)
	w.mu.Unlock()

	metrics.WizardRunsTotal.WithLabelValues(string(testType), "timeout").Inc()
	w.logger.Warn("Test polling timed out", zap.String("task_id", taskID), zap.Duration("timeout", timeout))
	w.notifier.Toast(events.LevelError, "Test did not finish in time")
	w.changed()
}

// Cancel cancels the running task on the backend, stops polling and returns to Options.
// On failure the run is left as it was. If the run finishes or is reset while
// the backend call is in flight, that outcome stands and ErrNoTask is returned.
func (w *Wizard) Cancel(ctx context.Context) error {
	w.mu.Lock()
	taskID := w.taskID
	running := w.running
	run := w.run
	testType := w.cfg.TestType
	w.mu.Unlock()
	if taskID == "" || !running {
		return ErrNoTask
	}

	if err := w.svc.CancelTask(ctx, taskID); err != nil {
		w.logger.Error("Failed to cancel test", zap.String("task_id", taskID), zap.Error(err))
		w.notifier.Toast(events.LevelError, "Failed to cancel test")
		return fmt.Errorf("cancel test: %w", err)
	}

	w.mu.Lock()
	if run != w.run || !w.running {
		w.mu.Unlock()
		w.logger.Info("Run ended before the cancel took effect", zap.String("task_id", taskID))
		return ErrNoTask
	}
	w.stopPollLocked()
	w.running = false
	w.taskID = ""
	w.status = nil
	w.lastErr = ""
	w.step = StepOptions
	w.mu.Unlock()

	metrics.WizardRunsTotal.WithLabelValues(string(testType), "cancelled").Inc()
	w.logger.Info("Test cancelled", zap.String("task_id", taskID))
	w.notifier.Toast(events.LevelSuccess, "Test cancelled")
	w.changed()
	return nil
}

// Reset stops any run and goes back to Configure, keeping the configuration.
func (w *Wizard) Reset() {
	w.mu.Lock()
	w.stopPollLocked()
	w.running = false
	w.taskID = ""
	w.status = nil
	w.lastErr = ""
	w.step = StepConfigure
	w.mu.Unlock()
	w.changed()
}

func (w *Wizard) stopPollLocked() {
	if w.cancelPoll != nil {
		w.cancelPoll()
		w.cancelPoll = nil
	}
	w.run++
}

func (w *Wizard) setStep(s Step) {
	w.mu.Lock()
	w.step = s
	w.lastErr = ""
	w.mu.Unlock()
	w.changed()
}

func (w *Wizard) fail(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
	w.notifier.Toast(events.LevelError, err.Error())
	w.changed()
}
