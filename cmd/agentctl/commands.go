package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/format"
	"github.com/browsertest/dashboard/internal/livestatus"
	"github.com/browsertest/dashboard/internal/results"
)

func newSpinner(cmd *cobra.Command, suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	spin.Suffix = " " + suffix
	return spin
}

func (u *ui) state(s agentapi.TaskState) string {
	switch format.StatusColor(s) {
	case "success":
		return u.ok(s)
	case "error":
		return u.err(s)
	case "info":
		return u.info(s)
	case "warning":
		return u.warn(s)
	default:
		return string(s)
	}
}

func printTask(w io.Writer, u *ui, t agentapi.TaskStatus, now time.Time) {
	fmt.Fprintf(w, "%-14s %-10s %-8s %-14s %s\n",
		t.TaskID, u.state(t.Status), format.ExecutionTime(t.ExecutionTime),
		results.Classify(t).Label, u.dim(format.Relative(t.CreatedAt.Time, now)))
	if t.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", u.err("error:"), t.Error)
	}
}

func healthCmd(g *globals, u *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			spin := newSpinner(cmd, "Checking backend...")
			spin.Start()
			h, err := svc.HealthCheck(cmd.Context())
			spin.Stop()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			status := u.ok(h.Status)
			if h.Status != "healthy" {
				status = u.warn(h.Status)
			}
			fmt.Fprintf(out, "%s %s (version %s)\n", u.title("Backend:"), status, h.Version)
			names := make([]string, 0, len(h.Components))
			for name := range h.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-16s %s\n", name, h.Components[name])
			}
			return nil
		},
	}
}

func metricsCmd(g *globals, u *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show queue metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			m, err := svc.GetMetrics(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, u.title("Queue"))
			fmt.Fprintf(out, "  active     %d\n", m.ActiveTasks)
			fmt.Fprintf(out, "  pending    %d\n", m.PendingTasks)
			fmt.Fprintf(out, "  completed  %d\n", m.CompletedTasks)
			fmt.Fprintf(out, "  total      %d\n", m.TotalTasks)
			fmt.Fprintf(out, "  success    %s\n", format.Percent(m.SuccessRate))
			fmt.Fprintf(out, "  avg time   %.1fs\n", m.AverageExecutionTime)
			return nil
		},
	}
}

func tasksCmd(g *globals, u *ui) *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
	}

	active := &cobra.Command{
		Use:   "active",
		Short: "List running and pending tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			list, err := svc.GetActiveTasks(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), u.dim("No active tasks"))
				return nil
			}
			now := time.Now()
			for _, t := range list {
				printTask(cmd.OutOrStdout(), u, t, now)
			}
			return nil
		},
	}

	var limit int
	var status string
	completed := &cobra.Command{
		Use:   "completed",
		Short: "List finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			list, err := svc.GetCompletedTasks(cmd.Context(), limit)
			if err != nil {
				return err
			}
			list = results.Apply(list, results.Filter{Status: status})
			now := time.Now()
			for _, t := range list {
				printTask(cmd.OutOrStdout(), u, t, now)
			}
			s := results.Summarize(list)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d tasks, %s succeeded\n", u.title("Total:"), s.Total, format.Percent(s.SuccessRate))
			return nil
		},
	}
	completed.Flags().IntVar(&limit, "limit", agentapi.DefaultCompletedLimit, "Maximum number of tasks")
	completed.Flags().StringVar(&status, "status", results.StatusAll, "Only show tasks in this state")

	tasks.AddCommand(active, completed)
	return tasks
}

func taskCmd(g *globals, u *ui) *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Task operations",
	}

	status := &cobra.Command{
		Use:   "status <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			t, err := svc.GetTaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), u, *t, time.Now())
			if msg := t.ResultMessage(); msg != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", msg)
			}
			return nil
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			if err := svc.CancelTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Task cancelled: %s\n", u.ok("[OK]"), args[0])
			return nil
		},
	}

	task.AddCommand(status, cancel)
	return task
}

type submitOptions struct {
	testType      string
	url           string
	description   string
	browsers      []string
	formSelector  string
	noScreenshots bool
}

var submitTypes = []string{"enhanced", "web", "form", "performance", "cross_browser", "responsive"}

func submitTest(ctx context.Context, svc *agentapi.Service, o submitOptions) (*agentapi.TaskResponse, error) {
	if !format.IsValidURL(o.url) {
		return nil, fmt.Errorf("invalid url %q", o.url)
	}
	description := o.description
	if description == "" {
		description = "Test " + o.url
	}

	switch o.testType {
	case "enhanced":
		return svc.SubmitEnhancedTest(ctx, o.url, description, !o.noScreenshots)
	case "web":
		return svc.SubmitWebTest(ctx, o.url, []string{description})
	case "form":
		return svc.SubmitFormTest(ctx, o.url, o.formSelector)
	case "performance":
		return svc.SubmitPerformanceTest(ctx, o.url)
	case "cross_browser":
		return svc.SubmitCrossBrowserTest(ctx, o.url, description, o.browsers)
	case "responsive":
		return svc.SubmitResponsiveTest(ctx, o.url, nil)
	default:
		return nil, fmt.Errorf("unknown test type %q (one of %s)", o.testType, strings.Join(submitTypes, ", "))
	}
}

// waitFor polls taskID until it finishes, showing the latest state on the spinner.
func waitFor(cmd *cobra.Command, u *ui, svc *agentapi.Service, taskID string) error {
	spin := newSpinner(cmd, "Waiting for "+taskID+"...")
	spin.Start()
	final, err := svc.PollTaskUntilComplete(cmd.Context(), taskID, func(t agentapi.TaskStatus) {
		spin.Lock()
		spin.Suffix = fmt.Sprintf(" %s is %s", taskID, t.Status)
		spin.Unlock()
	})
	spin.Stop()
	if err != nil {
		if errors.Is(err, agentapi.ErrPollTimeout) {
			return fmt.Errorf("%w (the task keeps running; check it with `agentctl task status %s`)", err, taskID)
		}
		return err
	}

	out := cmd.OutOrStdout()
	printTask(out, u, *final, time.Now())
	if msg := final.ResultMessage(); msg != "" {
		fmt.Fprintf(out, "  %s\n", msg)
	}
	if final.Status != agentapi.StateCompleted {
		return fmt.Errorf("task %s %s", taskID, final.Status)
	}
	return nil
}

func submitCmd(g *globals, u *ui) *cobra.Command {
	var o submitOptions
	var wait bool

	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a browser test",
		Example: "agentctl submit --type cross_browser --url https://example.com --browsers chromium,firefox --wait",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			spin := newSpinner(cmd, "Submitting test...")
			spin.Start()
			resp, err := submitTest(cmd.Context(), svc, o)
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Task submitted: %s\n", u.ok("[OK]"), resp.TaskID)
			if !wait {
				return nil
			}
			return waitFor(cmd, u, svc, resp.TaskID)
		},
	}
	cmd.Flags().StringVar(&o.testType, "type", "enhanced", "Test type: "+strings.Join(submitTypes, "|"))
	cmd.Flags().StringVar(&o.url, "url", "", "Target URL")
	cmd.Flags().StringVar(&o.description, "description", "", "What the agent should test")
	cmd.Flags().StringSliceVar(&o.browsers, "browsers", nil, "Browsers for cross_browser tests (default chromium,firefox,webkit)")
	cmd.Flags().StringVar(&o.formSelector, "form-selector", "", "CSS selector of the form for form tests")
	cmd.Flags().BoolVar(&o.noScreenshots, "no-screenshots", false, "Disable screenshots for enhanced tests")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")
	cmd.MarkFlagRequired("url")
	return cmd
}

func scenariosCmd(g *globals, u *ui) *cobra.Command {
	scenarios := &cobra.Command{
		Use:   "scenarios",
		Short: "Predefined test scenarios",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			items, err := svc.GetScenarios(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range items {
				fmt.Fprintf(out, "%-16s %s %s\n", u.info(s.ID), s.Name, u.dim(fmt.Sprintf("(%s, %d actions)", s.ScenarioType, s.ActionsCount)))
				if s.Description != "" {
					fmt.Fprintf(out, "  %s\n", s.Description)
				}
			}
			return nil
		},
	}

	var url string
	var wait bool
	run := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.newService()
			if err != nil {
				return err
			}
			params := map[string]any{}
			if url != "" {
				params["url"] = url
			}
			resp, err := svc.RunScenario(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", u.ok("[OK]"), resp.Message, resp.TaskID)
			if !wait {
				return nil
			}
			return waitFor(cmd, u, svc, resp.TaskID)
		},
	}
	run.Flags().StringVar(&url, "url", "", "Override the scenario URL")
	run.Flags().BoolVar(&wait, "wait", false, "Wait for the task to finish")

	scenarios.AddCommand(list, run)
	return scenarios
}

func printMessage(w io.Writer, u *ui, msg livestatus.Message) {
	ts := msg.Timestamp.Format("15:04:05")
	if msg.Timestamp.IsZero() {
		ts = time.Now().Format("15:04:05")
	}
	switch msg.Type {
	case livestatus.TypeStatusUpdate:
		su, err := msg.StatusUpdate()
		if err != nil || su.QueueStatus == nil {
			fmt.Fprintf(w, "%s %s\n", u.dim(ts), msg.Type)
			return
		}
		q := su.QueueStatus
		fmt.Fprintf(w, "%s %s active=%d pending=%d completed=%d total=%d\n",
			u.dim(ts), u.info(msg.Type), q.ActiveTasks, q.PendingTasks, q.CompletedTasks, q.TotalTasks)
	default:
		fmt.Fprintf(w, "%s %s %s\n", u.dim(ts), u.info(msg.Type), msg.Message)
	}
}

func watchCmd(g *globals, u *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live status updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			conn := livestatus.New(g.wsURL)
			conn.OnStateChange(func(connected bool) {
				if connected {
					fmt.Fprintf(out, "%s connected to %s\n", u.ok("[LIVE]"), g.wsURL)
				} else {
					fmt.Fprintf(out, "%s disconnected, retrying in %s\n", u.warn("[LIVE]"), livestatus.ReconnectDelay)
				}
			})
			conn.Subscribe(func(msg livestatus.Message) {
				printMessage(out, u, msg)
			})

			if err := conn.Connect(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", u.warn("[LIVE]"), err)
			}
			<-ctx.Done()
			conn.Disconnect()
			return nil
		},
	}
}
