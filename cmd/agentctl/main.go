package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/api"
	"github.com/browsertest/dashboard/internal/config"
	"github.com/browsertest/dashboard/internal/logging"
)

type ui struct {
	title func(a ...interface{}) string
	ok    func(a ...interface{}) string
	info  func(a ...interface{}) string
	warn  func(a ...interface{}) string
	err   func(a ...interface{}) string
	dim   func(a ...interface{}) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// globals are the persistent flags shared by every command.
type globals struct {
	apiURL  string
	wsURL   string
	mock    bool
	timeout time.Duration
	verbose bool

	// set by newService; tests replace it
	service func() (*agentapi.Service, error)
}

func (g *globals) newService() (*agentapi.Service, error) {
	if g.service != nil {
		return g.service()
	}
	if g.mock {
		return agentapi.NewService(agentapi.NewMockClient()), nil
	}

	logger := zap.NewNop()
	if g.verbose {
		l, err := logging.New(true, "debug")
		if err != nil {
			return nil, err
		}
		logger = l
	}
	httpClient := api.New(g.apiURL, api.WithTimeout(g.timeout), api.WithLogger(logger))
	return agentapi.NewService(agentapi.NewRealClient(httpClient, logger)), nil
}

func newRootCmd(g *globals, ui *ui) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Browser test agent CLI",
		Long:  "agentctl submits browser tests to the agent backend and follows their progress.",
	}
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&g.apiURL, "api-url", g.apiURL, "Agent backend base URL")
	root.PersistentFlags().StringVar(&g.wsURL, "ws-url", g.wsURL, "Live status WebSocket URL")
	root.PersistentFlags().BoolVar(&g.mock, "mock", g.mock, "Use generated mock data instead of the backend")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", g.timeout, "Request timeout")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log every request")

	root.AddCommand(
		healthCmd(g, ui),
		metricsCmd(g, ui),
		tasksCmd(g, ui),
		taskCmd(g, ui),
		submitCmd(g, ui),
		scenariosCmd(g, ui),
		watchCmd(g, ui),
	)
	return root
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	g := &globals{
		apiURL:  cfg.APIURL,
		wsURL:   cfg.WSURL,
		mock:    cfg.UseMock,
		timeout: cfg.RequestTimeout,
	}
	ui := newUI()

	if err := newRootCmd(g, ui).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.err("[ERROR]"), err)
		os.Exit(1)
	}
}
