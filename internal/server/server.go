package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/api"
	"github.com/browsertest/dashboard/internal/charts"
	"github.com/browsertest/dashboard/internal/database"
	"github.com/browsertest/dashboard/internal/events"
	"github.com/browsertest/dashboard/internal/format"
	"github.com/browsertest/dashboard/internal/results"
	"github.com/browsertest/dashboard/internal/tracker"
	"github.com/browsertest/dashboard/internal/wizard"
)

// Refresher reloads the dashboard board on demand.
type Refresher interface {
	Refresh(ctx context.Context, trigger string) error
}

type Server struct {
	svc       *agentapi.Service
	db        database.Database
	board     *tracker.Board
	hub       *events.Hub
	wizard    *wizard.Wizard
	refresher Refresher
	charts    *charts.Generator
	logger    *zap.Logger
	version   string
	accessLog *httplog.Options
	templates map[string]*template.Template
	rootDir   string
	now       func() time.Time
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l.Named("server")
		}
	}
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// WithAccessLog enables per-request logging through httplog. The entries are
// re-emitted through the server's zap logger.
func WithAccessLog(enabled bool) Option {
	return func(s *Server) {
		if !enabled {
			s.accessLog = nil
			return
		}
		// JSON lines so accessLogWriter can decode them
		s.accessLog = &httplog.Options{JSON: true}
	}
}

func NewServer(svc *agentapi.Service, db database.Database, board *tracker.Board, hub *events.Hub, wiz *wizard.Wizard, rootDir string, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		db:      db,
		board:   board,
		hub:     hub,
		wizard:  wiz,
		charts:  charts.NewGenerator(),
		logger:  zap.NewNop(),
		version: "dev",
		rootDir: rootDir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Load templates - each page needs its own template that includes layout
	templatesDir := filepath.Join(rootDir, "web/templates")
	s.templates = make(map[string]*template.Template)

	// List of page templates (each defines "content")
	pages := []string{
		"dashboard.html",
		"agents.html",
		"runner.html",
		"results.html",
		"result_detail.html",
	}

	layoutPath := filepath.Join(templatesDir, "layout.html")
	partialsPath := filepath.Join(templatesDir, "partials.html")
	for _, page := range pages {
		pagePath := filepath.Join(templatesDir, page)
		t := template.Must(template.New(page).Funcs(s.funcs()).ParseFiles(layoutPath, partialsPath, pagePath))
		s.templates[page] = t
	}

	return s
}

func (s *Server) funcs() template.FuncMap {
	return template.FuncMap{
		"execTime":    format.ExecutionTime,
		"duration":    format.Duration,
		"percent":     format.Percent,
		"statusColor": format.StatusColor,
		"agentName":   format.AgentTypeName,
		"kind":        results.Classify,
		"ago": func(t time.Time) string {
			return format.Relative(t, s.now())
		},
		"add": func(a, b int) int { return a + b },
		"pageQuery": func(q results.Query, page int) template.URL {
			return template.URL("?" + q.Values(page).Encode())
		},
		"has": func(list []string, v string) bool {
			for _, item := range list {
				if item == v {
					return true
				}
			}
			return false
		},
		"json": func(v any) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return ""
			}
			return string(b)
		},
		"safe": func(html string) template.HTML { return template.HTML(html) },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if s.accessLog != nil {
		logger := httplog.NewLogger("dashboard", *s.accessLog).Output(accessLogWriter{s.logger.Named("http")})
		r.Use(httplog.RequestLogger(logger))
	}

	// Static files
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(s.rootDir, "web/static")))))
	r.Handle("/metrics", promhttp.Handler())

	// Pages
	r.Get("/", s.handleDashboard)
	r.Post("/refresh", s.handleRefresh)
	r.Get("/agents", s.handleAgents)
	r.Get("/results", s.handleResults)
	r.Get("/results/{id}", s.handleResultDetail)

	r.Route("/runner", func(r chi.Router) {
		r.Get("/", s.handleRunner)
		r.Post("/config", s.handleRunnerConfig)
		r.Post("/next", s.handleRunnerNext)
		r.Post("/back", s.handleRunnerBack)
		r.Post("/execute", s.handleRunnerExecute)
		r.Post("/cancel", s.handleRunnerCancel)
		r.Post("/reset", s.handleRunnerReset)
	})

	// Server-sent events
	r.Get("/events", s.handleEvents)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboardAPI)
		r.Get("/tasks/{id}", s.handleTaskAPI)
		r.Get("/scenarios", s.handleScenariosAPI)
		r.Get("/health", s.handleHealthAPI)
		r.Get("/history", s.handleHistoryAPI)
	})

	return r
}

const historyDays = 14

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.board.Snapshot()
	if snap.LastUpdated.IsZero() && s.refresher != nil {
		if err := s.refresher.Refresh(r.Context(), "manual"); err != nil {
			s.logger.Warn("initial dashboard load failed", zap.Error(err))
		}
		snap = s.board.Snapshot()
	}

	data := map[string]interface{}{
		"Title":         "Real-Time Dashboard",
		"Page":          "dashboard",
		"Snapshot":      snap,
		"Trends":        nil,
		"Executions":    nil,
		"Sparkline":     template.HTML(""),
		"SuccessChart":  template.HTML(""),
		"DurationChart": template.HTML(""),
		"StatusChart":   template.HTML(""),
		"Error":         nil,
	}

	trends, err := s.db.GetTrends(7)
	if err != nil {
		s.logger.Error("Error getting trends", zap.Error(err))
		data["Error"] = fmt.Sprintf("Could not load trend data: %v", err)
	} else {
		data["Trends"] = trends
	}

	points, err := s.db.GetDailyMetrics(historyDays)
	if err != nil {
		s.logger.Error("Error getting daily metrics", zap.Error(err))
	} else if len(points) > 0 {
		counts := make([]float64, len(points))
		for i, p := range points {
			counts[i] = float64(p.Count)
		}
		data["Sparkline"] = template.HTML(s.charts.Sparkline(counts))
		data["SuccessChart"] = template.HTML(s.charts.SuccessRateChart(points))
		data["DurationChart"] = template.HTML(s.charts.DurationChart(points))
	}

	if len(snap.Recent) > 0 {
		summary := results.Summarize(snap.Recent)
		data["StatusChart"] = template.HTML(s.charts.StatusChart(summary.ByState))
	}

	executions, err := s.svc.GetRecentExecutions(r.Context(), 5)
	if err != nil {
		s.logger.Warn("Error getting recent executions", zap.Error(err))
	} else {
		data["Executions"] = executions
	}

	s.render(w, "dashboard.html", data)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		http.Error(w, "Refresh not available", http.StatusServiceUnavailable)
		return
	}
	// failures are already toasted over the event stream
	if err := s.refresher.Refresh(r.Context(), "manual"); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	setMessage(w, "Dashboard refreshed")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	agents := agentapi.MockAgents(now)
	counts := map[agentapi.AgentStatus]int{}
	for _, a := range agents {
		counts[a.Status]++
	}

	data := map[string]interface{}{
		"Title":   "Agents",
		"Page":    "agents",
		"Agents":  agents,
		"Idle":    counts[agentapi.AgentIdle],
		"Running": counts[agentapi.AgentRunning],
		"Errored": counts[agentapi.AgentError],
		"Results": agentapi.MockTestResults(now),
	}

	s.render(w, "agents.html", data)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := results.ParseQuery(r.URL.Query())

	data := map[string]interface{}{
		"Title":     "Test Results",
		"Page":      "results",
		"Query":     q,
		"States":    agentapi.TaskStates,
		"PageSizes": results.PageSizes,
		"Notice":    "",
	}

	tasks, err := s.svc.GetAllCompletedTasks(r.Context())
	if err != nil {
		s.logger.Error("Error getting completed tasks", zap.Error(err))
		stored, dbErr := s.db.ListTasks(0)
		if dbErr != nil {
			s.logger.Error("Error reading task history", zap.Error(dbErr))
		}
		tasks = stored
		data["Notice"] = api.Notice(err) + " Showing stored history."
	}

	filtered := results.Apply(tasks, q.Filter)
	summary := results.Summarize(filtered)
	data["Summary"] = summary
	data["Results"] = results.Paginate(filtered, q.Page, q.Size)
	data["StatusChart"] = template.HTML("")
	if summary.Total > 0 {
		data["StatusChart"] = template.HTML(s.charts.StatusChart(summary.ByState))
	}

	s.render(w, "results.html", data)
}

func (s *Server) handleResultDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.svc.GetTaskStatus(r.Context(), id)
	if err != nil {
		stored, dbErr := s.db.GetTask(id)
		if dbErr != nil {
			s.logger.Warn("Error getting task", zap.String("task_id", id), zap.Error(err))
			if api.IsNotFound(err) {
				http.Error(w, "Task not found", http.StatusNotFound)
				return
			}
			http.Error(w, api.Notice(err), http.StatusBadGateway)
			return
		}
		task = stored
	}

	data := map[string]interface{}{
		"Title":  "Result " + task.TaskID,
		"Page":   "results",
		"Task":   task,
		"Kind":   results.Classify(*task),
		"Detail": results.DecodeDetail(*task),
	}

	s.render(w, "result_detail.html", data)
}

func (s *Server) render(w http.ResponseWriter, page string, data map[string]interface{}) {
	t, ok := s.templates[page]
	if !ok {
		s.logger.Error("Template not found", zap.String("page", page))
		http.Error(w, "Page not found", http.StatusNotFound)
		return
	}
	data["Version"] = s.version
	data["Connected"] = s.board.Connected()

	w.Header().Set("Content-Type", "text/html")
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		s.logger.Error("Template error", zap.String("page", page), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// setMessage asks htmx to show a toast once the response is swapped in.
func setMessage(w http.ResponseWriter, msg string) {
	b, err := json.Marshal(map[string]string{"showMessage": msg})
	if err != nil {
		return
	}
	w.Header().Set("HX-Trigger", string(b))
}
