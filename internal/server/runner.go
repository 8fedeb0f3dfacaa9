package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/results"
	"github.com/browsertest/dashboard/internal/wizard"
)

// Browsers offered by the cross-browser options step.
var runnerBrowsers = []string{"chromium", "firefox", "webkit"}

func (s *Server) handleRunner(w http.ResponseWriter, r *http.Request) {
	s.renderRunner(w, r, nil)
}

func (s *Server) renderRunner(w http.ResponseWriter, r *http.Request, err error) {
	state := s.wizard.State()

	data := map[string]interface{}{
		"Title":      "Test Runner",
		"Page":       "runner",
		"State":      state,
		"Steps":      wizard.Steps(),
		"StepIndex":  int(state.Step),
		"TestTypes":  wizard.TestTypes,
		"AgentTypes": wizard.AgentTypes,
		"Browsers":   runnerBrowsers,
		"Scenarios":  nil,
		"Params":     "",
		"Detail":     nil,
		"Error":      "",
	}

	if len(state.Config.CustomParameters) > 0 {
		if b, mErr := json.MarshalIndent(state.Config.CustomParameters, "", "  "); mErr == nil {
			data["Params"] = string(b)
		}
	}

	scenarios, scErr := s.svc.GetScenarios(r.Context())
	if scErr != nil {
		s.logger.Warn("Error getting scenarios", zap.Error(scErr))
	} else {
		data["Scenarios"] = scenarios
	}

	if state.Status != nil {
		d := results.DecodeDetail(*state.Status)
		data["Detail"] = &d
	}

	if err != nil {
		data["Error"] = err.Error()
		var formErr *formError
		if errors.As(err, &formErr) {
			setMessage(w, formErr.Error())
		}
	} else if state.Error != "" {
		data["Error"] = state.Error
	}

	s.render(w, "runner.html", data)
}

// formError is a submitted form the wizard never saw because it did not parse.
type formError struct {
	msg string
}

func (e *formError) Error() string { return e.msg }

// applyForm merges the posted step form into the wizard configuration.
// Requests without a form marker leave the configuration untouched.
func (s *Server) applyForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return &formError{msg: "Invalid form submission"}
	}
	if r.PostForm.Get("form") == "" {
		return nil
	}
	cfg, err := configFromForm(r.PostForm, s.wizard.State().Config)
	if err != nil {
		return err
	}
	return s.wizard.SetConfig(cfg)
}

func configFromForm(form url.Values, cfg wizard.Config) (wizard.Config, error) {
	switch form.Get("form") {
	case "configure":
		if t := form.Get("test_type"); t != "" {
			cfg.TestType = wizard.TestType(t)
		}
		if a := form.Get("agent_type"); a != "" {
			cfg.AgentType = agentapi.AgentType(a)
		}
		cfg.URL = strings.TrimSpace(form.Get("url"))
		cfg.Description = strings.TrimSpace(form.Get("description"))
		cfg.ScenarioID = form.Get("scenario_id")
		cfg.TakeScreenshots = form.Get("take_screenshots") != ""

	case "options":
		cfg.Browsers = append([]string(nil), form["browsers"]...)

		names, widths, heights := form["viewport_name"], form["viewport_width"], form["viewport_height"]
		cfg.Viewports = nil
		for i, name := range names {
			name = strings.TrimSpace(name)
			width, _ := strconv.Atoi(valueAt(widths, i))
			height, _ := strconv.Atoi(valueAt(heights, i))
			if name == "" && width == 0 && height == 0 {
				continue
			}
			cfg.Viewports = append(cfg.Viewports, agentapi.Viewport{Name: name, Width: width, Height: height})
		}

		cfg.CustomParameters = map[string]any{}
		if raw := strings.TrimSpace(form.Get("custom_parameters")); raw != "" {
			if err := json.Unmarshal([]byte(raw), &cfg.CustomParameters); err != nil {
				return cfg, &formError{msg: "Custom parameters must be a JSON object"}
			}
		}
	}
	return cfg, nil
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return strings.TrimSpace(values[i])
	}
	return ""
}

func (s *Server) handleRunnerConfig(w http.ResponseWriter, r *http.Request) {
	s.renderRunner(w, r, s.applyForm(r))
}

func (s *Server) handleRunnerNext(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		s.renderRunner(w, r, err)
		return
	}
	s.renderRunner(w, r, s.wizard.Next(r.Context()))
}

func (s *Server) handleRunnerBack(w http.ResponseWriter, r *http.Request) {
	s.renderRunner(w, r, s.wizard.Back())
}

func (s *Server) handleRunnerExecute(w http.ResponseWriter, r *http.Request) {
	if err := s.applyForm(r); err != nil {
		s.renderRunner(w, r, err)
		return
	}
	s.renderRunner(w, r, s.wizard.Execute(r.Context()))
}

func (s *Server) handleRunnerCancel(w http.ResponseWriter, r *http.Request) {
	s.renderRunner(w, r, s.wizard.Cancel(r.Context()))
}

func (s *Server) handleRunnerReset(w http.ResponseWriter, r *http.Request) {
	s.wizard.Reset()
	s.renderRunner(w, r, nil)
}
