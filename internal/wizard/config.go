package wizard

import (
	"fmt"
	"strings"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/format"
)

type Step int

const (
	StepConfigure Step = iota
	StepOptions
	StepExecute
	StepResults
)

var stepNames = []string{"Configure Test", "Select Options", "Execute", "Results"}

// Steps lists the step titles in order.
func Steps() []string {
	return append([]string(nil), stepNames...)
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

type TestType string

const (
	TestCustom       TestType = "custom"
	TestScenario     TestType = "scenario"
	TestCrossBrowser TestType = "cross_browser"
	TestResponsive   TestType = "responsive"
	TestPerformance  TestType = "performance"
)

// TestTypes lists the selectable test types in display order.
var TestTypes = []TestType{TestCustom, TestScenario, TestCrossBrowser, TestResponsive, TestPerformance}

var testTypeLabels = map[TestType]string{
	TestCustom:       "Custom Test",
	TestScenario:     "Predefined Scenario",
	TestCrossBrowser: "Cross-Browser Test",
	TestResponsive:   "Responsive Design Test",
	TestPerformance:  "Performance Test",
}

func (t TestType) Label() string {
	if l, ok := testTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (t TestType) Valid() bool {
	for _, v := range TestTypes {
		if v == t {
			return true
		}
	}
	return false
}

// AgentTypes are the agents a custom test can target.
var AgentTypes = []agentapi.AgentType{
	agentapi.AgentEnhancedTest,
	agentapi.AgentWebTest,
	agentapi.AgentFormTest,
	agentapi.AgentPerformanceTest,
}

// Config is everything the user picks before a run.
type Config struct {
	TestType         TestType            `json:"test_type"`
	AgentType        agentapi.AgentType  `json:"agent_type"`
	URL              string              `json:"url"`
	Description      string              `json:"description"`
	TakeScreenshots  bool                `json:"take_screenshots"`
	ScenarioID       string              `json:"scenario_id,omitempty"`
	Browsers         []string            `json:"browsers"`
	Viewports        []agentapi.Viewport `json:"viewports"`
	CustomParameters map[string]any      `json:"custom_parameters,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		TestType:        TestCustom,
		AgentType:       agentapi.AgentEnhancedTest,
		TakeScreenshots: true,
		Browsers:        []string{"chromium"},
		Viewports: []agentapi.Viewport{
			{Width: 1920, Height: 1080, Name: "Desktop Large"},
			{Width: 768, Height: 1024, Name: "Tablet"},
			{Width: 375, Height: 667, Name: "Mobile"},
		},
		CustomParameters: map[string]any{},
	}
}

func (c Config) clone() Config {
	out := c
	out.Browsers = append([]string(nil), c.Browsers...)
	out.Viewports = append([]agentapi.Viewport(nil), c.Viewports...)
	out.CustomParameters = make(map[string]any, len(c.CustomParameters))
	for k, v := range c.CustomParameters {
		out.CustomParameters[k] = v
	}
	return out
}

// ValidationError blocks a step transition.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ValidateConfigure checks the first step's fields.
func (c Config) ValidateConfigure() error {
	url := strings.TrimSpace(c.URL)
	if url == "" {
		return invalid("url", "URL is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return invalid("url", "URL must start with http:// or https://")
	}
	if !format.IsValidURL(url) {
		return invalid("url", "URL is not valid")
	}
	if !c.TestType.Valid() {
		return invalid("test_type", fmt.Sprintf("Unknown test type %q", c.TestType))
	}
	if c.TestType == TestScenario && c.ScenarioID == "" {
		return invalid("scenario_id", "Please select a scenario")
	}
	if strings.TrimSpace(c.Description) == "" {
		return invalid("description", "Test description is required")
	}
	return nil
}

// ValidateOptions checks the option step for the selected test type.
func (c Config) ValidateOptions() error {
	switch c.TestType {
	case TestCrossBrowser:
		if len(c.Browsers) == 0 {
			return invalid("browsers", "Select at least one browser")
		}
	case TestResponsive:
		if len(c.Viewports) == 0 {
			return invalid("viewports", "Add at least one viewport")
		}
		for _, vp := range c.Viewports {
			if vp.Width <= 0 || vp.Height <= 0 {
				return invalid("viewports", "Viewport dimensions must be positive")
			}
		}
	}
	return nil
}
