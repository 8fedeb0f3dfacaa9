package results

import (
	"encoding/json"
	"sort"

	"github.com/browsertest/dashboard/internal/agentapi"
)

type BrowserResult struct {
	Browser       string         `json:"browser"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime *float64       `json:"execution_time,omitempty"`
	Timestamp     *agentapi.Time `json:"timestamp,omitempty"`
}

type CrossBrowserSummary struct {
	TotalBrowsersTested int      `json:"total_browsers_tested"`
	SuccessfulTests     int      `json:"successful_tests"`
	SuccessRate         float64  `json:"success_rate"`
	BrowsersTested      []string `json:"browsers_tested"`
	FailedBrowsers      []string `json:"failed_browsers"`
}

type CrossBrowser struct {
	Results []BrowserResult // sorted by browser name
	Summary *CrossBrowserSummary
}

type Responsive struct {
	Status    string
	Viewports []agentapi.Viewport
}

type Performance struct {
	URL               string
	TestExecutionTime *float64
	PageLoadTime      *float64
	DOMReadyTime      *float64
}

// Detail is the typed view of a task's free-form result payload. Sections the
// payload does not carry are nil.
type Detail struct {
	Message      string
	Actions      []string
	Screenshots  []string
	CrossBrowser *CrossBrowser
	Responsive   *Responsive
	Performance  *Performance
	Raw          string
}

type rawResult struct {
	Message             string                   `json:"message"`
	Status              string                   `json:"status"`
	URL                 string                   `json:"url"`
	ActionsPerformed    []string                 `json:"actions_performed"`
	Screenshots         []string                 `json:"screenshots"`
	CrossBrowserResults map[string]BrowserResult `json:"cross_browser_results"`
	Summary             *CrossBrowserSummary     `json:"summary"`
	ResponsiveResults   []agentapi.Viewport      `json:"responsive_results"`
	ViewportsTested     []agentapi.Viewport      `json:"viewports_tested"`
	TestExecutionTime   *float64                 `json:"test_execution_time"`
	PerformanceMetrics  *struct {
		PageLoadTime *float64 `json:"page_load_time"`
		DOMReadyTime *float64 `json:"dom_ready_time"`
	} `json:"performance_metrics"`
}

// DecodeDetail decodes the known sections of t.Result. Parts with an
// unexpected shape are skipped; the raw payload is always kept.
func DecodeDetail(t agentapi.TaskStatus) Detail {
	var d Detail
	if len(t.Result) == 0 {
		return d
	}

	data, err := json.Marshal(t.Result)
	if err != nil {
		return d
	}
	if pretty, err := json.MarshalIndent(t.Result, "", "  "); err == nil {
		d.Raw = string(pretty)
	}

	var raw rawResult
	if err := json.Unmarshal(data, &raw); err != nil {
		// fall back to the loosely typed fields
		d.Message = t.ResultMessage()
		return d
	}

	d.Message = raw.Message
	d.Actions = raw.ActionsPerformed
	d.Screenshots = raw.Screenshots

	if len(raw.CrossBrowserResults) > 0 {
		cb := &CrossBrowser{Summary: raw.Summary}
		for name, r := range raw.CrossBrowserResults {
			if r.Browser == "" {
				r.Browser = name
			}
			cb.Results = append(cb.Results, r)
		}
		sort.Slice(cb.Results, func(i, j int) bool { return cb.Results[i].Browser < cb.Results[j].Browser })
		d.CrossBrowser = cb
	}

	viewports := raw.ResponsiveResults
	if len(viewports) == 0 {
		viewports = raw.ViewportsTested
	}
	if len(viewports) > 0 {
		d.Responsive = &Responsive{Status: raw.Status, Viewports: viewports}
	}

	if raw.PerformanceMetrics != nil || raw.TestExecutionTime != nil {
		p := &Performance{URL: raw.URL, TestExecutionTime: raw.TestExecutionTime}
		if raw.PerformanceMetrics != nil {
			p.PageLoadTime = raw.PerformanceMetrics.PageLoadTime
			p.DOMReadyTime = raw.PerformanceMetrics.DOMReadyTime
		}
		d.Performance = p
	}
	return d
}
