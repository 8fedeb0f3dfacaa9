package charts

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/browsertest/dashboard/internal/agentapi"
	"github.com/browsertest/dashboard/internal/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) SuccessRateChart(data []database.DataPoint) string {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Success Rate Trend"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "200px",
			Width:  "100%",
		}),
	)

	xAxis := make([]string, len(data))
	yAxis := make([]opts.LineData, len(data))
	for i, dp := range data {
		xAxis[i] = dp.Date.Format("Jan 02")
		yAxis[i] = opts.LineData{Value: dp.PassRate}
	}

	line.SetXAxis(xAxis).
		AddSeries("Success Rate %", yAxis).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	return g.renderToString(line)
}

// DurationChart plots average execution time (seconds) and run count per day.
func (g *Generator) DurationChart(data []database.DataPoint) string {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Execution Time Trend"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "200px",
			Width:  "100%",
		}),
	)

	xAxis := make([]string, len(data))
	avgData := make([]opts.BarData, len(data))
	countData := make([]opts.BarData, len(data))
	for i, dp := range data {
		xAxis[i] = dp.Date.Format("Jan 02")
		avgData[i] = opts.BarData{Value: dp.AvgDuration}
		countData[i] = opts.BarData{Value: dp.Count}
	}

	bar.SetXAxis(xAxis).
		AddSeries("Average (s)", avgData).
		AddSeries("Runs", countData)

	return g.renderToString(bar)
}

// StatusChart is a pie of task counts by state. States with no tasks are left out.
func (g *Generator) StatusChart(byState map[agentapi.TaskState]int) string {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Results by Status"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "240px",
			Width:  "100%",
		}),
	)

	var data []opts.PieData
	for _, state := range agentapi.TaskStates {
		if n := byState[state]; n > 0 {
			data = append(data, opts.PieData{Name: string(state), Value: n})
		}
	}
	pie.AddSeries("Status", data)

	return g.renderToString(pie)
}

func (g *Generator) Sparkline(values []float64) string {
	if len(values) < 2 {
		return ""
	}
	width := 100
	height := 30

	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min == max {
		max = min + 1
	}

	points := make([]string, len(values))
	for i, v := range values {
		x := float64(i) * float64(width) / float64(len(values)-1)
		y := float64(height) - ((v - min) / (max - min) * float64(height))
		points[i] = fmt.Sprintf("%.1f,%.1f", x, y)
	}

	return fmt.Sprintf(`<svg width="%d" height="%d" class="sparkline"><polyline points="%s" fill="none" stroke="currentColor" stroke-width="2"/></svg>`,
		width, height, strings.Join(points, " "))
}

// Renderer is anything that can render itself to an io.Writer.
type Renderer interface {
	Render(w io.Writer) error
}

func (g *Generator) renderToString(c Renderer) string {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}
