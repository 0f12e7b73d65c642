package main

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const noDataSnippet = `<p>no chart data yet</p>`

const chartPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>urlsentry charts</title>
    <script src="https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"></script>
</head>
<body style="background-color:#1a1a2e;color:#e0e0e0;">
    <div style="display: flex; flex-direction: column; align-items: center; gap: 2rem; width: 100%%; padding: 2rem 0;">
        %s
    </div>
</body>
</html>`

func createLineChart(seriesName string, coords []Coord) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemePurplePassion}),
	)
	items := make([]opts.LineData, 0)
	xAxis := []string{}
	smoothLine := opts.LineChart{Smooth: opts.Bool(true)}
	for _, c := range coords {
		xAxis = append(xAxis, time.Unix(c.Time, 0).Format("15:04:05"))
		items = append(items, opts.LineData{Value: c.Value})
	}

	line.SetXAxis(xAxis).
		AddSeries(seriesName, items).
		SetSeriesOptions(charts.WithLineChartOpts(smoothLine))
	return line
}

func renderCharts(coordinates map[string][]Coord) []byte {
	if len(coordinates) == 0 {
		return []byte(noDataSnippet)
	}
	var buf bytes.Buffer
	for k, v := range coordinates {
		chart := createLineChart(k, v)
		snippet := chart.RenderSnippet()
		buf.WriteString(snippet.Element)
		buf.WriteString(snippet.Script)
	}
	return buf.Bytes()
}

func (s *Server) ChartViewHandler(w http.ResponseWriter, r *http.Request) {
	s.Memory.RLock()
	defer s.Memory.RUnlock()
	fmt.Fprintf(w, chartPage, s.Cache.Charts)
}
