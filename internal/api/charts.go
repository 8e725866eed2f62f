package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/trafficvitals/tvsi/internal/engine"
)

// indexChart renders an HTML line chart of the recent TVSI series for
// one stream, with the raw flow series on a second axis for context.
// Query params:
//   - stream (required)
//   - minutes (optional; default 60)
func (s *Server) indexChart(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("stream")
	if streamID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'stream' parameter")
		return
	}

	minutes := 60
	if m := r.URL.Query().Get("minutes"); m != "" {
		if parsed, err := strconv.Atoi(m); err == nil && parsed >= 1 {
			minutes = parsed
		}
	}

	since := time.Now().Add(-time.Duration(minutes) * time.Minute)
	samples, err := s.db.IndexSamples(streamID, since, 2000)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get index samples: %v", err))
		return
	}
	if len(samples) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no index samples for stream")
		return
	}

	x := make([]string, 0, len(samples))
	tvsi := make([]opts.LineData, 0, len(samples))
	flow := make([]opts.LineData, 0, len(samples))
	var states []string
	for _, sample := range samples {
		x = append(x, sample.Timestamp.Format("15:04:05"))
		if sample.WarmingUp {
			// Gap in the TVSI series instead of a fabricated zero.
			tvsi = append(tvsi, opts.LineData{Value: nil})
		} else {
			tvsi = append(tvsi, opts.LineData{Value: sample.TVSI})
		}
		flow = append(flow, opts.LineData{Value: sample.Flow})
		states = append(states, string(sample.State))
	}

	latestState := states[len(states)-1]

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Traffic Stability Index", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Traffic Stability Index",
			Subtitle: fmt.Sprintf("stream=%s windows=%d latest=%s", streamID, len(samples), latestState),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: -1, Max: 1, Name: "TVSI"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "flow (vehicles/window)", Type: "value"})

	line.SetXAxis(x).
		AddSeries("tvsi", tvsi, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("flow", flow,
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}),
		)

	markLines := severityBands()
	line.SetSeriesOptions(charts.WithMarkLineNameYAxisItemOpts(markLines...))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// severityBands returns horizontal marker lines at the state thresholds.
func severityBands() []opts.MarkLineNameYAxisItem {
	t := engine.DefaultThresholds()
	return []opts.MarkLineNameYAxisItem{
		{Name: "optimal", YAxis: t.OptimalAbove},
		{Name: "caution", YAxis: t.CautionAbove},
		{Name: "warning", YAxis: t.WarningAbove},
		{Name: "severe", YAxis: t.SevereAbove},
	}
}
