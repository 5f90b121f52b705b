package api

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/marvelmind/internal/export"
	"github.com/banshee-data/marvelmind/internal/httputil"
	"github.com/banshee-data/marvelmind/internal/units"
)

// handlePositionsChart renders the recorded XY history of every device as an
// HTML scatter, one series per address. Debug only.
// Query params:
//   - max_points (optional; default 2000) per device, newest kept
func (s *Server) handlePositionsChart(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	maxPoints, ok := httputil.QueryInt(r, "max_points", 2000, 1, maxHistoryLimit)
	if !ok {
		httputil.BadRequest(w, "invalid 'max_points' parameter")
		return
	}

	devs := s.state.Devices()
	addrs := make([]int, 0, len(devs))
	for _, d := range devs {
		addrs = append(addrs, int(d.Address()))
	}
	sort.Ints(addrs)

	scatter := charts.NewScatter()
	total := 0
	for _, a := range addrs {
		h := s.state.History(uint8(a))
		if len(h) > maxPoints {
			h = h[len(h)-maxPoints:]
		}
		if len(h) == 0 {
			continue
		}
		data := make([]opts.ScatterData, 0, len(h))
		for _, f := range h {
			data = append(data, opts.ScatterData{Value: []interface{}{
				units.FromMillimetres(f.Pos.X, s.units),
				units.FromMillimetres(f.Pos.Y, s.units),
				f.Quality,
			}})
		}
		total += len(data)
		scatter.AddSeries(fmt.Sprintf("#%03d", a), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Marvelmind positions", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Device positions", Subtitle: fmt.Sprintf("devices=%d points=%d seq=%d", len(addrs), total, s.state.Latest().Seq)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: fmt.Sprintf("X (%s)", s.units), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("Y (%s)", s.units), NameLocation: "middle", NameGap: 30}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrackPNG plots the in-memory history of one address.
func (s *Server) handleTrackPNG(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	addr, ok := queryAddress(w, r)
	if !ok {
		return
	}
	h := s.state.History(addr)
	if len(h) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no fixes for address %d", addr))
		return
	}
	pts := make([]export.TrackPoint, len(h))
	for i, f := range h {
		pts[i] = export.TrackPoint{X: f.Pos.X, Y: f.Pos.Y, Quality: f.Quality, At: f.At}
	}

	var buf bytes.Buffer
	if err := export.WriteTrackPNG(&buf, fmt.Sprintf("address %d", addr), pts, s.units); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
