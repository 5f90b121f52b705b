package api

import (
	"math"
	"net/http"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/marvelmind/internal/httputil"
	"github.com/banshee-data/marvelmind/internal/tracker"
	"github.com/banshee-data/marvelmind/internal/units"
)

// AxisStats is the spread of one coordinate over a device's history.
type AxisStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// DeviceStats summarises the recorded fixes of one device.
type DeviceStats struct {
	Address     uint8     `json:"address"`
	Fixes       int       `json:"fixes"`
	X           AxisStats `json:"x"`
	Y           AxisStats `json:"y"`
	Z           AxisStats `json:"z"`
	MeanQuality float64   `json:"mean_quality"`
	RateHz      float64   `json:"rate_hz"`
}

func axisStats(v []float64) AxisStats {
	mean, std := stat.MeanStdDev(v, nil)
	if len(v) < 2 || math.IsNaN(std) {
		std = 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return AxisStats{Mean: mean, StdDev: std, Min: lo, Max: hi}
}

// Summarise computes DeviceStats for h in unit. h must not be empty.
func Summarise(address uint8, h []tracker.Fix, unit string) DeviceStats {
	xs := make([]float64, len(h))
	ys := make([]float64, len(h))
	zs := make([]float64, len(h))
	qs := make([]float64, len(h))
	for i, f := range h {
		xs[i] = units.FromMillimetres(f.Pos.X, unit)
		ys[i] = units.FromMillimetres(f.Pos.Y, unit)
		zs[i] = units.FromMillimetres(f.Pos.Z, unit)
		qs[i] = float64(f.Quality)
	}
	ds := DeviceStats{
		Address:     address,
		Fixes:       len(h),
		X:           axisStats(xs),
		Y:           axisStats(ys),
		Z:           axisStats(zs),
		MeanQuality: stat.Mean(qs, nil),
	}
	if span := h[len(h)-1].At.Sub(h[0].At).Seconds(); len(h) > 1 && span > 0 {
		ds.RateHz = float64(len(h)-1) / span
	}
	return ds
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGET(w, r) {
		return
	}
	out := []DeviceStats{}
	for _, d := range s.state.Devices() {
		h := s.state.History(d.Address())
		if len(h) == 0 {
			continue
		}
		out = append(out, Summarise(d.Address(), h, s.units))
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":   s.units,
		"devices": out,
	})
}
