package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"backtester/internal/data"
)

// KlineResp is the compact candle shape the chart front-end reads.
type KlineResp struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// handleHistory returns the base series, resampled when tf is given.
func (s *Server) handleHistory(c echo.Context) error {
	series := s.base
	if tf := c.QueryParam("tf"); tf != "" && tf != s.base.TF {
		var err error
		if series, err = data.Resample(s.base, tf); err != nil {
			return badRequest(c, []validationError{{Code: "ERR_TF", Field: "tf", Message: err.Error()}})
		}
	}
	out := make([]KlineResp, 0, series.Len())
	for _, b := range series.Bars {
		out = append(out, KlineResp{T: b.Ts.UnixMilli(), O: b.Open, H: b.High, L: b.Low, C: b.Close, V: b.Volume})
	}
	return respond(c, http.StatusOK, out)
}
