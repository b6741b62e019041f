package web

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"backtester/internal/optimizer"
)

type axisReq struct {
	Name   string   `json:"name" validate:"required"`
	Values []string `json:"values" validate:"min=1"`
}

type sweepReq struct {
	Strategy    string    `json:"strategy" default:"trend" validate:"oneof=crossover trend ma_cross ma_cross_trend"`
	RankBy      string    `json:"rankBy" default:"total_return" validate:"oneof=total_return final_value buy_hold_excess win_rate profit_factor"`
	Workers     int       `json:"workers" default:"2" validate:"gte=1,lte=32"`
	InitialCash float64   `json:"initialCash" default:"100000" validate:"gt=0"`
	Commission  float64   `json:"commission" default:"0.001" validate:"gte=0,lt=1"`
	Grid        []axisReq `json:"grid" validate:"dive"` // empty: default grid
}

func (r sweepReq) grid() optimizer.Grid {
	if len(r.Grid) == 0 {
		return optimizer.DefaultGrid()
	}
	g := optimizer.Grid{}
	for _, ax := range r.Grid {
		g.Axes = append(g.Axes, optimizer.Axis{Name: ax.Name, Values: ax.Values})
	}
	return g
}

type sweepResp struct {
	ID        string            `json:"id"`
	Report    optimizer.Report  `json:"report"`
	Artifacts map[string]string `json:"artifacts"`
}

// handleSweep runs the sweep inside the request and streams per-experiment
// progress to SSE subscribers.
func (s *Server) handleSweep(c echo.Context) error {
	req := &sweepReq{
		Strategy:    s.opts.Strategy,
		RankBy:      s.opts.RankBy,
		Workers:     s.opts.Workers,
		InitialCash: s.opts.InitialCash,
		Commission:  s.opts.Commission,
	}
	if verr := bindRequest(c, req); verr != nil {
		return badRequest(c, verr)
	}
	grid := req.grid()
	if err := grid.Validate(); err != nil {
		return badRequest(c, []validationError{{Code: "ERR_GRID", Field: "grid", Message: err.Error()}})
	}

	id := "sw_" + uuid.NewString()
	observer := func(ev optimizer.Event) { s.hub.Publish(Event{Type: "experiment", Data: ev}) }
	run := s.runner(req.Strategy, req.RankBy, req.Workers, req.InitialCash, req.Commission, false, observer)
	rep, err := run.Run(c.Request().Context(), s.base, grid)
	if err != nil {
		s.opts.Logger.Error().Err(err).Msg("sweep failed")
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	s.hub.Publish(Event{Type: "sweep", Data: map[string]any{"id": id, "ok": len(rep.Experiments), "skipped": len(rep.Skipped), "failed": len(rep.Failed)}})

	dir := filepath.Join(s.opts.ArtifactDir, id)
	paths, err := rep.WriteArtifacts(dir)
	if err != nil {
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	files := map[string]string{}
	for _, p := range paths {
		files[filepath.Base(p)] = p
	}
	a, err := s.bundle(id, dir, files)
	if err != nil {
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	return ok(c, sweepResp{ID: id, Report: rep, Artifacts: links(id, a)})
}

func itoa(n int) string { return strconv.Itoa(n) }
