package web

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"backtester/internal/backtest"
	"backtester/internal/export"
	"backtester/internal/optimizer"
)

type btReq struct {
	Strategy    string  `json:"strategy" default:"trend" validate:"oneof=crossover trend ma_cross ma_cross_trend"`
	Timeframe   string  `json:"timeframe" default:"1h" validate:"required"`
	Short       int     `json:"short" default:"10" validate:"gte=1"`
	Long        int     `json:"long" default:"30" validate:"gte=1"`
	Trend       int     `json:"trend" default:"200" validate:"gte=1"`
	InitialCash float64 `json:"initialCash" default:"100000" validate:"gt=0"`
	Commission  float64 `json:"commission" default:"0.001" validate:"gte=0,lt=1"`
}

func (r btReq) params() optimizer.ParamSet {
	return optimizer.ParamSet{
		{Name: optimizer.ParamTimeframe, Value: r.Timeframe},
		{Name: optimizer.ParamShort, Value: itoa(r.Short)},
		{Name: optimizer.ParamLong, Value: itoa(r.Long)},
		{Name: optimizer.ParamTrend, Value: itoa(r.Trend)},
	}
}

type btResp struct {
	ID          string            `json:"id"`
	Summary     backtest.Summary  `json:"summary"`
	BeatBuyHold bool              `json:"beatBuyHold"`
	Artifacts   map[string]string `json:"artifacts"`
}

func (s *Server) handleBacktest(c echo.Context) error {
	req := &btReq{Strategy: s.opts.Strategy, InitialCash: s.opts.InitialCash, Commission: s.opts.Commission}
	if verr := bindRequest(c, req); verr != nil {
		return badRequest(c, verr)
	}
	ps := req.params()
	run := s.runner(req.Strategy, "", 1, req.InitialCash, req.Commission, true, nil)
	sig, res, err := run.Backtest(s.base, ps)
	if errors.Is(err, optimizer.ErrInsufficientHistory) {
		return respond(c, http.StatusUnprocessableEntity, err.Error())
	}
	if err != nil {
		s.opts.Logger.Error().Err(err).Str("params", ps.Key()).Msg("backtest failed")
		return respond(c, http.StatusInternalServerError, err.Error())
	}

	id := "bt_" + uuid.NewString()
	dir := filepath.Join(s.opts.ArtifactDir, id)
	files, err := backtest.WriteArtifacts(dir, "Backtest "+ps.Label(), sig, res)
	if err != nil {
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	a, err := s.bundle(id, dir, files)
	if err != nil {
		return respond(c, http.StatusInternalServerError, err.Error())
	}
	return ok(c, btResp{
		ID:          id,
		Summary:     res.Summary,
		BeatBuyHold: res.Summary.BeatBuyHold(),
		Artifacts:   links(id, a),
	})
}

// bundle zips the files of one run and registers them for download.
func (s *Server) bundle(id, dir string, files map[string]string) (artifact, error) {
	zipPath := filepath.Join(dir, "report.zip")
	if err := export.ZipFiles(zipPath, files); err != nil {
		return artifact{}, err
	}
	a := artifact{dir: dir, files: files, zip: zipPath}
	s.register(id, a)
	return a, nil
}

func links(id string, a artifact) map[string]string {
	out := map[string]string{"zip": "/api/export?id=" + id}
	for name := range a.files {
		out[name] = "/api/file?id=" + id + "&name=" + name
	}
	return out
}

func (s *Server) handleExport(c echo.Context) error {
	a, found := s.lookup(c.QueryParam("id"))
	if !found {
		return respond(c, http.StatusNotFound, "unknown id")
	}
	return c.Attachment(a.zip, "report.zip")
}

// handleFile serves one registered artifact; arbitrary paths are refused.
func (s *Server) handleFile(c echo.Context) error {
	id, name := c.QueryParam("id"), c.QueryParam("name")
	if id == "" || name == "" {
		return badRequest(c, "id and name are required")
	}
	a, found := s.lookup(id)
	if !found {
		return respond(c, http.StatusNotFound, "unknown id")
	}
	path, found := a.files[name]
	if !found {
		return respond(c, http.StatusNotFound, "unknown file")
	}
	return c.File(path)
}
