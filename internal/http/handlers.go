package http

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hapticd/internal/bundle"
	"github.com/fyrsmithlabs/hapticd/internal/generate"
	"github.com/fyrsmithlabs/hapticd/internal/ingest"
	"github.com/fyrsmithlabs/hapticd/internal/logging"
	"github.com/fyrsmithlabs/hapticd/internal/pattern"
	"github.com/fyrsmithlabs/hapticd/internal/rules"
)

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Version: s.config.Version}
	if s.deps.Telemetry != nil {
		h := s.deps.Telemetry.Health()
		resp.Telemetry = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRules(c echo.Context) error {
	list, err := s.deps.Store.List(c.Request().Context())
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, RulesResponse{Rules: list})
}

func (s *Server) handleGetAppRule(c echo.Context) error {
	rule, err := s.deps.Store.Get(c.Request().Context(), rules.App(c.Param("package")))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

// handlePutAppRule saves the app rule. A blank pattern deletes it.
func (s *Server) handlePutAppRule(c echo.Context) error {
	var req AppRuleRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid app rule request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rule, err := s.deps.Store.Put(c.Request().Context(), rules.App(c.Param("package")),
		rules.Input{Pattern: req.Pattern, Name: req.Name})
	if err != nil {
		return s.httpError(c, err)
	}
	if rule == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDeleteAppRule(c echo.Context) error {
	if err := s.deps.Store.Delete(c.Request().Context(), rules.App(c.Param("package"))); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListSenderRules(c echo.Context) error {
	list, err := s.deps.Store.SenderRules(c.Request().Context(), c.Param("package"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, RulesResponse{Rules: list})
}

// handlePutSenderRule saves the sender rule keyed by the request's sender
// string. A blank pattern deletes it.
func (s *Server) handlePutSenderRule(c echo.Context) error {
	var req SenderRuleRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid sender rule request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	key := rules.Sender(c.Param("package"), req.Sender)
	rule, err := s.deps.Store.Put(c.Request().Context(), key, rules.Input{
		Pattern: req.Pattern,
		Name:    req.Name,
		Senders: req.Sender,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	if rule == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) handleGetSenderRule(c echo.Context) error {
	key := rules.Sender(c.Param("package"), c.Param("token"))
	rule, err := s.deps.Store.Get(c.Request().Context(), key)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rule)
}

func (s *Server) handleDeleteSenderRule(c echo.Context) error {
	key := rules.Sender(c.Param("package"), c.Param("token"))
	if err := s.deps.Store.Delete(c.Request().Context(), key); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGetMute(c echo.Context) error {
	pkg := c.Param("package")
	muted, err := s.deps.Store.Mute(c.Request().Context(), pkg)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rules.AppSettings{Package: pkg, MuteWhenNoSenderMatch: muted})
}

func (s *Server) handlePutMute(c echo.Context) error {
	var req MuteRequest
	if err := c.Bind(&req); err != nil || req.MuteWhenNoSenderMatch == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "mute_when_no_sender_match is required")
	}

	pkg := c.Param("package")
	if err := s.deps.Store.SetMute(c.Request().Context(), pkg, *req.MuteWhenNoSenderMatch); err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, rules.AppSettings{Package: pkg, MuteWhenNoSenderMatch: *req.MuteWhenNoSenderMatch})
}

// handleEvent resolves a notification posted directly to the API. The
// body is an ingest.Notification, so either extracted_text or the raw
// notification fields may be sent.
func (s *Server) handleEvent(c echo.Context) error {
	var n ingest.Notification
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	d, err := s.deps.Resolver.Resolve(ctx, n.Event())
	if err != nil {
		return s.httpError(c, err)
	}

	s.logger.Debug("resolved event",
		append(logging.ContextFields(ctx),
			zap.String("package", n.PackageID),
			zap.String("outcome", string(d.Outcome)))...)
	return c.JSON(http.StatusOK, d)
}

func (s *Server) handleValidatePattern(c echo.Context) error {
	var req PatternRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	spec, err := pattern.Parse(req.Pattern)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, PatternResponse{
		Pattern:  pattern.Format(spec),
		Segments: spec,
		TotalMs:  spec.TotalMs(),
	})
}

func (s *Server) handleGeneratePattern(c echo.Context) error {
	if s.deps.Generator == nil {
		return s.httpError(c, generate.ErrDisabled)
	}

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	text, err := s.deps.Generator.Generate(c.Request().Context(), req.Prompt)
	if err != nil {
		return s.httpError(c, err)
	}
	spec, err := pattern.Parse(text)
	if err != nil {
		return s.httpError(c, generate.ErrInvalidResponse)
	}
	return c.JSON(http.StatusOK, PatternResponse{
		Pattern:  pattern.Format(spec),
		Segments: spec,
		TotalMs:  spec.TotalMs(),
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := CountRules(ctx, s.deps.Store)
	if err != nil {
		return s.httpError(c, err)
	}
	lastEvent, err := s.deps.Store.LastEvent(ctx)
	if err != nil {
		return s.httpError(c, err)
	}
	lastMatch, err := s.deps.Store.LastMatch(ctx)
	if err != nil {
		return s.httpError(c, err)
	}

	resp := StatusResponse{
		Status:    "ok",
		Version:   s.config.Version,
		Counts:    counts,
		LastEvent: lastEvent,
		LastMatch: lastMatch,
	}
	if s.deps.Recorder != nil {
		resp.Recent = s.deps.Recorder.Waveforms()
	}
	if s.deps.Ingest != nil {
		stats := s.deps.Ingest.Stats()
		resp.Ingest = &stats
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleImportBundle(c echo.Context) error {
	format, err := bundleFormat(c)
	if err != nil {
		return s.httpError(c, err)
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	b, err := bundle.Decode(bytes.NewReader(data), format)
	if err != nil {
		return s.httpError(c, err)
	}

	report, err := bundle.Apply(c.Request().Context(), s.deps.Store, b)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleExportBundle(c echo.Context) error {
	format, err := bundleFormat(c)
	if err != nil {
		return s.httpError(c, err)
	}

	b, err := bundle.Export(c.Request().Context(), s.deps.Store)
	if err != nil {
		return s.httpError(c, err)
	}

	var buf bytes.Buffer
	if err := bundle.Encode(&buf, b, format); err != nil {
		return s.httpError(c, err)
	}
	return c.Blob(http.StatusOK, "application/"+string(format), buf.Bytes())
}

// bundleFormat reads ?format=, then the Content-Type, defaulting to TOML.
func bundleFormat(c echo.Context) (bundle.Format, error) {
	if f := c.QueryParam("format"); f != "" {
		return bundle.ParseFormat(f)
	}
	ct := strings.ToLower(c.Request().Header.Get(echo.HeaderContentType))
	if strings.Contains(ct, "yaml") {
		return bundle.FormatYAML, nil
	}
	return bundle.FormatTOML, nil
}
