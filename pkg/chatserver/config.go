package chatserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agentplane/ragcore/pkg/configservice"
)

// actor identifies who made a config change for the runtime_config_history
// audit trail (spec.md §3). The teacher's admin API has no auth layer
// either, so we fall back to a header the caller may set, defaulting to
// "admin-api" when absent.
func actor(c echo.Context) string {
	if v := c.Request().Header.Get("X-Actor"); v != "" {
		return v
	}
	return "admin-api"
}

func (s *Server) getConfig(c echo.Context) error {
	cfg, err := s.cfg.GetCurrent(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) updateConfig(c echo.Context) error {
	var patch configservice.Config
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid config body"})
	}
	cfg, err := s.cfg.Update(c.Request().Context(), patch, actor(c))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) validateConfig(c echo.Context) error {
	var cfg configservice.Config
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid config body"})
	}
	coerced, ok, issues := s.cfg.Validate(c.Request().Context(), cfg)
	return c.JSON(http.StatusOK, map[string]any{
		"valid":  ok,
		"issues": issues,
		"config": coerced,
	})
}

func (s *Server) applyPreset(c echo.Context) error {
	presetID := c.Param("id")
	targetProvider := c.QueryParam("provider")
	if targetProvider == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "provider query parameter is required"})
	}
	cfg, err := s.cfg.ApplyPreset(c.Request().Context(), presetID, targetProvider, actor(c))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "unknown preset") {
			status = http.StatusNotFound
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, cfg)
}

func (s *Server) testConfig(c echo.Context) error {
	var body struct {
		Config configservice.Config `json:"config"`
		DryRun bool                 `json:"dry_run"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	res, err := s.cfg.Test(c.Request().Context(), body.Config, body.DryRun)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}
