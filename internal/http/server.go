// Package http serves the loader script, the embedded frame page and health.
package http

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	"net/http"
	"net/url"
	texttemplate "text/template"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/config"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/hub"
	"github.com/xiaot623/gogo/widget/internal/policy"
)

//go:embed templates
var templateFS embed.FS

var (
	loaderTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/embed.js.tmpl"))
	frameTemplate  = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/widget.html.tmpl"))
)

// Server is the public HTTP server for widgetd.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	hub    *hub.Hub
	policy *policy.Engine
	logger zerolog.Logger
}

// NewServer creates a new HTTP server. wsHandler serves /ws.
func NewServer(cfg *config.Config, h *hub.Hub, engine *policy.Engine, wsHandler echo.HandlerFunc, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		cfg:    cfg,
		hub:    h,
		policy: engine,
		logger: logger,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET("/embed.js", s.handleLoader)
	e.GET("/widget", s.handleFrame)
	if wsHandler != nil {
		e.GET("/ws", wsHandler)
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"connections": s.hub.GetConnectionCount(),
		"sessions":    s.hub.GetSessionCount(),
	})
}

type loaderData struct {
	SourceID       string
	FrameURL       string
	FrameOrigin    string
	ElementID      string
	LauncherSize   float64
	PanelWidth     float64
	Breakpoint     float64
	DefaultPrimary string
	DefaultAccent  string
	Explicit       bridge.Layer
	Attrs          bridge.Layer
	Globals        bridge.Layer
}

// handleLoader serves the host loader. Query parameters on the script URL
// become explicit configuration.
func (s *Server) handleLoader(c echo.Context) error {
	frameURL := s.cfg.FrameURL()
	data := loaderData{
		SourceID:       bridge.SourceID,
		FrameURL:       frameURL,
		FrameOrigin:    originOf(frameURL),
		ElementID:      bridge.DefaultElementID,
		LauncherSize:   bridge.LauncherSize,
		PanelWidth:     bridge.PanelWidth,
		Breakpoint:     bridge.NarrowBreakpoint,
		DefaultPrimary: domain.DefaultPrimaryColor,
		DefaultAccent:  domain.DefaultAccentColor,
		Explicit:       bridge.FromQuery(c.QueryParams()),
		Attrs: bridge.Layer{
			TenantID:     bridge.AttrTenantID,
			WidgetID:     bridge.AttrWidgetID,
			PrimaryColor: bridge.AttrPrimaryColor,
			AccentColor:  bridge.AttrAccentColor,
			Mode:         bridge.AttrMode,
		},
		Globals: bridge.Layer{
			TenantID:     bridge.GlobalTenantID,
			WidgetID:     bridge.GlobalWidgetID,
			PrimaryColor: bridge.GlobalPrimaryColor,
			AccentColor:  bridge.GlobalAccentColor,
			Mode:         bridge.GlobalMode,
		},
	}

	var buf bytes.Buffer
	if err := loaderTemplate.Execute(&buf, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render loader")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to render loader"})
	}
	return c.Blob(http.StatusOK, "text/javascript; charset=utf-8", buf.Bytes())
}

type frameData struct {
	ConfigError string
	Theme       domain.Theme
	Bare        bool
	Hello       map[string]string
}

// handleFrame serves the embedded frame page.
func (s *Server) handleFrame(c echo.Context) error {
	cfg, err := bridge.DecodeFrameConfig(c.QueryParams())
	data := frameData{Theme: cfg.Theme(), Bare: cfg.Bare}

	if err != nil {
		data.ConfigError = bridge.ConfigErrorText
		return s.renderFrame(c, data)
	}

	origin := requestOrigin(c.Request())
	allowed, err := s.policy.Allowed(c.Request().Context(), policy.EmbedInput{
		TenantID:       cfg.TenantID,
		Origin:         origin,
		AllowedOrigins: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Embed policy evaluation failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "policy evaluation failed"})
	}
	if !allowed {
		s.logger.Warn().Str("tenant_id", cfg.TenantID).Str("origin", origin).Msg("Embed denied by policy")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "origin not allowed"})
	}

	data.Hello = map[string]string{
		"tenant_id":     cfg.TenantID,
		"widget_id":     cfg.WidgetID,
		"primary_color": cfg.PrimaryColor,
		"accent_color":  cfg.AccentColor,
	}
	if cfg.Bare {
		data.Hello["mode"] = domain.ModeBare
	}
	return s.renderFrame(c, data)
}

func (s *Server) renderFrame(c echo.Context, data frameData) error {
	var buf bytes.Buffer
	if err := frameTemplate.Execute(&buf, data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render frame page")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to render frame"})
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

// requestOrigin is the embedding page's origin: the Origin header, else the
// origin of the Referer.
func requestOrigin(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" && o != "null" {
		return o
	}
	return originOf(r.Referer())
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
