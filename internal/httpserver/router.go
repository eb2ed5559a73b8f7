package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	applog "github.com/chadiek/mock-interview/internal/middleware"
)

// newRouter creates the echo instance and registers the API routes.
func newRouter(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID())
	e.Use(applog.RequestLogger(s.log))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", s.healthz)
	e.GET("/credits/:user", s.balance)

	g := e.Group("/sessions")
	g.POST("", s.createSession)
	g.GET("/:id", s.getSession)
	g.PUT("/:id/config", s.configure)
	g.POST("/:id/start", s.start)
	g.POST("/:id/turns", s.submit)
	g.POST("/:id/end", s.end)
	g.GET("/:id/events", s.events)
	return e
}
