package controlplane

import (
	"context"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bsc-wdc/compss-core/pkg/accessproc"
	"github.com/bsc-wdc/compss-core/pkg/runtime"
	"github.com/bsc-wdc/compss-core/pkg/statemanager"
)

// Config bundles a Server's dependencies.
type Config struct {
	Runtime   *runtime.Runtime
	Processor *accessproc.Processor

	// Verifier authenticates bearer tokens on every route below /api. Nil
	// disables authentication, for local/dev use.
	Verifier *TokenVerifier

	States *statemanager.Manager
}

// Server wraps an Echo instance exposing the read-only operator API.
type Server struct {
	echo *echo.Echo
	cfg  Config
}

// New builds a Server and registers its routes; it does not start
// listening (see ListenAndServe).
func New(cfg Config) *Server {
	if cfg.States == nil {
		cfg.States = statemanager.New(statemanager.Config{ServiceName: "controlplane"})
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(cfg.States.Middleware("controlplane"))

	api := e.Group("/api")
	if cfg.Verifier != nil {
		api.Use(echojwt.WithConfig(echojwt.Config{
			ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
				return cfg.Verifier.Verify(auth)
			},
		}))
	}

	s := &Server{echo: e, cfg: cfg}
	s.registerRoutes(api)
	cfg.States.RegisterRoutes(e.Group("/diagnostics"))
	return s
}

func (s *Server) registerRoutes(g *echo.Group) {
	g.GET("/applications", s.listApplications)
	g.GET("/applications/:id/tasks", s.listApplicationTasks)
	g.GET("/applications/:id/barrier", s.applicationBarrierStatus)
	g.POST("/applications/:id/barrier", s.triggerBarrier)
}

// ListenAndServe starts the HTTP server; it blocks until ctx is cancelled
// or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	go func() {
		<-ctx.Done()
		_ = s.echo.Shutdown(context.Background())
	}()
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
