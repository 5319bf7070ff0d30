package controlplane

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bsc-wdc/compss-core/pkg/application"
)

type applicationView struct {
	AppId        application.Id `json:"appId"`
	TotalTasks   int64          `json:"totalTasks"`
	PendingTasks int            `json:"pendingTasks"`
	Cancelled    bool           `json:"cancelled"`
}

func (s *Server) listApplications(c echo.Context) error {
	apps := s.cfg.Runtime.Applications()
	out := make([]applicationView, 0, len(apps))
	for _, a := range apps {
		out = append(out, applicationView{
			AppId:        a.AppId,
			TotalTasks:   a.TotalTasks(),
			PendingTasks: len(a.PendingTaskIds()),
			Cancelled:    a.Cancelled(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) applicationByParam(c echo.Context) (*application.Application, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed application id")
	}
	app, ok := s.cfg.Runtime.Application(application.Id(id))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "application not found")
	}
	return app, nil
}

func (s *Server) listApplicationTasks(c echo.Context) error {
	app, err := s.applicationByParam(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appId":   app.AppId,
		"pending": app.PendingTaskIds(),
	})
}

func (s *Server) applicationBarrierStatus(c echo.Context) error {
	app, err := s.applicationByParam(c)
	if err != nil {
		return err
	}
	pending := app.PendingTaskIds()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"appId":     app.AppId,
		"satisfied": len(pending) == 0,
		"pending":   pending,
	})
}

// triggerBarrier blocks the HTTP request until every task registered under
// the application so far has reached a terminal state, bounded by a
// "timeoutMs" query parameter (default 30s) so a stuck application can't
// hang the connection indefinitely.
func (s *Server) triggerBarrier(c echo.Context) error {
	app, err := s.applicationByParam(c)
	if err != nil {
		return err
	}

	timeout := 30 * time.Second
	if raw := c.QueryParam("timeoutMs"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	done := make(chan error, 1)
	go func() { done <- s.cfg.Processor.Barrier(app.AppId) }()

	select {
	case err := <-done:
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"appId": app.AppId, "satisfied": true})
	case <-time.After(timeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "barrier did not complete before timeoutMs")
	}
}
