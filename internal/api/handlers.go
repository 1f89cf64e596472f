package api

import (
	"context"
	"net/http"
	"strconv"

	"codeberg.org/mutker/droidmetrics/internal/collector"
	"codeberg.org/mutker/droidmetrics/internal/errors"
	"codeberg.org/mutker/droidmetrics/internal/monitor"
	"codeberg.org/mutker/droidmetrics/internal/session"
	"codeberg.org/mutker/droidmetrics/internal/storage"
	"github.com/gin-gonic/gin"
)

const defaultSessionLimit = 50

type StopRequest struct {
	Status storage.Status `json:"status"`
}

type AppsRequest struct {
	Packages []string `json:"packages" binding:"required,min=1"`
}

type MonitorStatus struct {
	Running   bool                                        `json:"running"`
	Session   *storage.Session                            `json:"session,omitempty"`
	Last      *monitor.Event                              `json:"last,omitempty"`
	Intervals map[collector.Domain]collector.IntervalInfo `json:"intervals,omitempty"`
}

type StatsResponse struct {
	Collector collector.PerformanceStats                  `json:"collector"`
	Monitor   map[collector.Domain]collector.IntervalInfo `json:"monitor_intervals,omitempty"`
}

func (s *Server) fail(c *gin.Context, err error) {
	status, resp := httpError(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.JSON(status, resp)
}

func (s *Server) invalid(c *gin.Context, msg string) {
	s.fail(c, errors.New().WithMessage(ErrInvalidRequest, msg))
}

// deviceContext bounds a request that reaches the device.
func (s *Server) deviceContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getDevices(c *gin.Context) {
	ctx, cancel := s.deviceContext(c)
	defer cancel()

	devices, err := s.deps.Devices(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, devices)
}

func (s *Server) getDeviceInfo(c *gin.Context) {
	ctx, cancel := s.deviceContext(c)
	defer cancel()

	info, err := s.deps.Collector.DeviceInfo(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (s *Server) getApps(c *gin.Context) {
	thirdParty, _ := strconv.ParseBool(c.DefaultQuery("third_party", "false"))

	ctx, cancel := s.deviceContext(c)
	defer cancel()

	apps, err := s.deps.Collector.InstalledApps(ctx, thirdParty)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, apps)
}

func (s *Server) getStats(c *gin.Context) {
	resp := StatsResponse{Collector: s.deps.Collector.Stats()}
	if s.deps.Monitor != nil {
		resp.Monitor = s.deps.Monitor.Intervals()
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMonitor(c *gin.Context) {
	status := MonitorStatus{
		Running:   s.deps.Monitor.Running(),
		Session:   s.deps.Sessions.Current(),
		Intervals: s.deps.Monitor.Intervals(),
	}
	if last, ok := s.deps.Monitor.Last(); ok {
		status.Last = &last
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) postStart(c *gin.Context) {
	var req session.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalid(c, "invalid payload: "+err.Error())
		return
	}

	ctx, cancel := s.deviceContext(c)
	defer cancel()

	sess, err := s.deps.Sessions.Start(ctx, req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, sess)
}

func (s *Server) postStop(c *gin.Context) {
	req := StopRequest{Status: storage.StatusCompleted}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.invalid(c, "invalid payload: "+err.Error())
			return
		}
	}

	sess, err := s.deps.Sessions.Stop(c.Request.Context(), req.Status)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *Server) getSystem(c *gin.Context) {
	ctx, cancel := s.deviceContext(c)
	defer cancel()

	rec, err := s.deps.Collector.CollectSystem(ctx)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

func (s *Server) getApp(c *gin.Context) {
	ctx, cancel := s.deviceContext(c)
	defer cancel()

	snap, err := s.deps.Collector.CollectApp(ctx, c.Param("package"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (s *Server) postApps(c *gin.Context) {
	var req AppsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.invalid(c, "invalid payload: "+err.Error())
		return
	}

	ctx, cancel := s.deviceContext(c)
	defer cancel()

	snaps, err := s.deps.Collector.CollectApps(ctx, req.Packages)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, snaps)
}

func (s *Server) postBatteryReset(c *gin.Context) {
	ctx, cancel := s.deviceContext(c)
	defer cancel()

	if err := s.deps.Collector.ResetBatteryStats(ctx); err != nil {
		s.fail(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) getSessions(c *gin.Context) {
	limit := defaultSessionLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.invalid(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	sessions, err := s.deps.Archive.ListSessions(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []storage.Session{}
	}

	c.JSON(http.StatusOK, sessions)
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.deps.Archive.FindSession(c.Request.Context(), c.Param("ref"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (s *Server) getSummary(c *gin.Context) {
	sess, err := s.deps.Archive.FindSession(c.Request.Context(), c.Param("ref"))
	if err != nil {
		s.fail(c, err)
		return
	}

	sum, err := s.deps.Archive.Summary(c.Request.Context(), sess.ID)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sum)
}

func (s *Server) getExport(c *gin.Context) {
	sess, err := s.deps.Archive.FindSession(c.Request.Context(), c.Param("ref"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", `attachment; filename="session_`+sess.UUID+`.json"`)
	c.Status(http.StatusOK)

	if err := s.deps.Archive.Export(c.Request.Context(), sess.ID, c.Writer); err != nil {
		s.log.Error().Err(err).Int64("session", sess.ID).Msg("Export failed")
	}
}
