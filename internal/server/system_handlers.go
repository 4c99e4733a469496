package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cashstore/internal/api"
	"cashstore/internal/auth"
	"cashstore/internal/jobs"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Router       /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{Status: "ok"})
}

// @Summary      Prometheus metrics
// @Description  Exposes Prometheus metrics in text format
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// @Summary      Exchange a refresh token for a new access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body server.RefreshRequest true "Refresh token"
// @Success      200 {object} server.RefreshResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      401 {object} api.ErrorResponse
// @Router       /auth/refresh [post]
func AuthRefresh(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "refresh_token is required"})
			return
		}

		accessToken, _, err := auth.RefreshAccessToken(req.RefreshToken, jwtSecret, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid refresh token"})
			return
		}

		c.JSON(http.StatusOK, RefreshResponse{AccessToken: accessToken})
	}
}

type JobListResponse struct {
	Jobs []string `json:"jobs"`
}

// @Summary      List registered sweep jobs
// @Tags         admin
// @Produce      json
// @Success      200 {object} server.JobListResponse
// @Router       /admin/jobs [get]
func ListJobs(runner *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, JobListResponse{Jobs: runner.Names()})
	}
}

// @Summary      Trigger one sweep job outside its schedule
// @Description  Skipped with 409 when a run of the same job is already in flight.
// @Tags         admin
// @Produce      json
// @Param        name path string true "Job name"
// @Success      202 {object} api.MessageResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /admin/jobs/{name}/run [post]
func TriggerJob(runner *jobs.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		started, err := runner.TriggerManual(c.Request.Context(), c.Param("name"))
		if err != nil {
			if errors.Is(err, jobs.ErrUnknownJob) {
				c.JSON(http.StatusNotFound, api.ErrorResponse{Error: "unknown job"})
				return
			}
			c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to trigger job"})
			return
		}
		if !started {
			c.JSON(http.StatusConflict, api.ErrorResponse{Error: "job is already running"})
			return
		}
		c.JSON(http.StatusAccepted, api.MessageResponse{Message: "job started"})
	}
}
