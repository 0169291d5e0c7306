// Package api exposes the command service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	apperrors "infra-chatops/internal/common/errors"
	"infra-chatops/internal/common/logger"
	"infra-chatops/internal/service"
	"infra-chatops/internal/workflow"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultWaitTimeout = 30 * time.Second
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// Commands is the part of *service.Service the API needs.
type Commands interface {
	SubmitCommand(ctx context.Context, req service.Request) (string, error)
	GetReport(ctx context.Context, id string) (*workflow.Report, error)
	Wait(ctx context.Context, id string) (*workflow.Report, error)
	Cancel(ctx context.Context, id string) error
	Recent(ctx context.Context, limit int) ([]string, error)
}

// Check reports whether one dependency is ready.
type Check func(ctx context.Context) error

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	commands    Commands
	checks      map[string]Check
	waitTimeout time.Duration
	logger      logger.Logger
}

type Option func(*Server)

func WithReadinessCheck(name string, check Check) Option {
	return func(s *Server) { s.checks[name] = check }
}

func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.waitTimeout = d
		}
	}
}

func NewServer(commands Commands, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		commands:    commands,
		checks:      make(map[string]Check),
		waitTimeout: defaultWaitTimeout,
		logger:      log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEcho builds the echo instance with middleware and every route registered.
func NewEcho(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("http request", map[string]interface{}{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latencyMs": v.Latency.Milliseconds(),
				"requestId": v.RequestID,
			})
			return nil
		},
	}))

	s.Register(e)
	return e
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.GET("/ready", s.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.POST("/commands", s.SubmitCommand)
	v1.GET("/workflows", s.ListWorkflows)
	v1.GET("/workflows/:id/status", s.GetStatus)
	v1.POST("/workflows/:id/cancel", s.CancelWorkflow)
}

type commandRequest struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Wait      bool   `json:"wait"`
}

type reportResponse struct {
	InstanceID   string           `json:"instance_id"`
	Status       workflow.State   `json:"status"`
	ResponseText string           `json:"response_text"`
	Report       *workflow.Report `json:"report,omitempty"`
}

type errorResponse struct {
	Error *apperrors.StandardError `json:"error"`
}

func newReportResponse(r *workflow.Report) reportResponse {
	return reportResponse{
		InstanceID:   r.InstanceID,
		Status:       r.Status,
		ResponseText: service.ResponseText(r),
		Report:       r,
	}
}

// SubmitCommand interprets and starts a command
// (POST /api/v1/commands)
func (s *Server) SubmitCommand(c echo.Context) error {
	var req commandRequest
	if err := c.Bind(&req); err != nil {
		return s.fail(c, apperrors.NewInvalidInputError("invalid request body: "+err.Error()), "")
	}
	if req.Text == "" {
		return s.fail(c, apperrors.NewInvalidInputError("text is required"), "")
	}

	ctx := c.Request().Context()
	id, err := s.commands.SubmitCommand(ctx, service.Request{Text: req.Text, UserID: req.UserID, ChannelID: req.ChannelID})
	if err != nil {
		return s.fail(c, err, "")
	}

	if req.Wait {
		waitCtx, cancel := context.WithTimeout(ctx, s.waitTimeout)
		defer cancel()
		report, err := s.commands.Wait(waitCtx, id)
		if err == nil && report.Terminal() {
			return c.JSON(http.StatusOK, newReportResponse(report))
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return s.fail(c, err, id)
		}
	}

	report, err := s.commands.GetReport(ctx, id)
	if err != nil {
		return s.fail(c, err, id)
	}
	status := http.StatusAccepted
	if report.Terminal() {
		status = http.StatusOK
	}
	return c.JSON(status, newReportResponse(report))
}

// GetStatus returns the latest report of an instance
// (GET /api/v1/workflows/:id/status)
func (s *Server) GetStatus(c echo.Context) error {
	id := c.Param("id")
	report, err := s.commands.GetReport(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err, id)
	}
	return c.JSON(http.StatusOK, newReportResponse(report))
}

// CancelWorkflow requests cancellation of a running instance
// (POST /api/v1/workflows/:id/cancel)
func (s *Server) CancelWorkflow(c echo.Context) error {
	id := c.Param("id")
	if err := s.commands.Cancel(c.Request().Context(), id); err != nil {
		return s.fail(c, err, id)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"instance_id": id,
		"status":      "cancelling",
	})
}

// ListWorkflows returns the ids of recently started instances
// (GET /api/v1/workflows?limit=N)
func (s *Server) ListWorkflows(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return s.fail(c, apperrors.NewInvalidInputError("limit must be a positive integer"), "")
		}
		limit = min(n, maxRecentLimit)
	}
	ids, err := s.commands.Recent(c.Request().Context(), limit)
	if err != nil {
		return s.fail(c, apperrors.NewStoreUnavailableError("report store", err), "")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"instances": ids})
}

func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Ready runs every readiness check and reports 503 if any fails.
func (s *Server) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	return c.JSON(status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) fail(c echo.Context, err error, instanceID string) error {
	stdErr := service.AsStandardError(err, instanceID)
	status := statusFor(stdErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", map[string]interface{}{
			"path":  c.Path(),
			"code":  stdErr.Code,
			"error": err.Error(),
		})
	}
	return c.JSON(status, errorResponse{Error: stdErr})
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeAccessDenied, apperrors.ErrCodeApprovalRequired:
		return http.StatusForbidden
	case apperrors.ErrCodeInstanceNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeInstanceFinished:
		return http.StatusConflict
	case apperrors.ErrCodeCommandRejected, apperrors.ErrCodeMissingRequiredSlot,
		apperrors.ErrCodeUnknownIntent, apperrors.ErrCodeWorkflowNotFound:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeExternalServiceError, apperrors.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
