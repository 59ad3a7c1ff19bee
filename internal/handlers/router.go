package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter wires the API routes and middleware onto a fresh echo instance.
func NewRouter(h *Handler, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if s, ok := he.Message.(string); ok {
				msg = s
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		if werr := c.JSON(code, errorResponse{
			Error:   errorCode(code),
			Message: msg,
		}); werr != nil {
			logger.Debug("failed to write error response", zap.String("path", c.Path()), zap.Error(werr))
		}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	e.GET("/", h.Home)
	e.GET("/health", h.Health)
	e.GET("/classes", h.Classes)
	e.POST("/predict", h.Predict)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

// errorCode turns a status like 404 into "not_found".
func errorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
