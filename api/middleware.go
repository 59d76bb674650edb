package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

const (
	metricsKey = "request.metrics"
	userKey    = "user.id"
)

// instrument wraps every request with requestMetrics.
func instrument(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsKey, m)
			err := next(c)
			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			m.Log(status, err)
			return err
		}
	}
}

// requireUser authenticates the caller and stores the actor on the request
// context. A token query parameter is accepted for EventSource clients.
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}
			userID, err := auth.UserIDFromAuthHeader(header)
			m := metricsFrom(c)
			if m != nil {
				m.ObserveAuth(time.Since(start))
			}
			if err != nil {
				if m != nil {
					m.SetErrorStage("auth")
				}
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			if m != nil {
				m.SetUser(userID)
			}
			c.Set(userKey, userID)
			c.SetRequest(c.Request().WithContext(domain.WithActor(c.Request().Context(), userID)))
			return next(c)
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsKey).(*requestMetrics)
	return m
}

func currentUser(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

func decodeJSON(c echo.Context, v any) error {
	if err := sonic.ConfigDefault.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}
