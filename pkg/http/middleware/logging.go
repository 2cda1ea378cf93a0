package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"Tradeflow/pkg/logger"
)

// quietPaths are polled by probes and scrapers and are not logged.
var quietPaths = map[string]bool{"/healthz": true, "/readyz": true, "/metrics": true}

// RequestLogging logs one debug line per request. Failures are logged by Metrics.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		Skipper:      func(c echo.Context) bool { return quietPaths[c.Path()] },
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogRemoteIP:  true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.String("route", v.RoutePath),
				logger.String("remote", v.RemoteIP),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			l.Debug("http request", fields...)
			return nil
		},
	})
}
