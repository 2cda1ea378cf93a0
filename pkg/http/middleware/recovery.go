package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"Tradeflow/pkg/logger"
)

// Recover turns handler panics into a logged 500 with the API envelope.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 8 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			l.Error("http handler panic",
				logger.Error(err),
				logger.String("method", c.Request().Method),
				logger.String("path", c.Path()),
				logger.String("stack", string(stack)),
			)
			if c.Response().Committed {
				return nil
			}
			return c.JSON(http.StatusInternalServerError, map[string]interface{}{
				"status":  http.StatusInternalServerError,
				"message": http.StatusText(http.StatusInternalServerError),
				"errors":  []map[string]string{{"code": "ERR_INTERNAL", "message": "internal error"}},
			})
		},
	})
}
