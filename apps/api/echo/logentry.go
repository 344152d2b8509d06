package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/user"
)

func registerLogAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *logentry.Service) {
	g.GET("/logs", func(ctx echo.Context) error {
		filter := new(logentry.QueryFilter)
		if err := bind(ctx, filter, "QueryFilter"); err != nil {
			return err
		}
		entries, err := svc.Query(ctx.Request().Context(), filter)
		if err != nil {
			return errors.Wrap(err, "querying log entries")
		}
		if entries == nil {
			entries = []logentry.Entry{}
		}
		return ctx.JSON(http.StatusOK, entries)
	}, jwt, permMiddleware(user.RoleCoopView))
}
