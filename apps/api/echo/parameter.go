package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/user"
)

type parameterApi struct {
	svc *parameter.Service
}

func registerParameterAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *parameter.Service) {
	api := parameterApi{svc: svc}

	pg := g.Group("/parameters", jwt)
	pg.GET("", api.query, permMiddleware(user.RoleCoopView))
	pg.PUT("/:key", api.update, permMiddleware(user.RoleCoopManage))
}

func (api *parameterApi) query(ctx echo.Context) error {
	params, err := api.svc.All(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying parameters")
	}
	return ctx.JSON(http.StatusOK, params)
}

type SetParameter struct {
	Value string `json:"value"`
}

func (api *parameterApi) update(ctx echo.Context) error {
	var data SetParameter
	if err := bind(ctx, &data, "SetParameter"); err != nil {
		return err
	}
	p, err := api.svc.Set(ctx.Request().Context(), ctx.Param("key"), data.Value)
	if err != nil {
		return errors.Wrap(err, "setting parameter")
	}
	return ctx.JSON(http.StatusOK, p)
}
