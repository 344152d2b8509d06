package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/user"
)

var contentTypes = map[string]string{
	"csv": "text/csv; charset=utf-8",
	"pdf": "application/pdf",
}

type exportApi struct {
	svc        *export.Service
	deliveries *delivery.Service
}

func registerExportAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *export.Service, deliveries *delivery.Service) {
	api := exportApi{svc: svc, deliveries: deliveries}
	view := permMiddleware(user.RoleCoopView, user.RolePaymentsView)

	eg := g.Group("/exports", jwt)
	eg.GET("", api.queryFiles, view)
	eg.GET("/jobs", api.queryJobs, view)
	eg.POST("/jobs/:job", api.run, permMiddleware(user.RoleCoopManage, user.RolePaymentsManage))
	eg.GET("/:id", api.download, view)

	dg := g.Group("/deliveries", jwt)
	dg.GET("/next-date", api.nextDeliveryDate, permMiddleware(user.RoleCoopView))
	dg.POST("/record", api.recordDeliveries, permMiddleware(user.RoleCoopManage))
}

func (api *exportApi) queryFiles(ctx echo.Context) error {
	files, err := api.svc.Files(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying exported files")
	}
	if files == nil {
		files = []export.File{}
	}
	return ctx.JSON(http.StatusOK, files)
}

func (api *exportApi) queryJobs(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, export.Jobs())
}

func (api *exportApi) run(ctx echo.Context) error {
	f, err := api.svc.Run(ctx.Request().Context(), ctx.Param("job"))
	if err != nil {
		return errors.Wrap(err, "running export job")
	}
	return ctx.JSON(http.StatusCreated, f)
}

func (api *exportApi) download(ctx echo.Context) error {
	f, err := api.svc.GetFile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exported file")
	}
	contentType, ok := contentTypes[f.Type]
	if !ok {
		contentType = echo.MIMEOctetStream
	}
	return attachment(ctx, f.Content, f.Filename(), contentType)
}

func (api *exportApi) nextDeliveryDate(ctx echo.Context) error {
	d, err := api.deliveries.NextDeliveryDate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing next delivery date")
	}
	return ctx.JSON(http.StatusOK, DateResponse{Date: core.NewDay(d)})
}

// recordDeliveries stores the deliveries of the `date` query param, the next delivery date by default.
func (api *exportApi) recordDeliveries(ctx echo.Context) error {
	next, err := api.deliveries.NextDeliveryDate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing next delivery date")
	}
	d, err := queryDay(ctx, "date", next)
	if err != nil {
		return err
	}
	views, err := api.deliveries.RecordDeliveries(ctx.Request().Context(), d)
	if err != nil {
		return errors.Wrap(err, "recording deliveries")
	}
	if views == nil {
		views = []delivery.View{}
	}
	return ctx.JSON(http.StatusCreated, views)
}
