package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/user"
)

type productApi struct {
	svc      *product.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerProductAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *product.Service, validate *validator.Validate, conf *core.Config) {
	api := productApi{svc: svc, validate: validate, conf: conf}
	view := permMiddleware(user.RoleProductsView)
	manage := permMiddleware(user.RoleProductsManage)

	pg := g.Group("/periods", jwt)
	pg.GET("", api.queryPeriods, view)
	pg.GET("/defaults", api.periodDefaults, view)
	pg.POST("", api.createPeriod, manage)
	pg.DELETE("/:id", api.destroyPeriod, manage)
	pg.GET("/:id/capacities", api.capacities, view)

	tg := g.Group("/product-types", jwt)
	tg.GET("", api.queryTypes, view)
	tg.POST("", api.saveType, manage)
	tg.GET("/:id", api.retrieveType, view)
	tg.PUT("/:id", api.saveType, manage)
	tg.GET("/:id/tax-rate", api.taxRate, view)

	prg := g.Group("/products", jwt)
	prg.GET("", api.queryProducts, view)
	prg.POST("", api.createProduct, manage)
	prg.GET("/:id", api.retrieveProduct, view)
	prg.PUT("/:id", api.updateProduct, manage)
	prg.DELETE("/:id", api.destroyProduct, manage)
	prg.GET("/:id/price", api.price, view)

	lg := g.Group("/pickup-locations", jwt)
	lg.GET("", api.queryLocations, permMiddleware(user.RoleCoopView))
	lg.POST("", api.createLocation, permMiddleware(user.RoleCoopManage))
	lg.GET("/:id", api.retrieveLocation, permMiddleware(user.RoleCoopView))
	lg.PUT("/:id", api.updateLocation, permMiddleware(user.RoleCoopManage))
	lg.DELETE("/:id", api.destroyLocation, permMiddleware(user.RoleCoopManage))
}

func (api *productApi) today() time.Time {
	return core.Today(api.conf.Location())
}

// Growing periods

func (api *productApi) queryPeriods(ctx echo.Context) error {
	periods, err := api.svc.Periods(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying periods")
	}
	return ctx.JSON(http.StatusOK, periods)
}

type PeriodDefaultsResponse struct {
	StartDate core.Day `json:"start_date"`
	EndDate   core.Day `json:"end_date"`
}

func (api *productApi) periodDefaults(ctx echo.Context) error {
	start, end, err := api.svc.PeriodDefaults(ctx.Request().Context(), api.today(), ctx.QueryParam("after"))
	if err != nil {
		return errors.Wrap(err, "computing period defaults")
	}
	return ctx.JSON(http.StatusOK, PeriodDefaultsResponse{StartDate: core.NewDay(start), EndDate: core.NewDay(end)})
}

func (api *productApi) createPeriod(ctx echo.Context) error {
	var data product.NewPeriod
	if err := bind(ctx, &data, "NewPeriod"); err != nil {
		return err
	}
	period, err := api.svc.CreatePeriod(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating period")
	}
	return ctx.JSON(http.StatusCreated, period)
}

func (api *productApi) destroyPeriod(ctx echo.Context) error {
	if err := api.svc.DeletePeriod(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting period")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *productApi) capacities(ctx echo.Context) error {
	caps, err := api.svc.Capacities(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying capacities")
	}
	return ctx.JSON(http.StatusOK, caps)
}

// Product types

func (api *productApi) queryTypes(ctx echo.Context) error {
	types, err := api.svc.ProductTypes(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying product types")
	}
	return ctx.JSON(http.StatusOK, types)
}

func (api *productApi) retrieveType(ctx echo.Context) error {
	pt, err := api.svc.GetProductType(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting product type")
	}
	return ctx.JSON(http.StatusOK, pt)
}

// saveType creates a product type, or updates the one of the `id` path param.
func (api *productApi) saveType(ctx echo.Context) error {
	var data product.SaveProductType
	if err := bind(ctx, &data, "SaveProductType"); err != nil {
		return err
	}
	data.ID = ctx.Param("id")
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	pt, err := api.svc.SaveProductType(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving product type")
	}
	code := http.StatusOK
	if data.ID == "" {
		code = http.StatusCreated
	}
	return ctx.JSON(code, pt)
}

type TaxRateResponse struct {
	Date    core.Day        `json:"date"`
	TaxRate decimal.Decimal `json:"tax_rate"`
}

func (api *productApi) taxRate(ctx echo.Context) error {
	d, err := queryDay(ctx, "date", api.today())
	if err != nil {
		return err
	}
	rate, err := api.svc.TaxRateAt(ctx.Request().Context(), ctx.Param("id"), d)
	if err != nil {
		return errors.Wrap(err, "getting tax rate")
	}
	return ctx.JSON(http.StatusOK, TaxRateResponse{Date: core.NewDay(d), TaxRate: rate})
}

// Products

func (api *productApi) queryProducts(ctx echo.Context) error {
	filter := new(product.QueryFilter)
	if err := bind(ctx, filter, "QueryFilter"); err != nil {
		return err
	}
	prods, err := api.svc.Products(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying products")
	}
	return ctx.JSON(http.StatusOK, prods)
}

func (api *productApi) retrieveProduct(ctx echo.Context) error {
	prod, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	return ctx.JSON(http.StatusOK, prod)
}

func (api *productApi) createProduct(ctx echo.Context) error {
	var data product.NewProduct
	if err := bind(ctx, &data, "NewProduct"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	prod, err := api.svc.CreateProduct(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating product")
	}
	return ctx.JSON(http.StatusCreated, prod)
}

func (api *productApi) updateProduct(ctx echo.Context) error {
	prod, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	var data product.UpdateProduct
	if err = bind(ctx, &data, "UpdateProduct"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	prod, err = api.svc.UpdateProduct(ctx.Request().Context(), prod, data)
	if err != nil {
		return errors.Wrap(err, "updating product")
	}
	return ctx.JSON(http.StatusOK, prod)
}

func (api *productApi) destroyProduct(ctx echo.Context) error {
	prod, err := api.svc.GetProduct(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting product")
	}
	if err = api.svc.DeleteProduct(ctx.Request().Context(), prod); err != nil {
		return errors.Wrap(err, "deleting product")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type PriceResponse struct {
	Date  core.Day        `json:"date"`
	Price decimal.Decimal `json:"price"`
}

func (api *productApi) price(ctx echo.Context) error {
	d, err := queryDay(ctx, "date", api.today())
	if err != nil {
		return err
	}
	price, err := api.svc.PriceAt(ctx.Request().Context(), ctx.Param("id"), d)
	if err != nil {
		return errors.Wrap(err, "getting price")
	}
	return ctx.JSON(http.StatusOK, PriceResponse{Date: core.NewDay(d), Price: price})
}

// Pickup locations

func (api *productApi) queryLocations(ctx echo.Context) error {
	locs, err := api.svc.PickupLocations(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying pickup locations")
	}
	return ctx.JSON(http.StatusOK, locs)
}

func (api *productApi) retrieveLocation(ctx echo.Context) error {
	loc, err := api.svc.GetPickupLocation(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting pickup location")
	}
	return ctx.JSON(http.StatusOK, loc)
}

func (api *productApi) createLocation(ctx echo.Context) error {
	var data product.SavePickupLocation
	if err := bind(ctx, &data, "SavePickupLocation"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	loc, err := api.svc.CreatePickupLocation(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating pickup location")
	}
	return ctx.JSON(http.StatusCreated, loc)
}

func (api *productApi) updateLocation(ctx echo.Context) error {
	loc, err := api.svc.GetPickupLocation(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting pickup location")
	}
	var data product.SavePickupLocation
	if err = bind(ctx, &data, "SavePickupLocation"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	loc, err = api.svc.UpdatePickupLocation(ctx.Request().Context(), loc, data)
	if err != nil {
		return errors.Wrap(err, "updating pickup location")
	}
	return ctx.JSON(http.StatusOK, loc)
}

func (api *productApi) destroyLocation(ctx echo.Context) error {
	if err := api.svc.DeletePickupLocation(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting pickup location")
	}
	return ctx.NoContent(http.StatusNoContent)
}
