package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
)

type subscriptionApi struct {
	svc      *subscription.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerSubscriptionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := subscriptionApi{svc: deps.Subscriptions, validate: deps.Validate, conf: deps.Conf}
	view := permMiddleware(user.RoleAccountsView)
	manage := permMiddleware(user.RoleAccountsManage)

	g.GET("/subscriptions", api.query, jwt, view)

	mg := g.Group("/members/:id/subscriptions", jwt, view, memberMiddleware(deps.Members))
	mg.GET("", api.memberSubscriptions)
	mg.POST("", api.order, manage)
	mg.POST("/renew", api.renew, manage)
	mg.GET("/trial", api.inTrial)
	mg.POST("/trial/cancel", api.cancelTrial, manage)
}

func (api *subscriptionApi) details(ctx echo.Context, subs []subscription.Subscription) error {
	details, err := api.svc.Details(ctx.Request().Context(), subs)
	if err != nil {
		return errors.Wrap(err, "resolving subscription details")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *subscriptionApi) query(ctx echo.Context) error {
	filter := new(subscription.QueryFilter)
	if err := bind(ctx, filter, "QueryFilter"); err != nil {
		return err
	}
	subs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions")
	}
	return api.details(ctx, subs)
}

// memberSubscriptions groups by product type the subscriptions active at the `date` query param, today by default.
func (api *subscriptionApi) memberSubscriptions(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	d, err := queryDay(ctx, "date", core.Today(api.conf.Location()))
	if err != nil {
		return err
	}
	groups, err := api.svc.ActiveGroupedByType(ctx.Request().Context(), m.ID, d)
	if err != nil {
		return errors.Wrap(err, "querying member subscriptions")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *subscriptionApi) bindOrder(ctx echo.Context) (subscription.Order, error) {
	var data subscription.Order
	if err := bind(ctx, &data, "Order"); err != nil {
		return data, err
	}
	return data, data.Validate(api.validate)
}

func (api *subscriptionApi) order(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindOrder(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Order(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "ordering subscriptions")
	}
	return ctx.JSON(http.StatusCreated, subs)
}

func (api *subscriptionApi) renew(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindOrder(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Renew(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "renewing subscriptions")
	}
	return ctx.JSON(http.StatusCreated, subs)
}

func (api *subscriptionApi) inTrial(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.InTrial(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying subscriptions in trial")
	}
	return api.details(ctx, subs)
}

type TrialCancellationResponse struct {
	NextTrialEnd core.Day `json:"next_trial_end"`
}

func (api *subscriptionApi) cancelTrial(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	var data subscription.TrialCancellation
	if err = bind(ctx, &data, "TrialCancellation"); err != nil {
		return err
	}
	end, err := api.svc.CancelTrial(ctx.Request().Context(), actorID(ctx), m, data)
	if err != nil {
		return errors.Wrap(err, "cancelling trial")
	}
	return ctx.JSON(http.StatusOK, TrialCancellationResponse{NextTrialEnd: core.NewDay(end)})
}
