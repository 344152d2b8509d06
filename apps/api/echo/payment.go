package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/user"
)

type paymentApi struct {
	svc      *payment.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := paymentApi{svc: deps.Payments, validate: deps.Validate, conf: deps.Conf}

	g.GET("/payments/next-date", api.nextDate, jwt, permMiddleware(user.RolePaymentsView))

	mg := g.Group("/members/:id/payments", jwt, permMiddleware(user.RolePaymentsView), memberMiddleware(deps.Members))
	mg.GET("", api.memberPayments)
	mg.PUT("", api.editFuturePayment, permMiddleware(user.RolePaymentsManage))
}

func (api *paymentApi) nextDate(ctx echo.Context) error {
	d, err := api.svc.NextPaymentDate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing next payment date")
	}
	return ctx.JSON(http.StatusOK, DateResponse{Date: core.NewDay(d)})
}

func (api *paymentApi) memberPayments(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	views, err := api.svc.MemberPayments(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying member payments")
	}
	if views == nil {
		views = []payment.View{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *paymentApi) editFuturePayment(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	var data payment.EditPayment
	if err = bind(ctx, &data, "EditPayment"); err != nil {
		return err
	}
	if err = data.Validate(api.validate, core.Today(api.conf.Location())); err != nil {
		return err
	}
	p, err := api.svc.EditFuturePayment(ctx.Request().Context(), actorID(ctx), m.ID, data)
	if err != nil {
		return errors.Wrap(err, "editing future payment")
	}
	return ctx.JSON(http.StatusOK, p)
}
