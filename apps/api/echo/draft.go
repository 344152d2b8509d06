package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/user"
)

const contextDraftKey = "draft"

var errDraftNotFoundInCtx = errors.New("draft user object not found in echo.Context")

type draftApi struct {
	svc      *member.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerDraftAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *member.Service, validate *validator.Validate, conf *core.Config) {
	api := draftApi{svc: svc, validate: validate, conf: conf}
	manage := permMiddleware(user.RoleAccountsManage)

	dg := g.Group("/drafts", jwt)
	dg.GET("", api.query, permMiddleware(user.RoleAccountsView))
	dg.POST("", api.create, manage)
	dg.GET("/agreement.pdf", api.blankAgreementPDF, permMiddleware(user.RoleAccountsView))

	ig := dg.Group("/:id", permMiddleware(user.RoleAccountsView), draftMiddleware(api.svc))
	ig.GET("", api.retrieve)
	ig.PUT("", api.update, manage)
	ig.DELETE("", api.destroy, manage)
	ig.GET("/amount", api.amount)
	ig.GET("/agreement.pdf", api.agreementPDF)
	ig.POST("/agreement-signed", api.markAgreementSigned, manage)
	ig.POST("/welcome-session", api.markWelcomeSessionAttended, manage)
	ig.POST("/payment", api.registerPayment, manage)
	ig.POST("/convert", api.convert, manage)
}

func ctxDraft(ctx echo.Context) (member.DraftUser, error) {
	du, ok := ctx.Get(contextDraftKey).(member.DraftUser)
	if !ok {
		return member.DraftUser{}, errors.Wrap(errDraftNotFoundInCtx, "retrieving draft user from context")
	}
	return du, nil
}

func draftMiddleware(svc *member.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			du, err := svc.GetDraft(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting draft user")
			}
			ctx.Set(contextDraftKey, du)
			return next(ctx)
		}
	}
}

func (api *draftApi) query(ctx echo.Context) error {
	drafts, err := api.svc.Drafts(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying draft users")
	}
	if drafts == nil {
		drafts = []member.DraftUser{}
	}
	return ctx.JSON(http.StatusOK, drafts)
}

func (api *draftApi) create(ctx echo.Context) error {
	var data member.SaveDraftUser
	if err := bind(ctx, &data, "SaveDraftUser"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, core.Today(api.conf.Location())); err != nil {
		return err
	}
	du, err := api.svc.CreateDraft(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating draft user")
	}
	return ctx.JSON(http.StatusCreated, du)
}

func (api *draftApi) retrieve(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, du)
}

func (api *draftApi) update(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	var data member.SaveDraftUser
	if err = bind(ctx, &data, "SaveDraftUser"); err != nil {
		return err
	}
	if err = data.Validate(api.validate, core.Today(api.conf.Location())); err != nil {
		return err
	}
	du, err = api.svc.UpdateDraft(ctx.Request().Context(), du, data)
	if err != nil {
		return errors.Wrap(err, "updating draft user")
	}
	return ctx.JSON(http.StatusOK, du)
}

func (api *draftApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteDraft(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting draft user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AmountResponse struct {
	Amount decimal.Decimal `json:"amount"`
}

func (api *draftApi) amount(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	amount, err := api.svc.DraftInitialAmount(ctx.Request().Context(), du)
	if err != nil {
		return errors.Wrap(err, "computing initial amount")
	}
	return ctx.JSON(http.StatusOK, AmountResponse{Amount: amount})
}

func (api *draftApi) markAgreementSigned(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	du, err = api.svc.MarkAgreementSigned(ctx.Request().Context(), du)
	if err != nil {
		return errors.Wrap(err, "marking agreement signed")
	}
	return ctx.JSON(http.StatusOK, du)
}

func (api *draftApi) markWelcomeSessionAttended(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	du, err = api.svc.MarkWelcomeSessionAttended(ctx.Request().Context(), du)
	if err != nil {
		return errors.Wrap(err, "marking welcome session attended")
	}
	return ctx.JSON(http.StatusOK, du)
}

func (api *draftApi) registerPayment(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	var data member.RegisterPayment
	if err = bind(ctx, &data, "RegisterPayment"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	du, err = api.svc.RegisterPayment(ctx.Request().Context(), du, data)
	if err != nil {
		return errors.Wrap(err, "registering payment")
	}
	return ctx.JSON(http.StatusOK, du)
}

func (api *draftApi) convert(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	m, err := api.svc.ConvertDraft(ctx.Request().Context(), actorID(ctx), du)
	if err != nil {
		return errors.Wrap(err, "converting draft user")
	}
	return ctx.JSON(http.StatusCreated, m)
}

// Membership agreement

func (api *draftApi) blankAgreementPDF(ctx echo.Context) error {
	doc, err := api.svc.MembershipAgreementPDF(ctx.Request().Context(), nil)
	if err != nil {
		return errors.Wrap(err, "generating membership agreement")
	}
	return attachment(ctx, doc, "Beitrittserklärung.pdf", "application/pdf")
}

func (api *draftApi) agreementPDF(ctx echo.Context) error {
	du, err := ctxDraft(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.MembershipAgreementPDF(ctx.Request().Context(), &du)
	if err != nil {
		return errors.Wrap(err, "generating membership agreement")
	}
	return attachment(ctx, doc, fmt.Sprintf("Beitrittserklärung %s.pdf", du.DisplayName()), "application/pdf")
}
