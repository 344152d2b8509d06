package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/user"
)

const contextMemberKey = "member"

var errMemberNotFoundInCtx = errors.New("member object not found in echo.Context")

type memberApi struct {
	svc        *member.Service
	deliveries *delivery.Service
	shifts     *shift.Service
	logs       *logentry.Service
	validate   *validator.Validate
	conf       *core.Config
}

func registerMemberAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := memberApi{
		svc:        deps.Members,
		deliveries: deps.Deliveries,
		shifts:     deps.Shifts,
		logs:       deps.Logs,
		validate:   deps.Validate,
		conf:       deps.Conf,
	}
	view := permMiddleware(user.RoleAccountsView)
	manage := permMiddleware(user.RoleAccountsManage)

	mg := g.Group("/members", jwt)
	mg.GET("", api.query, view)
	mg.POST("", api.create, manage)

	dg := mg.Group("/:id", view, memberMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, manage)
	dg.GET("/shares", api.queryShares)
	dg.POST("/shares", api.addShares, manage)
	dg.POST("/shares/transfer", api.transferShares, manage)
	dg.POST("/withdraw", api.withdraw, manage)
	dg.GET("/confirmation.pdf", api.confirmationPDF)
	dg.POST("/welcome-email", api.sendWelcomeEmail, manage)
	dg.GET("/deliveries", api.queryDeliveries)
	dg.GET("/shifts", api.queryShifts)
	dg.GET("/logs", api.queryLogs)

	// joining the waiting list is open to anyone
	wg := g.Group("/waiting-list")
	wg.POST("", api.joinWaitingList)
	wg.GET("", api.queryWaitingList, jwt, view)
	wg.DELETE("/:id", api.destroyWaitingListEntry, jwt, manage)
}

func (api *memberApi) today() time.Time {
	return core.Today(api.conf.Location())
}

func ctxMember(ctx echo.Context) (member.Member, error) {
	m, ok := ctx.Get(contextMemberKey).(member.Member)
	if !ok {
		return member.Member{}, errors.Wrap(errMemberNotFoundInCtx, "retrieving member from context")
	}
	return m, nil
}

// memberMiddleware loads the member of the `id` path param into the context.
func memberMiddleware(svc *member.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			m, err := svc.Get(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "getting member")
			}
			ctx.Set(contextMemberKey, m)
			return next(ctx)
		}
	}
}

// Members

func (api *memberApi) query(ctx echo.Context) error {
	filter := new(member.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []member.Member{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	members, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	if members == nil {
		members = []member.Member{}
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *memberApi) create(ctx echo.Context) error {
	var data member.PersonalData
	if err := bind(ctx, &data, "PersonalData"); err != nil {
		return err
	}
	if err := data.Validate(api.validate, api.svc, api.today(), nil, true); err != nil {
		return err
	}
	m, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating member")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *memberApi) retrieve(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *memberApi) update(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	var data member.PersonalData
	if err = bind(ctx, &data, "PersonalData"); err != nil {
		return err
	}
	// name & birthdate are identity data, only coop managers may correct them
	canEdit := contextHasAnyRole(ctx, []string{user.RoleCoopManage})
	if err = data.Validate(api.validate, api.svc, api.today(), &m, canEdit); err != nil {
		return err
	}
	m, err = api.svc.Update(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return ctx.JSON(http.StatusOK, m)
}

// Coop shares

func (api *memberApi) queryShares(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	shares, err := api.svc.Shares(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying shares")
	}
	if shares == nil {
		shares = []member.ShareOwnership{}
	}
	return ctx.JSON(http.StatusOK, shares)
}

func (api *memberApi) addShares(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	var data member.NewShares
	if err = bind(ctx, &data, "NewShares"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	so, err := api.svc.AddShares(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "adding shares")
	}
	return ctx.JSON(http.StatusCreated, so)
}

func (api *memberApi) transferShares(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	var data member.TransferShares
	if err = bind(ctx, &data, "TransferShares"); err != nil {
		return err
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}
	so, err := api.svc.TransferShares(ctx.Request().Context(), actorID(ctx), m, data)
	if err != nil {
		return errors.Wrap(err, "transferring shares")
	}
	return ctx.JSON(http.StatusCreated, so)
}

func (api *memberApi) withdraw(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.WithdrawMembership(ctx.Request().Context(), actorID(ctx), m.ID, api.today()); err != nil {
		return errors.Wrap(err, "withdrawing membership")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Documents

func (api *memberApi) confirmationPDF(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.MembershipConfirmationPDF(ctx.Request().Context(), m)
	if err != nil {
		return errors.Wrap(err, "generating membership confirmation")
	}
	return attachment(ctx, doc, fmt.Sprintf("Mitgliedschaftsbestätigung %s.pdf", m.DisplayName()), "application/pdf")
}

func (api *memberApi) sendWelcomeEmail(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.SendWelcomeEmail(ctx.Request().Context(), m); err != nil {
		return errors.Wrap(err, "sending welcome email")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Welcome email sent."})
}

// Member history

func (api *memberApi) queryDeliveries(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	views, err := api.deliveries.MemberDeliveries(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying deliveries")
	}
	if views == nil {
		views = []delivery.View{}
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *memberApi) queryShifts(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	shifts, err := api.shifts.MemberShifts(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "querying member shifts")
	}
	if shifts == nil {
		shifts = []shift.MemberShift{}
	}
	return ctx.JSON(http.StatusOK, shifts)
}

func (api *memberApi) queryLogs(ctx echo.Context) error {
	m, err := ctxMember(ctx)
	if err != nil {
		return err
	}
	entries, err := api.logs.Query(ctx.Request().Context(), &logentry.QueryFilter{MemberID: m.ID})
	if err != nil {
		return errors.Wrap(err, "querying log entries")
	}
	if entries == nil {
		entries = []logentry.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// Waiting list

func (api *memberApi) joinWaitingList(ctx echo.Context) error {
	var data member.NewWaitingListEntry
	if err := bind(ctx, &data, "NewWaitingListEntry"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	entry, err := api.svc.JoinWaitingList(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "joining waiting list")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *memberApi) queryWaitingList(ctx echo.Context) error {
	entries, err := api.svc.WaitingList(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying waiting list")
	}
	if entries == nil {
		entries = []member.WaitingListEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *memberApi) destroyWaitingListEntry(ctx echo.Context) error {
	if err := api.svc.DeleteWaitingListEntry(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting waiting list entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}
