package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/user"
)

const defaultShiftWeeks = 4

type shiftApi struct {
	svc      *shift.Service
	validate *validator.Validate
	conf     *core.Config
}

func registerShiftAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *shift.Service, validate *validator.Validate, conf *core.Config) {
	api := shiftApi{svc: svc, validate: validate, conf: conf}
	view := permMiddleware(user.RoleShiftsManage, user.RoleCoopView)
	manage := permMiddleware(user.RoleShiftsManage)

	gg := g.Group("/shift-groups", jwt)
	gg.GET("", api.queryGroups, view)
	gg.POST("", api.createGroup, manage)
	gg.DELETE("/:id", api.destroyGroup, manage)

	tg := g.Group("/shift-templates", jwt)
	tg.GET("", api.queryTemplates, view)
	tg.GET("/blocks", api.templateBlocks, view)
	tg.POST("", api.createTemplate, manage)
	tg.GET("/:id", api.retrieveTemplate, view)
	tg.PUT("/:id", api.updateTemplate, manage)
	tg.DELETE("/:id", api.destroyTemplate, manage)
	tg.POST("/:id/attendances", api.addAttendanceTemplate, manage)
	g.DELETE("/attendance-templates/:id", api.removeAttendanceTemplate, jwt, manage)

	sg := g.Group("/shifts", jwt)
	sg.GET("", api.shiftBlocks, view)
	sg.POST("/generate", api.generate, manage)
	sg.GET("/:id", api.retrieveShift, view)
	sg.POST("/:id/attendances", api.registerAttendance, manage)
	g.PUT("/attendances/:id", api.updateAttendance, jwt, manage)
}

// Template groups

func (api *shiftApi) queryGroups(ctx echo.Context) error {
	groups, err := api.svc.Groups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying shift groups")
	}
	if groups == nil {
		groups = []shift.TemplateGroup{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *shiftApi) createGroup(ctx echo.Context) error {
	var data shift.NewGroup
	if err := bind(ctx, &data, "NewGroup"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	grp, err := api.svc.CreateGroup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating shift group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *shiftApi) destroyGroup(ctx echo.Context) error {
	if err := api.svc.DeleteGroup(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting shift group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Templates

func (api *shiftApi) queryTemplates(ctx echo.Context) error {
	templates, err := api.svc.Templates(ctx.Request().Context(), ctx.QueryParam("group"))
	if err != nil {
		return errors.Wrap(err, "querying shift templates")
	}
	if templates == nil {
		templates = []shift.Template{}
	}
	return ctx.JSON(http.StatusOK, templates)
}

func (api *shiftApi) templateBlocks(ctx echo.Context) error {
	blocks, err := api.svc.TemplateBlocks(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing shift templates")
	}
	return ctx.JSON(http.StatusOK, blocks)
}

func (api *shiftApi) retrieveTemplate(ctx echo.Context) error {
	t, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting shift template")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *shiftApi) createTemplate(ctx echo.Context) error {
	var data shift.SaveTemplate
	if err := bind(ctx, &data, "SaveTemplate"); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	t, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating shift template")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *shiftApi) updateTemplate(ctx echo.Context) error {
	t, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting shift template")
	}
	var data shift.SaveTemplate
	if err = bind(ctx, &data, "SaveTemplate"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	t, err = api.svc.UpdateTemplate(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating shift template")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *shiftApi) destroyTemplate(ctx echo.Context) error {
	if err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting shift template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type MemberRequest struct {
	MemberID string `json:"member_id" validate:"required"`
}

func (api *shiftApi) bindMember(ctx echo.Context) (string, error) {
	var data MemberRequest
	if err := bind(ctx, &data, "MemberRequest"); err != nil {
		return "", err
	}
	return data.MemberID, api.validate.Struct(data)
}

func (api *shiftApi) addAttendanceTemplate(ctx echo.Context) error {
	memberID, err := api.bindMember(ctx)
	if err != nil {
		return err
	}
	at, err := api.svc.AddAttendanceTemplate(ctx.Request().Context(), ctx.Param("id"), memberID)
	if err != nil {
		return errors.Wrap(err, "adding attendance template")
	}
	return ctx.JSON(http.StatusCreated, at)
}

func (api *shiftApi) removeAttendanceTemplate(ctx echo.Context) error {
	if err := api.svc.RemoveAttendanceTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing attendance template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Shifts

// shiftBlocks summarizes the shifts between the `from` & `to` query params, by default the next 4 weeks.
func (api *shiftApi) shiftBlocks(ctx echo.Context) error {
	from, err := queryDay(ctx, "from", shift.Monday(core.Today(api.conf.Location())))
	if err != nil {
		return err
	}
	to, err := queryDay(ctx, "to", from.AddDate(0, 0, 7*defaultShiftWeeks))
	if err != nil {
		return err
	}
	blocks, err := api.svc.ShiftBlocks(ctx.Request().Context(), from, to)
	if err != nil {
		return errors.Wrap(err, "summarizing shifts")
	}
	return ctx.JSON(http.StatusOK, blocks)
}

type GenerateShiftsRequest struct {
	Weeks int `json:"weeks" validate:"min=0,max=52"`
}

func (api *shiftApi) generate(ctx echo.Context) error {
	var data GenerateShiftsRequest
	if err := bind(ctx, &data, "GenerateShiftsRequest"); err != nil {
		return err
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	if data.Weeks == 0 {
		data.Weeks = defaultShiftWeeks
	}
	shifts, err := api.svc.GenerateShifts(ctx.Request().Context(), data.Weeks)
	if err != nil {
		return errors.Wrap(err, "generating shifts")
	}
	return ctx.JSON(http.StatusCreated, shifts)
}

func (api *shiftApi) retrieveShift(ctx echo.Context) error {
	s, err := api.svc.GetShift(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting shift")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *shiftApi) registerAttendance(ctx echo.Context) error {
	memberID, err := api.bindMember(ctx)
	if err != nil {
		return err
	}
	att, err := api.svc.RegisterAttendance(ctx.Request().Context(), ctx.Param("id"), memberID)
	if err != nil {
		return errors.Wrap(err, "registering attendance")
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *shiftApi) updateAttendance(ctx echo.Context) error {
	att, err := api.svc.GetAttendance(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting attendance")
	}
	var data shift.UpdateAttendance
	if err = bind(ctx, &data, "UpdateAttendance"); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	att, err = api.svc.UpdateAttendanceState(ctx.Request().Context(), att, data)
	if err != nil {
		return errors.Wrap(err, "updating attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}
