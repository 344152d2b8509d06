package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/user"
)

type (
	Link struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
		Path string `json:"path"`
	}

	LinkGroup struct {
		Name  string `json:"name"`
		Links []Link `json:"links"`
	}

	navLink struct {
		Link
		role string // "" for any staff user
	}

	navGroup struct {
		name  string
		role  string
		links []navLink
	}
)

// ordered as shown
var navigation = []navGroup{
	{
		name: "Mitglieder",
		role: user.RoleAccountsView,
		links: []navLink{
			{Link: Link{Name: "Mitglieder", Icon: "groups", Path: "/v1/members"}},
			{Link: Link{Name: "Verträge", Icon: "history_edu", Path: "/v1/subscriptions"}},
			{Link: Link{Name: "Warteliste", Icon: "schedule", Path: "/v1/waiting-list"}},
		},
	},
	{
		name: "Administration",
		links: []navLink{
			{Link: Link{Name: "Konfiguration", Icon: "settings", Path: "/v1/parameters"}, role: user.RoleCoopManage},
			{Link: Link{Name: "Anbauperiode & Produkte", Icon: "agriculture", Path: "/v1/products"}, role: user.RoleProductsView},
			{Link: Link{Name: "Abholorte", Icon: "add_location_alt", Path: "/v1/pickup-locations"}, role: user.RoleCoopView},
			{Link: Link{Name: "Lastschrift", Icon: "account_balance", Path: "/v1/exports"}, role: user.RolePaymentsView},
			{Link: Link{Name: "Schichten", Icon: "event", Path: "/v1/shifts"}, role: user.RoleShiftsManage},
		},
	},
	{
		name: "Debug",
		role: user.RoleCoopView,
		links: []navLink{
			{Link: Link{Name: "Exportierte Dateien", Icon: "attach_file", Path: "/v1/exports"}},
			{Link: Link{Name: "Protokoll", Icon: "receipt_long", Path: "/v1/logs"}},
		},
	},
}

// Navigation lists the link groups available to `roles`; groups left without links are dropped.
func Navigation(roles []string) []LinkGroup {
	allowed := func(role string) bool { return role == "" || user.HasRole(roles, role) }

	groups := make([]LinkGroup, 0, len(navigation))
	for _, ng := range navigation {
		if !allowed(ng.role) {
			continue
		}
		g := LinkGroup{Name: ng.name, Links: make([]Link, 0, len(ng.links))}
		for _, l := range ng.links {
			if allowed(l.role) {
				g.Links = append(g.Links, l.Link)
			}
		}
		if len(g.Links) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

func registerNavigationAPI(g *echo.Group, jwt echo.MiddlewareFunc) {
	g.GET("/navigation", navigationHandler, jwt)
}

func navigationHandler(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsStaff {
		return ctx.JSON(http.StatusOK, []LinkGroup{})
	}
	return ctx.JSON(http.StatusOK, Navigation(claims.Roles))
}
