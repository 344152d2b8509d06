package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core/user"
)

func TestNavigation(t *testing.T) {
	names := func(groups []echoapi.LinkGroup) map[string][]string {
		res := make(map[string][]string, len(groups))
		for _, g := range groups {
			for _, l := range g.Links {
				res[g.Name] = append(res[g.Name], l.Name)
			}
		}
		return res
	}

	tests := []struct {
		name  string
		roles []string
		want  map[string][]string
	}{
		{name: "no roles", want: map[string][]string{}},
		{
			name:  "accounts",
			roles: []string{user.RoleAccountsManage},
			want:  map[string][]string{"Mitglieder": {"Mitglieder", "Verträge", "Warteliste"}},
		},
		{
			name:  "coop view",
			roles: []string{user.RoleCoopView},
			want: map[string][]string{
				"Administration": {"Abholorte"},
				"Debug":          {"Exportierte Dateien", "Protokoll"},
			},
		},
		{
			name:  "products & payments",
			roles: []string{user.RoleProductsView, user.RolePaymentsManage},
			want:  map[string][]string{"Administration": {"Anbauperiode & Produkte", "Lastschrift"}},
		},
		{
			name:  "superuser",
			roles: []string{user.RoleSuperuser},
			want: map[string][]string{
				"Mitglieder":     {"Mitglieder", "Verträge", "Warteliste"},
				"Administration": {"Konfiguration", "Anbauperiode & Produkte", "Abholorte", "Lastschrift", "Schichten"},
				"Debug":          {"Exportierte Dateien", "Protokoll"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, names(echoapi.Navigation(tt.roles))); diff != "" {
				t.Errorf("Navigation() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_navigationHandler(t *testing.T) {
	app, srv := setup(t)

	runHTTPTests(t, srv, []httpTest{
		{name: "auth required", path: "/v1/navigation", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "not staff", path: "/v1/navigation", token: staffToken(t, app, "ada"), wantData: marshallList(t)},
		{
			name: "staff", path: "/v1/navigation", token: staffToken(t, app, "bob", user.RoleShiftsManage),
			wantData: marshallObj(t, []echoapi.LinkGroup{{
				Name:  "Administration",
				Links: []echoapi.Link{{Name: "Schichten", Icon: "event", Path: "/v1/shifts"}},
			}}),
		},
	})
}
