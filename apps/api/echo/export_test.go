package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
	testutil "github.com/trezcool/tapir/tests"
)

func Test_exportApi(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC))

	period := app.CreatePeriod(t, core.Date(2023, time.January, 1), core.Date(2023, time.December, 31))
	shareType := app.CreateProductType(t, period.ID, "Ernteanteile", product.Weekly, decimal.NewFromInt(1000))
	share := app.CreateProduct(t, shareType.ID, "S", decimal.NewFromInt(60), core.Date(2023, time.January, 1))
	ada := app.CreateMember(t, "Ada", "Lovelace", "ada@tapir.test")
	_, err := app.Subscriptions.Order(context.Background(), ada, subscription.Order{
		Consent: true,
		Items:   []subscription.OrderItem{{ProductID: share.ID, Quantity: 3, SolidarityPrice: decimal.NewFromInt(1)}},
	})
	require.NoError(t, err)

	// a Monday, the deliveries start on Wednesday the 5th
	testutil.FreezeTime(t, time.Date(2023, time.April, 3, 6, 0, 0, 0, time.UTC))
	token := staffToken(t, app, "coop", user.RoleCoopManage)
	paymentsToken := staffToken(t, app, "payments", user.RolePaymentsView)

	runHTTPTests(t, srv, []httpTest{
		{
			name: "jobs", path: "/v1/exports/jobs", token: paymentsToken,
			wantData: marshallList(t, export.Jobs()),
		},
		{
			name: "no files yet", path: "/v1/exports", token: token,
			wantData: marshallList(t, []export.File{}),
		},
		{
			name: "unknown job", method: http.MethodPost, path: "/v1/exports/jobs/nope", token: token,
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: export.ErrUnknownJob.Error()}),
		},
		{
			name: "viewers cannot run jobs", method: http.MethodPost, path: "/v1/exports/jobs/" + export.JobSupplierList, token: paymentsToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "unknown file", path: "/v1/exports/unknown", token: token,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: export.ErrNotFound.Error()}),
		},
		{
			name: "next delivery date", path: "/v1/deliveries/next-date", token: token,
			wantData: marshallObj(t, echoapi.DateResponse{Date: core.NewDay(core.Date(2023, time.April, 5))}),
		},
	})

	rec := do(srv, http.MethodPost, "/v1/exports/jobs/"+export.JobSupplierList, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var file export.File
	unmarshall(t, rec, &file)
	assert.Equal(t, "supplier_list_2023-04-05.csv", file.Filename())

	rec = do(srv, http.MethodGet, "/v1/exports", paymentsToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var files []export.File
	unmarshall(t, rec, &files)
	if assert.Len(t, files, 1) {
		assert.Equal(t, file.ID, files[0].ID)
	}

	rec = do(srv, http.MethodGet, "/v1/exports/"+file.ID, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="supplier_list_2023-04-05.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "delivery_date;product_type;product;quantity\n05.04.2023;Ernteanteile;S;3\n", rec.Body.String())

	// deliveries
	rec = do(srv, http.MethodPost, "/v1/deliveries/record", token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var views []delivery.View
	unmarshall(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, ada.ID, views[0].MemberID)
	assert.Equal(t, core.Date(2023, time.April, 5), views[0].DeliveryDate)

	rec = do(srv, http.MethodPost, "/v1/deliveries/record?date=05-04-2023", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	accountsToken := staffToken(t, app, "accounts", user.RoleAccountsView)
	rec = do(srv, http.MethodGet, "/v1/members/"+ada.ID+"/deliveries", accountsToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &views)
	assert.NotEmpty(t, views)
}

func Test_logApi(t *testing.T) {
	app, srv := setup(t)
	token := staffToken(t, app, "coop", user.RoleCoopView)
	ada := app.CreateMember(t, "Ada", "Lovelace", "ada@tapir.test")
	bob := app.CreateMember(t, "Bob", "Marley", "bob@tapir.test")

	_, err := app.Members.AddShares(context.Background(), ada, member.NewShares{Quantity: 2})
	require.NoError(t, err)
	_, err = app.Members.TransferShares(context.Background(), "staff", ada, member.TransferShares{ReceiverID: bob.ID, Quantity: 1, SecurityCheck: true})
	require.NoError(t, err)

	rec := do(srv, http.MethodGet, "/v1/logs?member="+ada.ID+"&kind="+logentry.KindShareTransfer, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entries []logentry.Entry
	unmarshall(t, rec, &entries)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "staff", entries[0].ActorID)
	}

	rec = do(srv, http.MethodGet, "/v1/logs?kind="+logentry.KindPaymentEdit, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = do(srv, http.MethodGet, "/v1/logs", staffToken(t, app, "products", user.RoleProductsView))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
