package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
	testutil "github.com/trezcool/tapir/tests"
)

type subscriptionFixture struct {
	app     *testutil.App
	srv     *echoapi.Server
	token   string
	harvest product.Product
	eggs    product.Product
	member  member.Member
}

func newSubscriptionFixture(t *testing.T) *subscriptionFixture {
	app, srv := setup(t)
	testutil.FreezeTime(t, time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC))

	period := app.CreatePeriod(t, core.Date(2023, time.January, 1), core.Date(2023, time.December, 31))
	baseType := app.CreateProductType(t, period.ID, "Ernteanteile", product.Weekly, decimal.NewFromInt(1000))
	extraType := app.CreateProductType(t, period.ID, "Eier", product.Weekly, decimal.NewFromInt(100))
	app.SetParam(t, parameter.CoopBaseProductType, baseType.ID)

	return &subscriptionFixture{
		app:     app,
		srv:     srv,
		token:   staffToken(t, app, "staff", user.RoleAccountsManage, user.RolePaymentsManage),
		harvest: app.CreateProduct(t, baseType.ID, "S", decimal.NewFromInt(60), core.Date(2023, time.January, 1)),
		eggs:    app.CreateProduct(t, extraType.ID, "6 Eier", decimal.NewFromInt(10), core.Date(2023, time.January, 1)),
		member:  app.CreateMember(t, "Ada", "Lovelace", "ada@tapir.test"),
	}
}

func (f *subscriptionFixture) order(t *testing.T) []subscription.Subscription {
	t.Helper()
	rec := do(f.srv, http.MethodPost, "/v1/members/"+f.member.ID+"/subscriptions", f.token, marshallObj(t, subscription.Order{
		Consent: true,
		Items: []subscription.OrderItem{
			{ProductID: f.harvest.ID, Quantity: 1},
			{ProductID: f.eggs.ID, Quantity: 2, SolidarityPrice: decimal.RequireFromString("1.5")},
		},
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var subs []subscription.Subscription
	unmarshall(t, rec, &subs)
	require.Len(t, subs, 2)
	return subs
}

func Test_subscriptionApi(t *testing.T) {
	f := newSubscriptionFixture(t)
	path := "/v1/members/" + f.member.ID + "/subscriptions"

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "no consent", method: http.MethodPost, path: path, token: f.token,
			body:     marshallObj(t, subscription.Order{Items: []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1}}}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "solidarity out of range", method: http.MethodPost, path: path, token: f.token,
			body: marshallObj(t, subscription.Order{Consent: true, Items: []subscription.OrderItem{
				{ProductID: f.harvest.ID, Quantity: 1, SolidarityPrice: decimal.NewFromInt(3)},
			}}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"items[0].solidarity_price": "must be between 0.5 and 2"}),
		},
		{
			name: "viewers cannot order", method: http.MethodPost, path: path, token: staffToken(t, f.app, "viewer", user.RoleAccountsView),
			body:     marshallObj(t, subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1}}}),
			wantCode: http.StatusForbidden,
		},
	})

	subs := f.order(t)
	for _, s := range subs {
		assert.Equal(t, core.Date(2023, time.April, 1), s.StartDate)
		assert.Equal(t, subs[0].MandateRef, s.MandateRef)
	}

	// grouped by product type name
	rec := do(f.srv, http.MethodGet, path+"?date=2023-04-15", f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var groups []subscription.TypeGroup
	unmarshall(t, rec, &groups)
	if assert.Len(t, groups, 2) {
		assert.Equal(t, "Eier", groups[0].ProductType.Name)
		assert.Equal(t, "Ernteanteile", groups[1].ProductType.Name)
		if assert.Len(t, groups[0].Subscriptions, 1) {
			assert.True(t, groups[0].Subscriptions[0].TotalPrice.Equal(decimal.NewFromInt(30)))
		}
	}

	// not started yet
	rec = do(f.srv, http.MethodGet, path, f.token)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshall(t, rec, &groups)
	assert.Empty(t, groups)

	rec = do(f.srv, http.MethodGet, "/v1/subscriptions?member="+f.member.ID, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var details []subscription.Detail
	unmarshall(t, rec, &details)
	assert.Len(t, details, 2)
}

func Test_subscriptionApi_trial(t *testing.T) {
	f := newSubscriptionFixture(t)
	subs := f.order(t)
	path := "/v1/members/" + f.member.ID + "/subscriptions/trial"

	rec := do(f.srv, http.MethodGet, path, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var details []subscription.Detail
	unmarshall(t, rec, &details)
	assert.Len(t, details, 2)

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "nothing selected", method: http.MethodPost, path: path + "/cancel", token: f.token,
			body:     marshallObj(t, subscription.TrialCancellation{}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"subscription_ids": subscription.ErrNothingSelected.Error()}),
		},
		{
			name: "base subscription alone", method: http.MethodPost, path: path + "/cancel", token: f.token,
			body:     marshallObj(t, subscription.TrialCancellation{SubscriptionIDs: []string{subs[0].ID}}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"subscription_ids": subscription.ErrKeepAdditional.Error()}),
		},
		{
			name: "additional subscription", method: http.MethodPost, path: path + "/cancel", token: f.token,
			body: marshallObj(t, subscription.TrialCancellation{SubscriptionIDs: []string{subs[1].ID}}),
			wantData: marshallObj(t, echoapi.TrialCancellationResponse{
				NextTrialEnd: core.NewDay(core.Date(2023, time.April, 28)),
			}),
		},
	})

	entries, err := f.app.Logs.Query(ctx(), &logentry.QueryFilter{MemberID: f.member.ID, Kind: logentry.KindTrialCancellation})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func Test_paymentApi(t *testing.T) {
	f := newSubscriptionFixture(t)
	subs := f.order(t)
	path := "/v1/members/" + f.member.ID + "/payments"

	runHTTPTests(t, f.srv, []httpTest{
		{
			name: "next date", path: "/v1/payments/next-date", token: f.token,
			wantData: marshallObj(t, echoapi.DateResponse{Date: core.NewDay(core.Date(2023, time.March, 15))}),
		},
		{
			name: "payments view required", path: path, token: staffToken(t, f.app, "viewer", user.RoleAccountsView),
			wantCode: http.StatusForbidden,
		},
		{
			name: "past due date", method: http.MethodPut, path: path, token: f.token,
			body: marshallObj(t, payment.EditPayment{
				MandateRef: subs[0].MandateRef, DueDate: core.NewDay(core.Date(2023, time.March, 1)),
				Amount: decimal.NewFromInt(80), Comment: "Rabatt", SecurityCheck: true,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"due_date": "only future payments can be edited"}),
		},
		{
			name: "unknown mandate", method: http.MethodPut, path: path, token: f.token,
			body: marshallObj(t, payment.EditPayment{
				MandateRef: "000042/GENO", DueDate: core.NewDay(core.Date(2023, time.May, 15)),
				Amount: decimal.NewFromInt(80), Comment: "Rabatt", SecurityCheck: true,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"mandate_ref": payment.ErrUnknownMandate.Error()}),
		},
	})

	rec := do(f.srv, http.MethodGet, path, f.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var views []payment.View
	unmarshall(t, rec, &views)
	require.NotEmpty(t, views)
	first := views[0]
	assert.Equal(t, subs[0].MandateRef, first.MandateRef)
	assert.Equal(t, core.Date(2023, time.April, 15), first.DueDate)
	assert.True(t, first.Amount.Equal(decimal.NewFromInt(90)), first.Amount.String())

	rec = do(f.srv, http.MethodPut, path, f.token, marshallObj(t, payment.EditPayment{
		MandateRef: subs[0].MandateRef, DueDate: core.NewDay(core.Date(2023, time.May, 15)),
		Amount: decimal.NewFromInt(80), Comment: "Rabatt", SecurityCheck: true,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p payment.Payment
	unmarshall(t, rec, &p)
	assert.True(t, p.Edited)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(80)))

	entries, err := f.app.Logs.Query(ctx(), &logentry.QueryFilter{MemberID: f.member.ID, Kind: logentry.KindPaymentEdit})
	require.NoError(t, err)
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "Rabatt", entries[0].Comment)
	}
}
