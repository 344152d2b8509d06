package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/mandate"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
	testutil "github.com/trezcool/tapir/tests"
)

var now = time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	app       *testutil.App
	period    product.GrowingPeriod
	baseType  product.ProductType
	extraType product.ProductType
	harvest   product.Product
	eggs      product.Product
	member    member.Member
	other     member.Member
}

func newFixture(t *testing.T) *fixture {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	f := &fixture{app: app}
	f.period = app.CreatePeriod(t, core.Date(2023, time.January, 1), core.Date(2023, time.December, 31))
	f.baseType = app.CreateProductType(t, f.period.ID, "Ernteanteile", product.Weekly, dec("1000"))
	f.extraType = app.CreateProductType(t, f.period.ID, "Eier", product.Weekly, dec("100"))
	f.harvest = app.CreateProduct(t, f.baseType.ID, "S", dec("60"), core.Date(2023, time.January, 1))
	f.eggs = app.CreateProduct(t, f.extraType.ID, "6 Eier", dec("10"), core.Date(2023, time.January, 1))
	f.member = app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")
	f.other = app.CreateMember(t, "Grace", "Hopper", "grace@example.com")
	app.SetParam(t, parameter.CoopBaseProductType, f.baseType.ID)
	return f
}

func (f *fixture) order(t *testing.T, m member.Member, items ...subscription.OrderItem) []subscription.Subscription {
	t.Helper()
	o := subscription.Order{Items: items, Consent: true}
	require.NoError(t, o.Validate(f.app.Validate))
	subs, err := f.app.Subscriptions.Order(context.Background(), m, o)
	require.NoError(t, err)
	return subs
}

func TestOrder_Validate(t *testing.T) {
	validate, _ := core.NewValidator()

	tests := []struct {
		name    string
		order   subscription.Order
		wantErr bool
	}{
		{name: "valid", order: subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: "p", Quantity: 1}}}},
		{name: "no consent", order: subscription.Order{Items: []subscription.OrderItem{{ProductID: "p", Quantity: 1}}}, wantErr: true},
		{name: "no items", order: subscription.Order{Consent: true}, wantErr: true},
		{name: "no quantity", order: subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: "p"}}}, wantErr: true},
		{
			name:    "solidarity too low",
			order:   subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: "p", Quantity: 1, SolidarityPrice: dec("0.4")}}},
			wantErr: true,
		},
		{
			name:    "solidarity too high",
			order:   subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: "p", Quantity: 1, SolidarityPrice: dec("2.5")}}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.order.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	o := subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: "p", Quantity: 1}}}
	require.NoError(t, o.Validate(validate))
	assert.True(t, dec("1").Equal(o.Items[0].SolidarityPrice))
}

func TestService_Order(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subs := f.order(t, f.member,
		subscription.OrderItem{ProductID: f.harvest.ID, Quantity: 1},
		subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 2, SolidarityPrice: dec("1.5")},
	)
	require.Len(t, subs, 2)
	for _, s := range subs {
		assert.Equal(t, f.member.ID, s.MemberID)
		assert.Equal(t, f.period.ID, s.PeriodID)
		assert.Equal(t, core.Date(2023, time.April, 1), s.StartDate)
		assert.Equal(t, f.period.EndDate, s.EndDate)
		assert.Equal(t, subs[0].MandateRef, s.MandateRef)
		assert.NotNil(t, s.ConsentTS)
	}
	assert.Regexp(t, `^000001/[0-9A-F]{12}$`, subs[0].MandateRef)
	assert.False(t, mandate.IsForCoopShares(subs[0].MandateRef))

	total, err := f.app.Subscriptions.TotalPrice(ctx, subs)
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(total), total.String())

	sent := f.app.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "1 × S (Ernteanteile), 01.04.2023 bis 31.12.2023: 60,00 € / Monat")
	assert.Contains(t, sent[0].TextContent, "Gesamt: 90,00 € / Monat")
	assert.Contains(t, sent[0].TextContent, "Probezeit bis: 28.04.2023")

	groups, err := f.app.Subscriptions.ActiveGroupedByType(ctx, f.member.ID, core.Date(2023, time.May, 1))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "Eier", groups[0].ProductType.Name)
	assert.Equal(t, "Ernteanteile", groups[1].ProductType.Name)
	assert.True(t, dec("30").Equal(groups[0].Subscriptions[0].TotalPrice))

	groups, err = f.app.Subscriptions.ActiveGroupedByType(ctx, f.member.ID, core.Date(2023, time.March, 31))
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestService_Order_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deleted := f.app.CreateProduct(t, f.baseType.ID, "M", dec("80"), core.Date(2023, time.January, 1))
	require.NoError(t, f.app.Products.DeleteProduct(ctx, deleted))

	tests := []struct {
		name  string
		order subscription.Order
		field string
	}{
		{
			name:  "unknown product",
			order: subscription.Order{Items: []subscription.OrderItem{{ProductID: "unknown", Quantity: 1, SolidarityPrice: dec("1")}}},
			field: "items[0].product_id",
		},
		{
			name:  "deleted product",
			order: subscription.Order{Items: []subscription.OrderItem{{ProductID: deleted.ID, Quantity: 1, SolidarityPrice: dec("1")}}},
			field: "items[0].product_id",
		},
		{
			name:  "unknown period",
			order: subscription.Order{PeriodID: "unknown", Items: []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1, SolidarityPrice: dec("1")}}},
			field: "period_id",
		},
		{
			name: "no period at start date",
			order: subscription.Order{
				StartDate: core.NewDay(core.Date(2024, time.February, 1)),
				Items:     []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1, SolidarityPrice: dec("1")}},
			},
			field: "start_date",
		},
		{
			name: "start date outside the period",
			order: subscription.Order{
				PeriodID:  f.period.ID,
				StartDate: core.NewDay(core.Date(2024, time.February, 1)),
				Items:     []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1, SolidarityPrice: dec("1")}},
			},
			field: "start_date",
		},
		{
			name:  "capacity exceeded",
			order: subscription.Order{Items: []subscription.OrderItem{{ProductID: f.eggs.ID, Quantity: 11, SolidarityPrice: dec("1")}}},
			field: "items[0].quantity",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.Subscriptions.Order(ctx, f.member, tt.order)
			require.True(t, core.IsValidationError(err), err)
			verr := testutil.ValidationErr(err)
			require.NotNil(t, verr)
			fields := errors.Cause(err).(*core.ValidationError).Fields
			require.Len(t, fields, 1)
			assert.Equal(t, tt.field, fields[0].Field)
		})
	}

	subs, err := f.app.Subscriptions.Query(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.Empty(t, f.app.Mail.Sent())
}

func TestService_Order_Capacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.order(t, f.member, subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 6})
	f.order(t, f.other, subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 4})

	// the solidarity factor does not count
	_, err := f.app.Subscriptions.Order(ctx, f.other, subscription.Order{
		Consent: true,
		Items:   []subscription.OrderItem{{ProductID: f.eggs.ID, Quantity: 1, SolidarityPrice: dec("0.5")}},
	})
	assert.Equal(t, subscription.ErrCapacityExceeded, testutil.ValidationErr(err))

	// cancelled subscriptions free their capacity
	trial, err := f.app.Subscriptions.InTrial(ctx, f.member.ID)
	require.NoError(t, err)
	_, err = f.app.Subscriptions.CancelTrial(ctx, "staff", f.member, subscription.TrialCancellation{SubscriptionIDs: []string{trial[0].ID}})
	require.NoError(t, err)
	f.order(t, f.other, subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 6})
}

func TestService_Renew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := subscription.Order{Consent: true, Items: []subscription.OrderItem{{ProductID: f.harvest.ID, Quantity: 1, SolidarityPrice: dec("1")}}}
	_, err := f.app.Subscriptions.Renew(ctx, f.member, o)
	require.True(t, core.IsValidationError(err))

	next := f.app.CreatePeriod(t, core.Date(2024, time.January, 1), core.Date(2024, time.December, 31))
	subs, err := f.app.Subscriptions.Renew(ctx, f.member, o)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, next.ID, subs[0].PeriodID)
	assert.Equal(t, core.Date(2024, time.January, 1), subs[0].StartDate)
	assert.Equal(t, core.Date(2024, time.December, 31), subs[0].EndDate)
}

func TestService_CancelTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subs := f.order(t, f.member,
		subscription.OrderItem{ProductID: f.harvest.ID, Quantity: 1},
		subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 1},
	)
	base, extra := subs[0], subs[1]
	f.app.Mail.Reset()

	trial, err := f.app.Subscriptions.InTrial(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Len(t, trial, 2)

	tests := []struct {
		name    string
		ids     []string
		wantErr error
	}{
		{name: "nothing selected", wantErr: subscription.ErrNothingSelected},
		{name: "not in trial", ids: []string{"unknown"}, wantErr: subscription.ErrNotInTrial},
		{name: "base without additional", ids: []string{base.ID}, wantErr: subscription.ErrKeepAdditional},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.Subscriptions.CancelTrial(ctx, "staff", f.member, subscription.TrialCancellation{SubscriptionIDs: tt.ids})
			assert.Equal(t, tt.wantErr, testutil.ValidationErr(err))
		})
	}

	_, err = f.app.Members.AddShares(ctx, f.member, member.NewShares{Quantity: 2, EntryDate: core.NewDay(core.Date(2023, time.May, 1))})
	require.NoError(t, err)

	end, err := f.app.Subscriptions.CancelTrial(ctx, "staff", f.member, subscription.TrialCancellation{
		SubscriptionIDs: []string{base.ID, extra.ID},
		CancelCoop:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, core.Date(2023, time.April, 28), end)

	for _, id := range []string{base.ID, extra.ID} {
		s, err := f.app.Subscriptions.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.IsCancelled())
		assert.Equal(t, core.Date(2023, time.April, 28), s.EndDate)
	}

	trial, err = f.app.Subscriptions.InTrial(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, trial)

	shares, err := f.app.Members.Shares(ctx, f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, shares)

	entries, err := f.app.Logs.Query(ctx, &logentry.QueryFilter{MemberID: f.member.ID, Kind: logentry.KindTrialCancellation})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	sent := f.app.Mail.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "zum 28.04.2023")
	assert.Contains(t, sent[0].TextContent, "Mitgliedschaftsantrag")
}

func TestService_CancelTrial_Additional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subs := f.order(t, f.member,
		subscription.OrderItem{ProductID: f.harvest.ID, Quantity: 1},
		subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 1},
	)

	// additional subscriptions may go alone
	end, err := f.app.Subscriptions.CancelTrial(ctx, "staff", f.member, subscription.TrialCancellation{SubscriptionIDs: []string{subs[1].ID}})
	require.NoError(t, err)
	assert.Equal(t, core.Date(2023, time.April, 28), end)

	// without base product type, the base rule does not apply
	f.app.SetParam(t, parameter.CoopBaseProductType, "")
	subs = f.order(t, f.other,
		subscription.OrderItem{ProductID: f.harvest.ID, Quantity: 1},
		subscription.OrderItem{ProductID: f.eggs.ID, Quantity: 1},
	)
	_, err = f.app.Subscriptions.CancelTrial(ctx, "staff", f.other, subscription.TrialCancellation{SubscriptionIDs: []string{subs[0].ID}})
	assert.NoError(t, err)
}

func TestService_Future(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.order(t, f.member, subscription.OrderItem{ProductID: f.harvest.ID, Quantity: 1})

	subs, err := f.app.Subscriptions.Future(ctx, f.member.ID, core.Date(2023, time.June, 1))
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	subs, err = f.app.Subscriptions.Future(ctx, f.member.ID, core.Date(2024, time.January, 1))
	require.NoError(t, err)
	assert.Empty(t, subs)
}
