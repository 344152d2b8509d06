package delivery_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
	testutil "github.com/trezcool/tapir/tests"
)

var now = time.Date(2023, time.March, 6, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func order(t *testing.T, app *testutil.App, m member.Member, productID string, qty int) {
	t.Helper()
	_, err := app.Subscriptions.Order(context.Background(), m, subscription.Order{
		Consent: true,
		Items:   []subscription.OrderItem{{ProductID: productID, Quantity: qty, SolidarityPrice: dec("1")}},
	})
	require.NoError(t, err)
}

func TestService_NextDeliveryDate(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()

	d, err := app.Deliveries.NextDeliveryDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Date(2023, time.March, 8), d)

	app.SetParam(t, parameter.DeliveryDay, "0")
	d, err = app.Deliveries.NextDeliveryDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Date(2023, time.March, 6), d)
}

func TestService_Deliveries(t *testing.T) {
	testutil.FreezeTime(t, now)
	app := testutil.NewApp(t)
	ctx := context.Background()

	period := app.CreatePeriod(t, core.Date(2023, time.January, 1), core.Date(2023, time.April, 30))
	veg := app.CreateProductType(t, period.ID, "Ernteanteile", product.Weekly, dec("1000"))
	eggs := app.CreateProductType(t, period.ID, "Eier", product.EvenWeeks, dec("100"))
	share := app.CreateProduct(t, veg.ID, "S", dec("60"), core.Date(2023, time.January, 1))
	box := app.CreateProduct(t, eggs.ID, "6 Eier", dec("10"), core.Date(2023, time.January, 1))

	ada := app.CreateMember(t, "Ada", "Lovelace", "ada@example.com")
	bob := app.CreateMember(t, "Bob", "Marley", "bob@example.com")
	order(t, app, ada, share.ID, 1)
	order(t, app, bob, box.ID, 2)

	cycleOf, err := app.Deliveries.CycleOf(ctx)
	require.NoError(t, err)
	assert.Equal(t, product.Weekly, cycleOf(share.ID))
	assert.Equal(t, product.EvenWeeks, cycleOf(box.ID))
	assert.Equal(t, "", cycleOf("unknown"))

	t.Run("planned", func(t *testing.T) {
		views, err := app.Deliveries.MemberDeliveries(ctx, ada.ID)
		require.NoError(t, err)
		dates := make([]time.Time, 0, len(views))
		for _, v := range views {
			assert.True(t, v.Upcoming)
			assert.Empty(t, v.ID)
			assert.Equal(t, ada.ID, v.MemberID)
			require.Len(t, v.Subscriptions, 1)
			dates = append(dates, v.DeliveryDate)
		}
		assert.Equal(t, []time.Time{
			core.Date(2023, time.April, 5),
			core.Date(2023, time.April, 12),
			core.Date(2023, time.April, 19),
			core.Date(2023, time.April, 26),
		}, dates)

		// ISO weeks 14 & 16 are even
		views, err = app.Deliveries.MemberDeliveries(ctx, bob.ID)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, core.Date(2023, time.April, 5), views[0].DeliveryDate)
		assert.Equal(t, core.Date(2023, time.April, 19), views[1].DeliveryDate)
	})

	t.Run("recorded", func(t *testing.T) {
		day := core.Date(2023, time.April, 12)
		views, err := app.Deliveries.RecordDeliveries(ctx, day)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, ada.ID, views[0].MemberID)
		assert.NotEmpty(t, views[0].ID)
		assert.Equal(t, day, views[0].DeliveryDate)

		again, err := app.Deliveries.RecordDeliveries(ctx, day)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, views[0].ID, again[0].ID)

		planned, err := app.Deliveries.MemberDeliveries(ctx, ada.ID)
		require.NoError(t, err)
		require.Len(t, planned, 4)
		assert.Equal(t, day, planned[1].DeliveryDate)
		assert.Equal(t, views[0].ID, planned[1].ID)
		assert.Empty(t, planned[0].ID)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := app.Deliveries.MemberDeliveries(ctx, "unknown")
		assert.Error(t, err)
	})
}
