package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
)

func TestNextDeliveryDate(t *testing.T) {
	// 2023-03-08 is a Wednesday (index 2)
	tests := []struct {
		name    string
		today   time.Time
		weekday int
		want    time.Time
	}{
		{name: "today", today: core.Date(2023, time.March, 8), weekday: 2, want: core.Date(2023, time.March, 8)},
		{name: "later this week", today: core.Date(2023, time.March, 6), weekday: 2, want: core.Date(2023, time.March, 8)},
		{name: "next week", today: core.Date(2023, time.March, 9), weekday: 2, want: core.Date(2023, time.March, 15)},
		{name: "sunday to monday", today: core.Date(2023, time.March, 12), weekday: 0, want: core.Date(2023, time.March, 13)},
		{name: "monday to sunday", today: core.Date(2023, time.March, 13), weekday: 6, want: core.Date(2023, time.March, 19)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextDeliveryDate(tt.today, tt.weekday))
		})
	}
}

func TestGenerateFutureDeliveries(t *testing.T) {
	cycles := map[string]string{"veg": product.Weekly, "eggs": product.EvenWeeks, "none": product.NoDelivery}
	cycleOf := func(productID string) string { return cycles[productID] }
	subs := []subscription.Subscription{
		{ID: "1", ProductID: "veg", StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.March, 20)},
		{ID: "2", ProductID: "eggs", StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.March, 31)},
		{ID: "3", ProductID: "none", StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.April, 30)},
	}

	// wednesdays: 03-08 (w10), 03-15 (w11), 03-22 (w12), 03-29 (w13), 04-05 (w14)
	got := GenerateFutureDeliveries(subs, cycleOf, "pl1", core.Date(2023, time.March, 8), core.Date(2023, time.April, 30))

	type row struct {
		date time.Time
		subs []string
	}
	rows := make([]row, 0, len(got))
	for _, v := range got {
		assert.Equal(t, "pl1", v.PickupLocationID)
		assert.True(t, v.Upcoming)
		ids := make([]string, 0)
		for _, s := range v.Subscriptions {
			ids = append(ids, s.ID)
		}
		rows = append(rows, row{v.DeliveryDate, ids})
	}
	assert.Equal(t, []row{
		{core.Date(2023, time.March, 8), []string{"1", "2"}},
		{core.Date(2023, time.March, 15), []string{"1"}},
		{core.Date(2023, time.March, 22), []string{"2"}},
	}, rows)

	assert.Empty(t, GenerateFutureDeliveries(nil, cycleOf, "pl1", core.Date(2023, time.March, 8), core.Date(2023, time.April, 30)))
}

func TestQueryFilter_Match(t *testing.T) {
	d := Delivery{MemberID: "m1", DeliveryDate: core.Date(2023, time.March, 8)}
	assert.True(t, (*QueryFilter)(nil).Match(d))
	assert.True(t, (&QueryFilter{MemberID: "m1", DeliveryDate: core.Date(2023, time.March, 8)}).Match(d))
	assert.False(t, (&QueryFilter{MemberID: "m2"}).Match(d))
	assert.False(t, (&QueryFilter{DeliveryDate: core.Date(2023, time.March, 15)}).Match(d))
}
