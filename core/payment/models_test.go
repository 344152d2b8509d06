package payment

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNextPaymentDate(t *testing.T) {
	tests := []struct {
		name  string
		today time.Time
		want  time.Time
	}{
		{name: "before due day", today: core.Date(2023, time.March, 14), want: core.Date(2023, time.March, 15)},
		{name: "on due day", today: core.Date(2023, time.March, 15), want: core.Date(2023, time.April, 15)},
		{name: "after due day", today: core.Date(2023, time.March, 20), want: core.Date(2023, time.April, 15)},
		{name: "year end", today: core.Date(2023, time.December, 31), want: core.Date(2024, time.January, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPaymentDate(tt.today, 15))
		})
	}
}

func TestGroupByMandateRef(t *testing.T) {
	subs := []subscription.Subscription{
		{ID: "1", MandateRef: "000002/B"},
		{ID: "2", MandateRef: "000001/A"},
		{ID: "3", MandateRef: "000002/B"},
	}
	refs, groups := GroupByMandateRef(subs)
	assert.Equal(t, []string{"000001/A", "000002/B"}, refs)
	assert.Len(t, groups["000002/B"], 2)
	assert.Len(t, groups["000001/A"], 1)
}

func TestGenerateFuturePayments(t *testing.T) {
	prices := product.NewPriceList([]product.Price{
		{ProductID: "s", Price: dec("60"), ValidFrom: core.Date(2023, time.January, 1)},
		{ProductID: "eggs", Price: dec("10"), ValidFrom: core.Date(2023, time.January, 1)},
	})
	one := dec("1")
	subs := []subscription.Subscription{
		{ID: "1", ProductID: "s", Quantity: 1, SolidarityPrice: one, MandateRef: "000001/A",
			StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.June, 30)},
		{ID: "2", ProductID: "eggs", Quantity: 2, SolidarityPrice: one, MandateRef: "000001/A",
			StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.April, 30)},
		{ID: "3", ProductID: "s", Quantity: 1, SolidarityPrice: dec("1.5"), MandateRef: "000001/B",
			StartDate: core.Date(2023, time.May, 1), EndDate: core.Date(2023, time.June, 30)},
	}
	previous := []Payment{{MandateRef: "000001/A", DueDate: core.Date(2023, time.March, 15), Amount: dec("80"), Status: StatusPaid}}

	got, err := GenerateFuturePayments(subs, prices, previous, core.Date(2023, time.March, 15), core.Date(2023, time.July, 31))
	require.NoError(t, err)

	type row struct {
		Ref    string
		Due    time.Time
		Amount string
	}
	rows := make([]row, 0, len(got))
	for _, v := range got {
		assert.Equal(t, StatusDue, v.Status)
		assert.False(t, v.Edited)
		assert.True(t, v.Upcoming)
		assert.True(t, v.Amount.Equal(v.CalculatedAmount))
		rows = append(rows, row{v.MandateRef, v.DueDate, v.Amount.StringFixed(2)})
	}
	want := []row{
		{"000001/A", core.Date(2023, time.April, 15), "80.00"},
		{"000001/A", core.Date(2023, time.May, 15), "60.00"},
		{"000001/B", core.Date(2023, time.May, 15), "90.00"},
		{"000001/A", core.Date(2023, time.June, 15), "60.00"},
		{"000001/B", core.Date(2023, time.June, 15), "90.00"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("GenerateFuturePayments() mismatch (-want +got):\n%s", diff)
	}

	got, err = GenerateFuturePayments(nil, prices, nil, core.Date(2023, time.March, 15), core.Date(2023, time.July, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSortViews(t *testing.T) {
	views := []View{
		{Payment: Payment{MandateRef: "b", DueDate: core.Date(2023, time.May, 15)}},
		{Payment: Payment{MandateRef: "b", DueDate: core.Date(2023, time.April, 15)}},
		{Payment: Payment{MandateRef: "a", DueDate: core.Date(2023, time.May, 15)}},
	}
	SortViews(views)
	assert.Equal(t, "b", views[0].MandateRef)
	assert.Equal(t, "a", views[1].MandateRef)
	assert.Equal(t, core.Date(2023, time.May, 15), views[2].DueDate)
}

func TestQueryFilter_Match(t *testing.T) {
	p := Payment{MandateRef: "r1", DueDate: core.Date(2023, time.May, 15), Status: StatusDue}
	assert.True(t, (*QueryFilter)(nil).Match(p))
	assert.True(t, (&QueryFilter{MandateRefs: []string{"r0", "r1"}}).Match(p))
	assert.False(t, (&QueryFilter{MandateRefs: []string{"r0"}}).Match(p))
	assert.True(t, (&QueryFilter{DueDate: core.Date(2023, time.May, 15)}).Match(p))
	assert.False(t, (&QueryFilter{DueAfter: core.Date(2023, time.May, 15)}).Match(p))
	assert.True(t, (&QueryFilter{DueAfter: core.Date(2023, time.May, 14)}).Match(p))
	assert.False(t, (&QueryFilter{Status: StatusPaid}).Match(p))
}

func TestEditPayment_Validate(t *testing.T) {
	validate, _ := core.NewValidator()
	today := core.Date(2023, time.May, 1)
	valid := EditPayment{
		MandateRef:    "000001/A",
		DueDate:       core.NewDay(core.Date(2023, time.May, 15)),
		Amount:        dec("42"),
		Comment:       " member asked ",
		SecurityCheck: true,
	}

	tests := []struct {
		name    string
		modify  func(ep *EditPayment)
		wantErr bool
	}{
		{name: "valid", modify: func(ep *EditPayment) {}},
		{name: "no comment", modify: func(ep *EditPayment) { ep.Comment = "  " }, wantErr: true},
		{name: "no security check", modify: func(ep *EditPayment) { ep.SecurityCheck = false }, wantErr: true},
		{name: "zero amount", modify: func(ep *EditPayment) { ep.Amount = decimal.Zero }, wantErr: true},
		{name: "negative amount", modify: func(ep *EditPayment) { ep.Amount = dec("-1") }, wantErr: true},
		{name: "past due date", modify: func(ep *EditPayment) { ep.DueDate = core.NewDay(today) }, wantErr: true},
		{name: "no due date", modify: func(ep *EditPayment) { ep.DueDate = core.Day{} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := valid
			tt.modify(&ep)
			err := ep.Validate(validate, today)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, "member asked", ep.Comment)
			}
		})
	}
}
