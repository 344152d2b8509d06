package subscription

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSubscription_Trial(t *testing.T) {
	sub := Subscription{StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2024, time.February, 29)}
	assert.Equal(t, core.Date(2023, time.March, 28), sub.TrialEndDate(4))
	assert.Equal(t, core.Date(2023, time.March, 7), sub.TrialEndDate(1))

	tests := []struct {
		name      string
		today     time.Time
		cancelled bool
		want      bool
	}{
		{name: "before start", today: core.Date(2023, time.February, 15), want: true},
		{name: "last trial day", today: core.Date(2023, time.March, 28), want: true},
		{name: "after trial", today: core.Date(2023, time.March, 29), want: false},
		{name: "cancelled", today: core.Date(2023, time.March, 10), cancelled: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sub
			if tt.cancelled {
				now := time.Now()
				s.CancellationTS = &now
			}
			assert.Equal(t, tt.want, s.InTrial(tt.today, 4))
		})
	}
}

func TestSubscription_ActiveAt(t *testing.T) {
	sub := Subscription{StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.March, 31)}
	assert.False(t, sub.ActiveAt(core.Date(2023, time.February, 28)))
	assert.True(t, sub.ActiveAt(core.Date(2023, time.March, 1)))
	assert.True(t, sub.ActiveAt(core.Date(2023, time.March, 31)))
	assert.False(t, sub.ActiveAt(core.Date(2023, time.April, 1)))

	subs := []Subscription{sub, {StartDate: core.Date(2023, time.April, 1), EndDate: core.Date(2023, time.April, 30)}}
	assert.Len(t, ActiveAt(subs, core.Date(2023, time.April, 15)), 1)
}

func TestTotalPrice(t *testing.T) {
	prices := product.NewPriceList([]product.Price{
		{ProductID: "s", Price: dec("60"), ValidFrom: core.Date(2023, time.January, 1)},
		{ProductID: "s", Price: dec("70"), ValidFrom: core.Date(2023, time.June, 1)},
		{ProductID: "m", Price: dec("80.5"), ValidFrom: core.Date(2023, time.January, 1)},
	})
	subs := []Subscription{
		{ProductID: "s", Quantity: 1, SolidarityPrice: dec("1"), StartDate: core.Date(2023, time.March, 1)},
		{ProductID: "s", Quantity: 2, SolidarityPrice: dec("1.1"), StartDate: core.Date(2023, time.July, 1)},
		{ProductID: "m", Quantity: 1, SolidarityPrice: dec("0.5"), StartDate: core.Date(2023, time.March, 1)},
	}

	total, err := TotalPrice(subs, prices)
	require.NoError(t, err)
	assert.True(t, dec("254.25").Equal(total), total.String()) // 60 + 154 + 40.25

	total, err = TotalPrice(nil, prices)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = TotalPrice([]Subscription{{ProductID: "s", Quantity: 1, StartDate: core.Date(2022, time.March, 1)}}, prices)
	assert.Error(t, err)
}

func TestQueryFilter_Match(t *testing.T) {
	now := time.Now()
	sub := Subscription{
		ID: "1", MemberID: "m1", ProductID: "p1", PeriodID: "gp1", MandateRef: "000001/ABC",
		StartDate: core.Date(2023, time.March, 1), EndDate: core.Date(2023, time.December, 31),
	}
	cancelled := sub
	cancelled.CancellationTS = &now
	yes, no := true, false

	tests := []struct {
		name   string
		filter *QueryFilter
		sub    Subscription
		want   bool
	}{
		{name: "nil", sub: sub, want: true},
		{name: "member", filter: &QueryFilter{MemberID: "m1"}, sub: sub, want: true},
		{name: "other member", filter: &QueryFilter{MemberID: "m2"}, sub: sub, want: false},
		{name: "period", filter: &QueryFilter{PeriodID: "gp2"}, sub: sub, want: false},
		{name: "mandate ref", filter: &QueryFilter{MandateRef: "000001/ABC"}, sub: sub, want: true},
		{name: "active", filter: &QueryFilter{ActiveAt: core.NewDay(core.Date(2023, time.June, 1))}, sub: sub, want: true},
		{name: "inactive", filter: &QueryFilter{ActiveAt: core.NewDay(core.Date(2024, time.June, 1))}, sub: sub, want: false},
		{name: "ends after", filter: &QueryFilter{EndFrom: core.NewDay(core.Date(2023, time.December, 31))}, sub: sub, want: true},
		{name: "ended", filter: &QueryFilter{EndFrom: core.NewDay(core.Date(2024, time.January, 1))}, sub: sub, want: false},
		{name: "products", filter: &QueryFilter{ProductIDs: []string{"p2", "p1"}}, sub: sub, want: true},
		{name: "ids", filter: &QueryFilter{IDs: []string{"2"}}, sub: sub, want: false},
		{name: "not cancelled", filter: &QueryFilter{Cancelled: &no}, sub: cancelled, want: false},
		{name: "cancelled", filter: &QueryFilter{Cancelled: &yes}, sub: cancelled, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.sub))
		})
	}
}

func TestOrder_Validate(t *testing.T) {
	validate, _ := core.NewValidator()

	tests := []struct {
		name    string
		order   Order
		wantErr bool
	}{
		{name: "no items", order: Order{Consent: true}, wantErr: true},
		{name: "no consent", order: Order{Items: []OrderItem{{ProductID: "p", Quantity: 1}}}, wantErr: true},
		{name: "zero quantity", order: Order{Consent: true, Items: []OrderItem{{ProductID: "p"}}}, wantErr: true},
		{name: "solidarity too low", order: Order{Consent: true, Items: []OrderItem{{ProductID: "p", Quantity: 1, SolidarityPrice: dec("0.4")}}}, wantErr: true},
		{name: "solidarity too high", order: Order{Consent: true, Items: []OrderItem{{ProductID: "p", Quantity: 1, SolidarityPrice: dec("2.1")}}}, wantErr: true},
		{name: "valid bounds", order: Order{Consent: true, Items: []OrderItem{
			{ProductID: "p", Quantity: 1, SolidarityPrice: dec("0.5")},
			{ProductID: "q", Quantity: 3, SolidarityPrice: dec("2")},
		}}},
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

	o := Order{Consent: true, Items: []OrderItem{{ProductID: "p", Quantity: 1}}}
	require.NoError(t, o.Validate(validate))
	assert.True(t, dec("1").Equal(o.Items[0].SolidarityPrice), "solidarity factor defaults to 1")
}

func TestCheckTrialCancellation(t *testing.T) {
	trial := []Subscription{
		{ID: "base1", ProductID: "harvest"},
		{ID: "base2", ProductID: "harvest"},
		{ID: "extra", ProductID: "eggs"},
	}
	types := map[string]string{"harvest": "base", "eggs": "additional"}
	typeOf := func(s Subscription) string { return types[s.ProductID] }
	sel := func(ids ...string) map[string]bool {
		m := make(map[string]bool)
		for _, id := range ids {
			m[id] = true
		}
		return m
	}

	tests := []struct {
		name     string
		selected map[string]bool
		baseType string
		wantErr  error
	}{
		{name: "nothing", selected: sel(), baseType: "base", wantErr: ErrNothingSelected},
		{name: "not in trial", selected: sel("other"), baseType: "base", wantErr: ErrNotInTrial},
		{name: "all base keeping additional", selected: sel("base1", "base2"), baseType: "base", wantErr: ErrKeepAdditional},
		{name: "one base", selected: sel("base1"), baseType: "base"},
		{name: "additional only", selected: sel("extra"), baseType: "base"},
		{name: "everything", selected: sel("base1", "base2", "extra"), baseType: "base"},
		{name: "no base type", selected: sel("base1", "base2"), baseType: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTrialCancellation(trial, tt.selected, typeOf, tt.baseType)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsValidationError(err))
			assert.Equal(t, tt.wantErr, err.(*core.ValidationError).Err)
		})
	}
}
