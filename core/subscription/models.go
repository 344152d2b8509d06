package subscription

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
)

var (
	minSolidarity = decimal.RequireFromString("0.5")
	maxSolidarity = decimal.NewFromInt(2)
)

type Subscription struct {
	ID              string          `json:"id"`
	MemberID        string          `json:"member_id"`
	ProductID       string          `json:"product_id"`
	PeriodID        string          `json:"period_id"`
	Quantity        int             `json:"quantity"`
	SolidarityPrice decimal.Decimal `json:"solidarity_price"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         time.Time       `json:"end_date"`
	CancellationTS  *time.Time      `json:"cancellation_ts"`
	ConsentTS       *time.Time      `json:"consent_ts"`
	MandateRef      string          `json:"mandate_ref"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ActiveAt reports whether `d` is within the subscription dates (bounds included).
func (s Subscription) ActiveAt(d time.Time) bool {
	return !d.Before(s.StartDate) && !d.After(s.EndDate)
}

func (s Subscription) IsCancelled() bool { return s.CancellationTS != nil }

// TrialEndDate is the last day of the trial period lasting `weeks` weeks from the start date.
func (s Subscription) TrialEndDate(weeks int) time.Time {
	return s.StartDate.AddDate(0, 0, weeks*7-1)
}

func (s Subscription) InTrial(today time.Time, weeks int) bool {
	return !s.IsCancelled() && !s.TrialEndDate(weeks).Before(today)
}

// Total is the monthly price of the subscription for a product `price`.
func (s Subscription) Total(price decimal.Decimal) decimal.Decimal {
	return price.Mul(s.SolidarityPrice).Mul(decimal.NewFromInt(int64(s.Quantity)))
}

// TotalPrice sums the monthly price of `subs`, each priced at its start date.
func TotalPrice(subs []Subscription, prices product.PriceList) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, s := range subs {
		price, ok := prices.At(s.ProductID, s.StartDate)
		if !ok {
			return decimal.Zero, fmt.Errorf("product %s has no price at %s", s.ProductID, core.FormatDate(s.StartDate))
		}
		total = total.Add(s.Total(price))
	}
	return total.Round(2), nil
}

// ActiveAt filters the subscriptions active at `d`.
func ActiveAt(subs []Subscription, d time.Time) []Subscription {
	res := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		if s.ActiveAt(d) {
			res = append(res, s)
		}
	}
	return res
}

// Detail is a subscription with its product information resolved.
type Detail struct {
	Subscription
	ProductName   string          `json:"product_name"`
	ProductTypeID string          `json:"product_type_id"`
	ProductType   string          `json:"product_type"`
	Price         decimal.Decimal `json:"price"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

// TypeGroup holds the subscriptions of a member for one product type.
type TypeGroup struct {
	ProductType   product.ProductType `json:"product_type"`
	Subscriptions []Detail            `json:"subscriptions"`
}

type QueryFilter struct {
	MemberID   string   `query:"member"`
	PeriodID   string   `query:"period"`
	MandateRef string   `query:"mandate_ref"`
	ActiveAt   core.Day `query:"active_at"`
	EndFrom    core.Day `query:"end_from"` // end date on or after
	ProductIDs []string `query:"product"`
	IDs        []string `query:"-"`
	Cancelled  *bool    `query:"cancelled"`
}

func (qf *QueryFilter) Match(s Subscription) bool {
	if qf == nil {
		return true
	}
	if qf.MemberID != "" && s.MemberID != qf.MemberID {
		return false
	}
	if qf.PeriodID != "" && s.PeriodID != qf.PeriodID {
		return false
	}
	if qf.MandateRef != "" && s.MandateRef != qf.MandateRef {
		return false
	}
	if !qf.ActiveAt.IsZero() && !s.ActiveAt(qf.ActiveAt.Time) {
		return false
	}
	if !qf.EndFrom.IsZero() && s.EndDate.Before(qf.EndFrom.Time) {
		return false
	}
	if len(qf.ProductIDs) > 0 && !contains(qf.ProductIDs, s.ProductID) {
		return false
	}
	if len(qf.IDs) > 0 && !contains(qf.IDs, s.ID) {
		return false
	}
	if qf.Cancelled != nil && s.IsCancelled() != *qf.Cancelled {
		return false
	}
	return true
}

func contains(vals []string, v string) bool {
	for _, val := range vals {
		if val == v {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID       string          `json:"product_id" validate:"required"`
	Quantity        int             `json:"quantity" validate:"required,min=1"`
	SolidarityPrice decimal.Decimal `json:"solidarity_price"`
}

// Order subscribes a member to products of one growing period. All items share one new mandate reference.
type Order struct {
	PeriodID  string      `json:"period_id"`
	StartDate core.Day    `json:"start_date"`
	Items     []OrderItem `json:"items" validate:"required,min=1,dive"`
	Consent   bool        `json:"consent" validate:"required"`
}

func (o *Order) Validate(validate *validator.Validate) error {
	for i := range o.Items {
		if o.Items[i].SolidarityPrice.IsZero() {
			o.Items[i].SolidarityPrice = decimal.NewFromInt(1)
		}
	}
	if err := validate.Struct(o); err != nil {
		return err
	}
	for i, item := range o.Items {
		if item.SolidarityPrice.LessThan(minSolidarity) || item.SolidarityPrice.GreaterThan(maxSolidarity) {
			return core.NewFieldError(fmt.Sprintf("items[%d].solidarity_price", i),
				fmt.Sprintf("must be between %s and %s", minSolidarity, maxSolidarity))
		}
	}
	return nil
}

// TrialCancellation selects subscriptions in trial to cancel. CancelCoop also withdraws the membership
// application of a new member.
type TrialCancellation struct {
	SubscriptionIDs []string `json:"subscription_ids"`
	CancelCoop      bool     `json:"cancel_coop"`
}
