package payment

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
)

const (
	StatusDue  = "DUE"
	StatusPaid = "PAID"

	KindCoopShares    = "coop_shares"
	KindSubscriptions = "subscriptions"
)

type Payment struct {
	ID            string          `json:"id"`
	MandateRef    string          `json:"mandate_ref"`
	DueDate       time.Time       `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Edited        bool            `json:"edited"`
	TransactionID string          `json:"transaction_id"`
}

// Transaction groups the payments exported together.
type Transaction struct {
	ID        string    `json:"id"`
	FileID    string    `json:"file_id"`
	CreatedAt time.Time `json:"created_at"`
}

// View is a stored or generated payment as shown to members & staff.
type View struct {
	Payment
	Kind             string                      `json:"kind"`
	CalculatedAmount decimal.Decimal             `json:"calculated_amount"`
	Upcoming         bool                        `json:"upcoming"`
	Subscriptions    []subscription.Subscription `json:"subscriptions,omitempty"`
}

type QueryFilter struct {
	MandateRefs []string
	DueDate     time.Time
	DueAfter    time.Time
	Status      string
}

func (qf *QueryFilter) Match(p Payment) bool {
	if qf == nil {
		return true
	}
	if len(qf.MandateRefs) > 0 {
		found := false
		for _, ref := range qf.MandateRefs {
			if ref == p.MandateRef {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !qf.DueDate.IsZero() && !p.DueDate.Equal(qf.DueDate) {
		return false
	}
	if !qf.DueAfter.IsZero() && !p.DueDate.After(qf.DueAfter) {
		return false
	}
	return qf.Status == "" || p.Status == qf.Status
}

// NextPaymentDate returns the due day of the current month if `today` is before it, of the next month otherwise.
func NextPaymentDate(today time.Time, dueDay int) time.Time {
	d := core.Date(today.Year(), today.Month(), dueDay)
	if today.Before(d) {
		return d
	}
	return core.Date(today.Year(), today.Month()+1, dueDay)
}

// GroupByMandateRef groups `subs` by mandate reference; the references are sorted.
func GroupByMandateRef(subs []subscription.Subscription) ([]string, map[string][]subscription.Subscription) {
	groups := make(map[string][]subscription.Subscription)
	refs := make([]string, 0)
	for _, s := range subs {
		if _, ok := groups[s.MandateRef]; !ok {
			refs = append(refs, s.MandateRef)
		}
		groups[s.MandateRef] = append(groups[s.MandateRef], s)
	}
	sort.Strings(refs)
	return refs, groups
}

type paymentKey struct {
	ref string
	due int64
}

// GenerateFuturePayments plans the monthly payments of `subs` from `from` until `until` (included): for each
// due date, one payment per mandate reference of the subscriptions active that day. Dates & references already
// in `previous` are skipped.
func GenerateFuturePayments(subs []subscription.Subscription, prices product.PriceList, previous []Payment, from, until time.Time) ([]View, error) {
	stored := make(map[paymentKey]bool, len(previous))
	for _, p := range previous {
		stored[paymentKey{p.MandateRef, p.DueDate.Unix()}] = true
	}

	res := make([]View, 0)
	for due := from; !due.After(until); due = due.AddDate(0, 1, 0) {
		refs, groups := GroupByMandateRef(subscription.ActiveAt(subs, due))
		for _, ref := range refs {
			if stored[paymentKey{ref, due.Unix()}] {
				continue
			}
			amount, err := subscription.TotalPrice(groups[ref], prices)
			if err != nil {
				return nil, err
			}
			res = append(res, View{
				Payment: Payment{
					MandateRef: ref,
					DueDate:    due,
					Amount:     amount,
					Status:     StatusDue,
				},
				Kind:             KindSubscriptions,
				CalculatedAmount: amount,
				Upcoming:         true,
				Subscriptions:    groups[ref],
			})
		}
	}
	return res, nil
}

// SortViews orders payments by due date, then mandate reference.
func SortViews(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		if !views[i].DueDate.Equal(views[j].DueDate) {
			return views[i].DueDate.Before(views[j].DueDate)
		}
		return views[i].MandateRef < views[j].MandateRef
	})
}

// EditPayment overrides the amount of a future payment.
type EditPayment struct {
	MandateRef    string          `json:"mandate_ref" validate:"required"`
	DueDate       core.Day        `json:"due_date"`
	Amount        decimal.Decimal `json:"amount"`
	Comment       string          `json:"comment" validate:"required"`
	SecurityCheck bool            `json:"security_check" validate:"required"`
}

func (ep *EditPayment) Validate(validate *validator.Validate, today time.Time) error {
	ep.Comment = core.CleanString(ep.Comment)
	if err := validate.Struct(ep); err != nil {
		return err
	}
	if ep.DueDate.IsZero() {
		return core.NewFieldError("due_date", "this field is required")
	}
	if !ep.DueDate.After(today) {
		return core.NewFieldError("due_date", "only future payments can be edited")
	}
	if !ep.Amount.IsPositive() {
		return core.NewFieldError("amount", "must be greater than 0")
	}
	return nil
}

// SEPARow is a payment to collect from a member's bank account.
type SEPARow struct {
	Payment
	MemberNo     int    `json:"member_no"`
	AccountOwner string `json:"account_owner"`
	IBAN         string `json:"iban"`
}
