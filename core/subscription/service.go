package subscription

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/mandate"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/product"
)

var (
	// errors
	ErrNotFound         = errors.New("subscription not found")
	ErrNothingSelected  = errors.New("please select at least one subscription")
	ErrKeepAdditional   = errors.New("the additional subscriptions must be cancelled together with the base subscription")
	ErrNotInTrial       = errors.New("the subscription is not in its trial period")
	ErrCapacityExceeded = errors.New("the capacity of the product type is exceeded")
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, s Subscription) (Subscription, error)
		UpdateSubscription(ctx context.Context, s Subscription) (Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		// QuerySubscriptions returns the matching subscriptions ordered by start date.
		QuerySubscriptions(ctx context.Context, filter *QueryFilter) ([]Subscription, error)
	}

	Service struct {
		repo     Repository
		txor     core.Transactor
		products *product.Service
		members  *member.Service
		mandates *mandate.Service
		params   *parameter.Service
		logs     *logentry.Service
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	txor core.Transactor,
	products *product.Service,
	members *member.Service,
	mandates *mandate.Service,
	params *parameter.Service,
	logs *logentry.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
		vala.IsNotNil(products, "products"),
		vala.IsNotNil(members, "members"),
		vala.IsNotNil(mandates, "mandates"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(logs, "logs"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		txor:     txor,
		products: products,
		members:  members,
		mandates: mandates,
		params:   params,
		logs:     logs,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *Service) today() time.Time {
	return core.Today(svc.conf.Location())
}

func (svc *Service) trialWeeks(ctx context.Context) (int, error) {
	return svc.params.Int(ctx, parameter.MemberTrialPeriodWeek)
}

func (svc *Service) Get(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, filter)
}

// Future returns the subscriptions ending on or after `d`, of a single member if `memberID` is set.
func (svc *Service) Future(ctx context.Context, memberID string, d time.Time) ([]Subscription, error) {
	return svc.repo.QuerySubscriptions(ctx, &QueryFilter{MemberID: memberID, EndFrom: core.NewDay(d)})
}

// Details resolves the product information of `subs`, each priced at its start date.
func (svc *Service) Details(ctx context.Context, subs []Subscription) ([]Detail, error) {
	prods, err := svc.products.Products(ctx, &product.QueryFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	types, err := svc.products.ProductTypes(ctx)
	if err != nil {
		return nil, err
	}
	prices, err := svc.products.PriceList(ctx)
	if err != nil {
		return nil, err
	}

	prodByID := make(map[string]product.Product, len(prods))
	for _, p := range prods {
		prodByID[p.ID] = p
	}
	typeByID := make(map[string]product.ProductType, len(types))
	for _, pt := range types {
		typeByID[pt.ID] = pt
	}

	res := make([]Detail, 0, len(subs))
	for _, s := range subs {
		prod := prodByID[s.ProductID]
		price, _ := prices.At(s.ProductID, s.StartDate)
		res = append(res, Detail{
			Subscription:  s,
			ProductName:   prod.Name,
			ProductTypeID: prod.TypeID,
			ProductType:   typeByID[prod.TypeID].Name,
			Price:         price,
			TotalPrice:    s.Total(price).Round(2),
		})
	}
	return res, nil
}

// ActiveGroupedByType returns the subscriptions of a member active at `d`, grouped by product type.
// Groups are ordered by product type name.
func (svc *Service) ActiveGroupedByType(ctx context.Context, memberID string, d time.Time) ([]TypeGroup, error) {
	subs, err := svc.repo.QuerySubscriptions(ctx, &QueryFilter{MemberID: memberID, ActiveAt: core.NewDay(d)})
	if err != nil {
		return nil, err
	}
	details, err := svc.Details(ctx, subs)
	if err != nil {
		return nil, err
	}
	types, err := svc.products.ProductTypes(ctx)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*TypeGroup)
	for _, pt := range types {
		groups[pt.ID] = &TypeGroup{ProductType: pt, Subscriptions: []Detail{}}
	}
	res := make([]TypeGroup, 0)
	for _, det := range details {
		if g, ok := groups[det.ProductTypeID]; ok {
			g.Subscriptions = append(g.Subscriptions, det)
		}
	}
	for _, g := range groups {
		if len(g.Subscriptions) > 0 {
			res = append(res, *g)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ProductType.Name < res[j].ProductType.Name })
	return res, nil
}

// TotalPrice is the monthly price of `subs`.
func (svc *Service) TotalPrice(ctx context.Context, subs []Subscription) (decimal.Decimal, error) {
	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ProductID)
	}
	prices, err := svc.products.PriceList(ctx, ids...)
	if err != nil {
		return decimal.Zero, err
	}
	return TotalPrice(subs, prices)
}

// orderDates resolves the growing period of an order and the dates of its subscriptions.
func (svc *Service) orderDates(ctx context.Context, o Order) (period product.GrowingPeriod, start time.Time, err error) {
	today := svc.today()
	if o.PeriodID != "" {
		if period, err = svc.products.GetPeriod(ctx, o.PeriodID); err != nil {
			if errors.Cause(err) == product.ErrNotFound {
				return period, start, core.NewFieldError("period_id", "unknown growing period")
			}
			return period, start, err
		}
	} else {
		d := core.FirstOfNextMonth(today)
		if !o.StartDate.IsZero() {
			d = o.StartDate.Time
		}
		if period, err = svc.products.PeriodAt(ctx, d); err != nil {
			if errors.Cause(err) == product.ErrNoPeriod {
				return period, start, core.NewFieldError("start_date", "no growing period at this date")
			}
			return period, start, err
		}
	}

	start = o.StartDate.Time
	if start.IsZero() {
		start = core.FirstOfNextMonth(today)
		if period.StartDate.After(start) {
			start = period.StartDate
		}
	}
	if !period.Contains(start) {
		return period, start, core.NewFieldError("start_date", "the start date must be within the growing period")
	}
	return period, start, nil
}

// checkCapacity ensures the subscriptions of the period do not exceed the capacity of their product types,
// once `items` are added. A product type without capacity is not limited.
func (svc *Service) checkCapacity(ctx context.Context, periodID string, start time.Time, items []OrderItem, prodByID map[string]product.Product) error {
	caps, err := svc.products.Capacities(ctx, periodID)
	if err != nil {
		return err
	}
	notCancelled := false
	existing, err := svc.repo.QuerySubscriptions(ctx, &QueryFilter{PeriodID: periodID, Cancelled: &notCancelled})
	if err != nil {
		return err
	}
	prices, err := svc.products.PriceList(ctx)
	if err != nil {
		return err
	}

	used := make(map[string]decimal.Decimal)
	for _, s := range existing {
		price, _ := prices.At(s.ProductID, s.StartDate)
		typeID := prodByID[s.ProductID].TypeID
		used[typeID] = used[typeID].Add(price.Mul(decimal.NewFromInt(int64(s.Quantity))))
	}
	for i, item := range items {
		price, ok := prices.At(item.ProductID, start)
		if !ok {
			return core.NewFieldError(fmt.Sprintf("items[%d].product_id", i), product.ErrNoPrice.Error())
		}
		typeID := prodByID[item.ProductID].TypeID
		used[typeID] = used[typeID].Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))

		if capacity, ok := caps[typeID]; ok && used[typeID].GreaterThan(capacity) {
			return core.NewValidationError(ErrCapacityExceeded, core.FieldError{
				Field: fmt.Sprintf("items[%d].quantity", i),
				Error: ErrCapacityExceeded.Error(),
			})
		}
	}
	return nil
}

// Order creates one subscription per order item, all sharing a new mandate reference,
// then mails the order confirmation.
func (svc *Service) Order(ctx context.Context, m member.Member, o Order) ([]Subscription, error) {
	subs := make([]Subscription, 0, len(o.Items))
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		period, start, err := svc.orderDates(ctx, o)
		if err != nil {
			return err
		}

		prods, err := svc.products.Products(ctx, &product.QueryFilter{IncludeDeleted: true})
		if err != nil {
			return err
		}
		prodByID := make(map[string]product.Product, len(prods))
		for _, p := range prods {
			prodByID[p.ID] = p
		}
		for i, item := range o.Items {
			if p, ok := prodByID[item.ProductID]; !ok || p.Deleted {
				return core.NewFieldError(fmt.Sprintf("items[%d].product_id", i), "unknown product")
			}
		}
		if err = svc.checkCapacity(ctx, period.ID, start, o.Items, prodByID); err != nil {
			return err
		}

		ref, err := svc.mandates.Create(ctx, m.ID, m.MemberNo, false /* forCoopShares */)
		if err != nil {
			return errors.Wrap(err, "creating mandate ref")
		}
		now := core.NowFunc().UTC()
		for _, item := range o.Items {
			sub, err := svc.repo.CreateSubscription(ctx, Subscription{
				MemberID:        m.ID,
				ProductID:       item.ProductID,
				PeriodID:        period.ID,
				Quantity:        item.Quantity,
				SolidarityPrice: item.SolidarityPrice,
				StartDate:       start,
				EndDate:         period.EndDate,
				ConsentTS:       &now,
				MandateRef:      ref.Ref,
				CreatedAt:       now,
			})
			if err != nil {
				return errors.Wrap(err, "creating subscription")
			}
			subs = append(subs, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err = svc.sendOrderConfirmation(ctx, m, subs); err != nil {
		return subs, errors.Wrap(err, "sending order confirmation")
	}
	return subs, nil
}

// Renew orders subscriptions for the growing period following the current one.
func (svc *Service) Renew(ctx context.Context, m member.Member, o Order) ([]Subscription, error) {
	next, err := svc.products.NextPeriod(ctx, svc.today())
	if err != nil {
		if errors.Cause(err) == product.ErrNoPeriod {
			return nil, core.NewFieldError("period_id", "there is no upcoming growing period")
		}
		return nil, err
	}
	o.PeriodID = next.ID
	return svc.Order(ctx, m, o)
}

func (svc *Service) mailItems(ctx context.Context, subs []Subscription) ([]map[string]interface{}, decimal.Decimal, error) {
	details, err := svc.Details(ctx, subs)
	if err != nil {
		return nil, decimal.Zero, err
	}
	total := decimal.Zero
	items := make([]map[string]interface{}, 0, len(details))
	for _, det := range details {
		total = total.Add(det.TotalPrice)
		items = append(items, map[string]interface{}{
			"Quantity":    det.Quantity,
			"ProductName": det.ProductName,
			"ProductType": det.ProductType,
			"StartDate":   det.StartDate,
			"EndDate":     det.EndDate,
			"Total":       det.TotalPrice,
		})
	}
	return items, total, nil
}

func (svc *Service) sendOrderConfirmation(ctx context.Context, m member.Member, subs []Subscription) error {
	items, total, err := svc.mailItems(ctx, subs)
	if err != nil {
		return err
	}
	weeks, err := svc.trialWeeks(ctx)
	if err != nil {
		return err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: m.DisplayName(), Address: m.Email}},
		Subject:      "Bestätigung deiner Bestellung",
		TemplateName: "order_confirmation",
		TemplateData: map[string]interface{}{
			"FirstName":    m.FirstName,
			"Items":        items,
			"Total":        total,
			"TrialEndDate": subs[0].TrialEndDate(weeks),
		},
	})
	return nil
}

// InTrial returns the subscriptions of a member still in their trial period, ordered by start date.
func (svc *Service) InTrial(ctx context.Context, memberID string) ([]Subscription, error) {
	weeks, err := svc.trialWeeks(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := svc.repo.QuerySubscriptions(ctx, &QueryFilter{MemberID: memberID})
	if err != nil {
		return nil, err
	}
	today := svc.today()
	res := make([]Subscription, 0)
	for _, s := range subs {
		if s.InTrial(today, weeks) {
			res = append(res, s)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].StartDate.Before(res[j].StartDate) })
	return res, nil
}

// checkTrialCancellation rejects an empty selection and the cancellation of every base subscription
// when additional subscriptions in trial are kept.
func checkTrialCancellation(trial []Subscription, selected map[string]bool, typeOf func(Subscription) string, baseTypeID string) error {
	if len(selected) == 0 {
		return core.NewValidationError(ErrNothingSelected, core.FieldError{Field: "subscription_ids", Error: ErrNothingSelected.Error()})
	}
	inTrial := make(map[string]bool, len(trial))
	for _, s := range trial {
		inTrial[s.ID] = true
	}
	for id := range selected {
		if !inTrial[id] {
			return core.NewValidationError(ErrNotInTrial, core.FieldError{Field: "subscription_ids", Error: ErrNotInTrial.Error()})
		}
	}
	if baseTypeID == "" {
		return nil
	}

	var baseCount, baseSelected, additionalKept int
	for _, s := range trial {
		if typeOf(s) == baseTypeID {
			baseCount++
			if selected[s.ID] {
				baseSelected++
			}
		} else if !selected[s.ID] {
			additionalKept++
		}
	}
	if baseCount > 0 && baseSelected == baseCount && additionalKept > 0 {
		return core.NewValidationError(ErrKeepAdditional, core.FieldError{Field: "subscription_ids", Error: ErrKeepAdditional.Error()})
	}
	return nil
}

// CancelTrial cancels subscriptions in trial: each ends on its trial end date. With `tc.CancelCoop`, the
// membership application of a new member is withdrawn as well. It returns the next trial end date.
func (svc *Service) CancelTrial(ctx context.Context, actorID string, m member.Member, tc TrialCancellation) (time.Time, error) {
	var (
		nextTrialEnd time.Time
		cancelled    []Subscription
		withdrawn    bool
	)
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		weeks, err := svc.trialWeeks(ctx)
		if err != nil {
			return err
		}
		trial, err := svc.InTrial(ctx, m.ID)
		if err != nil {
			return err
		}
		baseTypeID, err := svc.params.String(ctx, parameter.CoopBaseProductType)
		if err != nil {
			return err
		}
		prods, err := svc.products.Products(ctx, &product.QueryFilter{IncludeDeleted: true})
		if err != nil {
			return err
		}
		typeOf := make(map[string]string, len(prods))
		for _, p := range prods {
			typeOf[p.ID] = p.TypeID
		}

		selected := make(map[string]bool, len(tc.SubscriptionIDs))
		for _, id := range tc.SubscriptionIDs {
			selected[id] = true
		}
		if err = checkTrialCancellation(trial, selected, func(s Subscription) string { return typeOf[s.ProductID] }, baseTypeID); err != nil {
			return err
		}
		nextTrialEnd = trial[0].TrialEndDate(weeks)

		now := core.NowFunc().UTC()
		for _, s := range trial {
			if !selected[s.ID] {
				continue
			}
			old := s
			s.EndDate = s.TrialEndDate(weeks)
			s.CancellationTS = &now
			if s, err = svc.repo.UpdateSubscription(ctx, s); err != nil {
				return errors.Wrap(err, "cancelling subscription")
			}
			cancelled = append(cancelled, s)
			if _, err = svc.logs.Log(ctx, logentry.KindTrialCancellation, actorID, m.ID, "subscription cancelled during trial", old, s); err != nil {
				return err
			}
		}

		if tc.CancelCoop {
			if withdrawn, err = svc.members.IsNewMember(ctx, m.ID, nextTrialEnd); err != nil {
				return err
			}
			if withdrawn {
				return svc.members.WithdrawMembership(ctx, actorID, m.ID, nextTrialEnd)
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	if err = svc.sendCancellationConfirmation(ctx, m, cancelled, nextTrialEnd, withdrawn); err != nil {
		return nextTrialEnd, errors.Wrap(err, "sending cancellation confirmation")
	}
	return nextTrialEnd, nil
}

func (svc *Service) sendCancellationConfirmation(ctx context.Context, m member.Member, subs []Subscription, endDate time.Time, withdrawn bool) error {
	items, _, err := svc.mailItems(ctx, subs)
	if err != nil {
		return err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: m.DisplayName(), Address: m.Email}},
		Subject:      "Bestätigung deiner Kündigung",
		TemplateName: "cancellation_confirmation",
		TemplateData: map[string]interface{}{
			"FirstName":           m.FirstName,
			"EndDate":             endDate,
			"Items":               items,
			"MembershipWithdrawn": withdrawn,
		},
	})
	return nil
}
