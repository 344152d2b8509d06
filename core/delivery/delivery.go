// Package delivery plans the weekly deliveries of the subscribed products to the members' pickup locations.
package delivery

import (
	"context"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
)

type Delivery struct {
	ID               string    `json:"id"`
	MemberID         string    `json:"member_id"`
	PickupLocationID string    `json:"pickup_location_id"`
	DeliveryDate     time.Time `json:"delivery_date"`
}

// View is a stored or generated delivery with the subscriptions delivered that day.
type View struct {
	Delivery
	Upcoming      bool                        `json:"upcoming"`
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

type QueryFilter struct {
	MemberID     string
	DeliveryDate time.Time
}

func (qf *QueryFilter) Match(d Delivery) bool {
	if qf == nil {
		return true
	}
	return (qf.MemberID == "" || d.MemberID == qf.MemberID) &&
		(qf.DeliveryDate.IsZero() || d.DeliveryDate.Equal(qf.DeliveryDate))
}

// NextDeliveryDate returns the next `weekday` (Monday=0) on or after `today`.
func NextDeliveryDate(today time.Time, weekday int) time.Time {
	diff := weekday - core.WeekdayIndex(today)
	if diff < 0 {
		diff += 7
	}
	return today.AddDate(0, 0, diff)
}

// Delivered returns the subscriptions active on `d` whose product type is delivered that day.
// `cycleOf` maps a product ID to the delivery cycle of its type.
func Delivered(subs []subscription.Subscription, cycleOf func(productID string) string, d time.Time) []subscription.Subscription {
	res := make([]subscription.Subscription, 0)
	for _, s := range subscription.ActiveAt(subs, d) {
		if product.DeliversOn(cycleOf(s.ProductID), d) {
			res = append(res, s)
		}
	}
	return res
}

// GenerateFutureDeliveries plans weekly deliveries from `from` until `until` (included). A date is only emitted
// when at least one subscription is delivered that day.
func GenerateFutureDeliveries(subs []subscription.Subscription, cycleOf func(productID string) string, pickupLocationID string, from, until time.Time) []View {
	res := make([]View, 0)
	for d := from; !d.After(until); d = d.AddDate(0, 0, 7) {
		delivered := Delivered(subs, cycleOf, d)
		if len(delivered) == 0 {
			continue
		}
		res = append(res, View{
			Delivery:      Delivery{PickupLocationID: pickupLocationID, DeliveryDate: d},
			Upcoming:      true,
			Subscriptions: delivered,
		})
	}
	return res
}

type (
	Repository interface {
		CreateDelivery(ctx context.Context, d Delivery) (Delivery, error)
		// QueryDeliveries returns the matching deliveries ordered by delivery date.
		QueryDeliveries(ctx context.Context, filter *QueryFilter) ([]Delivery, error)
	}

	Service struct {
		repo     Repository
		subs     *subscription.Service
		members  *member.Service
		products *product.Service
		params   *parameter.Service
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	subs *subscription.Service,
	members *member.Service,
	products *product.Service,
	params *parameter.Service,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(subs, "subs"),
		vala.IsNotNil(members, "members"),
		vala.IsNotNil(products, "products"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{repo: repo, subs: subs, members: members, products: products, params: params, conf: conf}
}

func (svc *Service) NextDeliveryDate(ctx context.Context) (time.Time, error) {
	weekday, err := svc.params.Int(ctx, parameter.DeliveryDay)
	if err != nil {
		return time.Time{}, err
	}
	return NextDeliveryDate(core.Today(svc.conf.Location()), weekday), nil
}

// CycleOf returns the product ID to delivery cycle mapping of all products.
func (svc *Service) CycleOf(ctx context.Context) (func(productID string) string, error) {
	prods, err := svc.products.Products(ctx, &product.QueryFilter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	types, err := svc.products.ProductTypes(ctx)
	if err != nil {
		return nil, err
	}
	typeCycle := make(map[string]string, len(types))
	for _, pt := range types {
		typeCycle[pt.ID] = pt.DeliveryCycle
	}
	cycles := make(map[string]string, len(prods))
	for _, p := range prods {
		cycles[p.ID] = typeCycle[p.TypeID]
	}
	return func(productID string) string { return cycles[productID] }, nil
}

// MemberDeliveries lists the stored deliveries of a member followed by the planned ones, until the end of
// the last growing period.
func (svc *Service) MemberDeliveries(ctx context.Context, memberID string) ([]View, error) {
	m, err := svc.members.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	stored, err := svc.repo.QueryDeliveries(ctx, &QueryFilter{MemberID: memberID})
	if err != nil {
		return nil, err
	}
	subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{MemberID: memberID})
	if err != nil {
		return nil, err
	}
	cycleOf, err := svc.CycleOf(ctx)
	if err != nil {
		return nil, err
	}

	today := core.Today(svc.conf.Location())
	seen := make(map[int64]bool, len(stored))
	res := make([]View, 0, len(stored))
	for _, d := range stored {
		seen[d.DeliveryDate.Unix()] = true
		res = append(res, View{
			Delivery:      d,
			Upcoming:      d.DeliveryDate.After(today),
			Subscriptions: subscription.ActiveAt(subs, d.DeliveryDate),
		})
	}

	from, err := svc.NextDeliveryDate(ctx)
	if err != nil {
		return nil, err
	}
	last, err := svc.products.LastPeriod(ctx)
	if err != nil {
		if errors.Cause(err) == product.ErrNoPeriod {
			return res, nil
		}
		return nil, err
	}
	for _, v := range GenerateFutureDeliveries(subs, cycleOf, m.PickupLocationID, from, last.EndDate) {
		if !seen[v.DeliveryDate.Unix()] {
			v.MemberID = memberID
			res = append(res, v)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].DeliveryDate.Before(res[j].DeliveryDate) })
	return res, nil
}

// RecordDeliveries stores the deliveries of day `d` for every member with a delivered subscription,
// skipping the members already having one. The stored deliveries are returned with their subscriptions.
func (svc *Service) RecordDeliveries(ctx context.Context, d time.Time) ([]View, error) {
	subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{ActiveAt: core.NewDay(d)})
	if err != nil {
		return nil, err
	}
	cycleOf, err := svc.CycleOf(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := svc.repo.QueryDeliveries(ctx, &QueryFilter{DeliveryDate: d})
	if err != nil {
		return nil, err
	}
	byMember := make(map[string]Delivery, len(existing))
	for _, del := range existing {
		byMember[del.MemberID] = del
	}

	memberSubs := make(map[string][]subscription.Subscription)
	ids := make([]string, 0)
	for _, s := range Delivered(subs, cycleOf, d) {
		if _, ok := memberSubs[s.MemberID]; !ok {
			ids = append(ids, s.MemberID)
		}
		memberSubs[s.MemberID] = append(memberSubs[s.MemberID], s)
	}
	members, err := svc.members.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]View, 0, len(ids))
	for _, id := range ids {
		del, ok := byMember[id]
		if !ok {
			del, err = svc.repo.CreateDelivery(ctx, Delivery{
				MemberID:         id,
				PickupLocationID: members[id].PickupLocationID,
				DeliveryDate:     d,
			})
			if err != nil {
				return nil, errors.Wrap(err, "creating delivery")
			}
		}
		res = append(res, View{Delivery: del, Subscriptions: memberSubs[id]})
	}
	sort.Slice(res, func(i, j int) bool { return members[res[i].MemberID].MemberNo < members[res[j].MemberID].MemberNo })
	return res, nil
}
