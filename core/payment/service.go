package payment

import (
	"context"
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
	"github.com/trezcool/tapir/core/subscription"
)

var (
	// errors
	ErrNotFound        = errors.New("payment not found")
	ErrAmbiguous       = errors.New("more than one payment exists for this mandate reference and due date")
	ErrUnknownMandate  = errors.New("the mandate reference does not belong to the member")
	ErrNotOpen         = errors.New("the payment is already paid")
	ErrNoPaymentsToPay = errors.New("no payments due")
)

type (
	Repository interface {
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		UpdatePayment(ctx context.Context, p Payment) (Payment, error)
		DeletePayment(ctx context.Context, id string) error
		// QueryPayments returns the matching payments ordered by due date, then mandate reference.
		QueryPayments(ctx context.Context, filter *QueryFilter) ([]Payment, error)
		CreateTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	}

	Service struct {
		repo     Repository
		txor     core.Transactor
		subs     *subscription.Service
		members  *member.Service
		mandates *mandate.Service
		products *product.Service
		params   *parameter.Service
		logs     *logentry.Service
		conf     *core.Config
	}
)

func NewService(
	repo Repository,
	txor core.Transactor,
	subs *subscription.Service,
	members *member.Service,
	mandates *mandate.Service,
	products *product.Service,
	params *parameter.Service,
	logs *logentry.Service,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
		vala.IsNotNil(subs, "subs"),
		vala.IsNotNil(members, "members"),
		vala.IsNotNil(mandates, "mandates"),
		vala.IsNotNil(products, "products"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(logs, "logs"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		txor:     txor,
		subs:     subs,
		members:  members,
		mandates: mandates,
		products: products,
		params:   params,
		logs:     logs,
		conf:     conf,
	}
}

func (svc *Service) today() time.Time {
	return core.Today(svc.conf.Location())
}

func (svc *Service) NextPaymentDate(ctx context.Context) (time.Time, error) {
	dueDay, err := svc.params.Int(ctx, parameter.PaymentDueDay)
	if err != nil {
		return time.Time{}, err
	}
	return NextPaymentDate(svc.today(), dueDay), nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter)
}

func (svc *Service) memberRefs(ctx context.Context, memberID string) ([]string, error) {
	refs, err := svc.mandates.MemberRefs(ctx, memberID)
	if err != nil {
		return nil, errors.Wrap(err, "querying mandate refs")
	}
	res := make([]string, 0, len(refs))
	for _, ref := range refs {
		res = append(res, ref.Ref)
	}
	return res, nil
}

// PreviousPayments returns the stored payments of a member, each with the amount calculated from the coop
// shares or the subscriptions active on its due date.
func (svc *Service) PreviousPayments(ctx context.Context, memberID string) ([]View, error) {
	refs, err := svc.memberRefs(ctx, memberID)
	if err != nil || len(refs) == 0 {
		return []View{}, err
	}
	payments, err := svc.repo.QueryPayments(ctx, &QueryFilter{MandateRefs: refs})
	if err != nil {
		return nil, err
	}
	shares, err := svc.members.Shares(ctx, memberID)
	if err != nil {
		return nil, err
	}
	subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{MemberID: memberID})
	if err != nil {
		return nil, err
	}
	prices, err := svc.products.PriceList(ctx)
	if err != nil {
		return nil, err
	}

	today := svc.today()
	res := make([]View, 0, len(payments))
	for _, p := range payments {
		v := View{Payment: p, Upcoming: p.DueDate.After(today)}
		if mandate.IsForCoopShares(p.MandateRef) {
			v.Kind = KindCoopShares
			v.CalculatedAmount = decimal.Zero
			for _, so := range shares {
				if so.MandateRef == p.MandateRef {
					v.CalculatedAmount = v.CalculatedAmount.Add(so.TotalPrice())
				}
			}
		} else {
			v.Kind = KindSubscriptions
			for _, s := range subscription.ActiveAt(subs, p.DueDate) {
				if s.MandateRef == p.MandateRef {
					v.Subscriptions = append(v.Subscriptions, s)
				}
			}
			if v.CalculatedAmount, err = subscription.TotalPrice(v.Subscriptions, prices); err != nil {
				return nil, err
			}
		}
		res = append(res, v)
	}
	return res, nil
}

// FuturePayments plans the payments of a member's subscriptions from the next payment date until the end of
// the last growing period, skipping those already in `previous`.
func (svc *Service) FuturePayments(ctx context.Context, memberID string, previous []View) ([]View, error) {
	from, err := svc.NextPaymentDate(ctx)
	if err != nil {
		return nil, err
	}
	last, err := svc.products.LastPeriod(ctx)
	if err != nil {
		if errors.Cause(err) == product.ErrNoPeriod {
			return []View{}, nil
		}
		return nil, err
	}
	subs, err := svc.subs.Future(ctx, memberID, from)
	if err != nil {
		return nil, err
	}
	prices, err := svc.products.PriceList(ctx)
	if err != nil {
		return nil, err
	}

	stored := make([]Payment, 0, len(previous))
	for _, v := range previous {
		stored = append(stored, v.Payment)
	}
	return GenerateFuturePayments(subs, prices, stored, from, last.EndDate)
}

// MemberPayments lists the previous & future payments of a member by due date, then mandate reference.
func (svc *Service) MemberPayments(ctx context.Context, memberID string) ([]View, error) {
	previous, err := svc.PreviousPayments(ctx, memberID)
	if err != nil {
		return nil, errors.Wrap(err, "previous payments")
	}
	future, err := svc.FuturePayments(ctx, memberID, previous)
	if err != nil {
		return nil, errors.Wrap(err, "future payments")
	}
	res := append(previous, future...)
	SortViews(res)
	return res, nil
}

// EditFuturePayment stores a payment of the member with the given amount, flagged as edited.
func (svc *Service) EditFuturePayment(ctx context.Context, actorID, memberID string, ep EditPayment) (Payment, error) {
	var saved Payment
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		refs, err := svc.memberRefs(ctx, memberID)
		if err != nil {
			return err
		}
		known := false
		for _, ref := range refs {
			known = known || ref == ep.MandateRef
		}
		if !known {
			return core.NewValidationError(ErrUnknownMandate, core.FieldError{Field: "mandate_ref", Error: ErrUnknownMandate.Error()})
		}

		existing, err := svc.repo.QueryPayments(ctx, &QueryFilter{MandateRefs: []string{ep.MandateRef}, DueDate: ep.DueDate.Time})
		if err != nil {
			return err
		}
		var old interface{}
		switch len(existing) {
		case 0:
			saved, err = svc.repo.CreatePayment(ctx, Payment{
				MandateRef: ep.MandateRef,
				DueDate:    ep.DueDate.Time,
				Amount:     ep.Amount,
				Status:     StatusDue,
				Edited:     true,
			})
		case 1:
			if existing[0].Status != StatusDue {
				return core.NewValidationError(ErrNotOpen, core.FieldError{Field: "due_date", Error: ErrNotOpen.Error()})
			}
			old = existing[0]
			saved = existing[0]
			saved.Amount = ep.Amount
			saved.Edited = true
			saved, err = svc.repo.UpdatePayment(ctx, saved)
		default:
			return errors.Wrapf(ErrAmbiguous, "%s on %s", ep.MandateRef, core.FormatDate(ep.DueDate.Time))
		}
		if err != nil {
			return errors.Wrap(err, "saving payment")
		}

		_, err = svc.logs.Log(ctx, logentry.KindPaymentEdit, actorID, memberID, ep.Comment, old, saved)
		return err
	})
	return saved, err
}

// CreateDuePayments stores the payments of the subscription mandates active on `dueDate` that have no
// payment yet for that day.
func (svc *Service) CreateDuePayments(ctx context.Context, dueDate time.Time) ([]Payment, error) {
	subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{ActiveAt: core.NewDay(dueDate)})
	if err != nil {
		return nil, err
	}
	existing, err := svc.repo.QueryPayments(ctx, &QueryFilter{DueDate: dueDate})
	if err != nil {
		return nil, err
	}
	prices, err := svc.products.PriceList(ctx)
	if err != nil {
		return nil, err
	}
	planned, err := GenerateFuturePayments(subs, prices, existing, dueDate, dueDate)
	if err != nil {
		return nil, err
	}

	created := make([]Payment, 0, len(planned))
	for _, v := range planned {
		p, err := svc.repo.CreatePayment(ctx, v.Payment)
		if err != nil {
			return nil, errors.Wrap(err, "creating payment")
		}
		created = append(created, p)
	}
	return created, nil
}

// SEPARows returns the DUE payments of `dueDate` with the bank details of their payer.
func (svc *Service) SEPARows(ctx context.Context, dueDate time.Time) ([]SEPARow, error) {
	payments, err := svc.repo.QueryPayments(ctx, &QueryFilter{DueDate: dueDate, Status: StatusDue})
	if err != nil {
		return nil, err
	}

	refMembers := make(map[string]string, len(payments))
	memberIDs := make([]string, 0, len(payments))
	for _, p := range payments {
		ref, err := svc.mandates.Get(ctx, p.MandateRef)
		if err != nil {
			return nil, errors.Wrapf(err, "getting mandate ref %s", p.MandateRef)
		}
		refMembers[p.MandateRef] = ref.MemberID
		memberIDs = append(memberIDs, ref.MemberID)
	}
	members, err := svc.members.GetMany(ctx, memberIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]SEPARow, 0, len(payments))
	for _, p := range payments {
		m := members[refMembers[p.MandateRef]]
		owner := m.AccountOwner
		if owner == "" {
			owner = m.DisplayName()
		}
		rows = append(rows, SEPARow{Payment: p, MemberNo: m.MemberNo, AccountOwner: owner, IBAN: m.IBAN})
	}
	return rows, nil
}

// MarkPaid sets `payments` PAID under a new transaction referencing the exported file.
func (svc *Service) MarkPaid(ctx context.Context, payments []Payment, fileID string) (Transaction, error) {
	if len(payments) == 0 {
		return Transaction{}, ErrNoPaymentsToPay
	}
	var tx Transaction
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		tx, err = svc.repo.CreateTransaction(ctx, Transaction{FileID: fileID, CreatedAt: core.NowFunc().UTC()})
		if err != nil {
			return errors.Wrap(err, "creating transaction")
		}
		for _, p := range payments {
			p.Status = StatusPaid
			p.TransactionID = tx.ID
			if _, err = svc.repo.UpdatePayment(ctx, p); err != nil {
				return errors.Wrap(err, "updating payment")
			}
		}
		return nil
	})
	return tx, err
}
