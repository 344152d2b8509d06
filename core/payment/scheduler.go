package payment

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
)

var _ member.PaymentScheduler = (*Scheduler)(nil)

// Scheduler plans the one-off payments of coop shares.
type Scheduler struct {
	repo   Repository
	params *parameter.Service
	conf   *core.Config
}

func NewScheduler(repo Repository, params *parameter.Service, conf *core.Config) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()
	return &Scheduler{repo: repo, params: params, conf: conf}
}

// ScheduleOneOff stores a DUE payment of `amount` on the next payment date. It is added to an open payment
// of the same mandate reference and due date if any.
func (s *Scheduler) ScheduleOneOff(ctx context.Context, mandateRef string, amount decimal.Decimal) error {
	dueDay, err := s.params.Int(ctx, parameter.PaymentDueDay)
	if err != nil {
		return err
	}
	due := NextPaymentDate(core.Today(s.conf.Location()), dueDay)

	existing, err := s.repo.QueryPayments(ctx, &QueryFilter{MandateRefs: []string{mandateRef}, DueDate: due, Status: StatusDue})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		p := existing[0]
		p.Amount = p.Amount.Add(amount)
		_, err = s.repo.UpdatePayment(ctx, p)
		return errors.Wrap(err, "updating payment")
	}
	_, err = s.repo.CreatePayment(ctx, Payment{MandateRef: mandateRef, DueDate: due, Amount: amount, Status: StatusDue})
	return errors.Wrap(err, "creating payment")
}

// CancelFuture deletes the DUE payments of a mandate reference due after `after`.
func (s *Scheduler) CancelFuture(ctx context.Context, mandateRef string, after time.Time) error {
	payments, err := s.repo.QueryPayments(ctx, &QueryFilter{MandateRefs: []string{mandateRef}, DueAfter: after, Status: StatusDue})
	if err != nil {
		return err
	}
	for _, p := range payments {
		if err = s.repo.DeletePayment(ctx, p.ID); err != nil {
			return errors.Wrap(err, "deleting payment")
		}
	}
	return nil
}
