package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/subscription"
)

const subscriptionColumns = "id, member_id, product_id, period_id, quantity, solidarity_price, start_date, end_date, " +
	"cancellation_ts, consent_ts, mandate_ref, created_at"

type subscriptionRow struct {
	ID              string          `db:"id"`
	MemberID        string          `db:"member_id"`
	ProductID       string          `db:"product_id"`
	PeriodID        string          `db:"period_id"`
	Quantity        int             `db:"quantity"`
	SolidarityPrice decimal.Decimal `db:"solidarity_price"`
	StartDate       time.Time       `db:"start_date"`
	EndDate         time.Time       `db:"end_date"`
	CancellationTS  null.Time       `db:"cancellation_ts"`
	ConsentTS       null.Time       `db:"consent_ts"`
	MandateRef      string          `db:"mandate_ref"`
	CreatedAt       time.Time       `db:"created_at"`
}

func toSubscriptionRow(s subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:              s.ID,
		MemberID:        s.MemberID,
		ProductID:       s.ProductID,
		PeriodID:        s.PeriodID,
		Quantity:        s.Quantity,
		SolidarityPrice: s.SolidarityPrice,
		StartDate:       s.StartDate.UTC(),
		EndDate:         s.EndDate.UTC(),
		CancellationTS:  nullTimeFromPtr(s.CancellationTS),
		ConsentTS:       nullTimeFromPtr(s.ConsentTS),
		MandateRef:      s.MandateRef,
		CreatedAt:       s.CreatedAt.UTC(),
	}
}

func (r subscriptionRow) toSubscription() subscription.Subscription {
	return subscription.Subscription{
		ID:              r.ID,
		MemberID:        r.MemberID,
		ProductID:       r.ProductID,
		PeriodID:        r.PeriodID,
		Quantity:        r.Quantity,
		SolidarityPrice: r.SolidarityPrice,
		StartDate:       r.StartDate.UTC(),
		EndDate:         r.EndDate.UTC(),
		CancellationTS:  timePtr(r.CancellationTS),
		ConsentTS:       timePtr(r.ConsentTS),
		MandateRef:      r.MandateRef,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type subscriptionRepository struct {
	repository
}

var _ subscription.Repository = (*subscriptionRepository)(nil)

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{repository{db: db}}
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	s.ID = newID()
	row := toSubscriptionRow(s)
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (:id, :member_id, :product_id, :period_id, :quantity, :solidarity_price, :start_date, :end_date,
			:cancellation_ts, :consent_ts, :mandate_ref, :created_at)`,
		row,
	)
	if err != nil {
		return subscription.Subscription{}, errors.Wrap(err, "inserting subscription")
	}
	return row.toSubscription(), nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	row := toSubscriptionRow(s)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE subscriptions SET quantity = :quantity, solidarity_price = :solidarity_price, start_date = :start_date,
			end_date = :end_date, cancellation_ts = :cancellation_ts, consent_ts = :consent_ts, mandate_ref = :mandate_ref
		WHERE id = :id`,
		row,
	)
	if err = affected(res, err, subscription.ErrNotFound); err != nil {
		return subscription.Subscription{}, err
	}
	return row.toSubscription(), nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	var row subscriptionRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = $1", id); err != nil {
		return subscription.Subscription{}, trapNoRowsErr(err, subscription.ErrNotFound)
	}
	return row.toSubscription(), nil
}

func (repo *subscriptionRepository) QuerySubscriptions(ctx context.Context, filter *subscription.QueryFilter) ([]subscription.Subscription, error) {
	w := new(where)
	if filter != nil {
		if filter.MemberID != "" {
			w.add("member_id = ?", filter.MemberID)
		}
		if filter.PeriodID != "" {
			w.add("period_id = ?", filter.PeriodID)
		}
		if filter.MandateRef != "" {
			w.add("mandate_ref = ?", filter.MandateRef)
		}
		if !filter.ActiveAt.IsZero() {
			w.add("start_date <= ? AND end_date >= ?", filter.ActiveAt.UTC(), filter.ActiveAt.UTC())
		}
		if !filter.EndFrom.IsZero() {
			w.add("end_date >= ?", filter.EndFrom.UTC())
		}
		if len(filter.ProductIDs) > 0 {
			w.add("product_id = ANY (?)", stringArray(filter.ProductIDs))
		}
		if len(filter.IDs) > 0 {
			w.add("id = ANY (?)", stringArray(filter.IDs))
		}
		if filter.Cancelled != nil {
			if *filter.Cancelled {
				w.add("cancellation_ts IS NOT NULL")
			} else {
				w.add("cancellation_ts IS NULL")
			}
		}
	}

	var rows []subscriptionRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+subscriptionColumns+" FROM subscriptions", " ORDER BY start_date, created_at"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.toSubscription())
	}
	return subs, nil
}
