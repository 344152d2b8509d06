package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/delivery"
)

type deliveryRow struct {
	ID               string      `db:"id"`
	MemberID         string      `db:"member_id"`
	PickupLocationID null.String `db:"pickup_location_id"`
	DeliveryDate     time.Time   `db:"delivery_date"`
}

func (r deliveryRow) toDelivery() delivery.Delivery {
	return delivery.Delivery{
		ID:               r.ID,
		MemberID:         r.MemberID,
		PickupLocationID: r.PickupLocationID.String,
		DeliveryDate:     r.DeliveryDate.UTC(),
	}
}

type deliveryRepository struct {
	repository
}

var _ delivery.Repository = (*deliveryRepository)(nil)

func NewDeliveryRepository(db *sqlx.DB) delivery.Repository {
	return &deliveryRepository{repository{db: db}}
}

func (repo *deliveryRepository) CreateDelivery(ctx context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	d.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO deliveries (id, member_id, pickup_location_id, delivery_date) VALUES ($1, $2, $3, $4)",
		d.ID, d.MemberID, nullString(d.PickupLocationID), d.DeliveryDate.UTC(),
	)
	if err != nil {
		return delivery.Delivery{}, errors.Wrap(err, "inserting delivery")
	}
	return d, nil
}

func (repo *deliveryRepository) QueryDeliveries(ctx context.Context, filter *delivery.QueryFilter) ([]delivery.Delivery, error) {
	w := new(where)
	if filter != nil {
		if filter.MemberID != "" {
			w.add("member_id = ?", filter.MemberID)
		}
		if !filter.DeliveryDate.IsZero() {
			w.add("delivery_date = ?", filter.DeliveryDate.UTC())
		}
	}

	var rows []deliveryRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT id, member_id, pickup_location_id, delivery_date FROM deliveries", " ORDER BY delivery_date"),
		w.args...); err != nil {
		return nil, errors.Wrap(err, "querying deliveries")
	}
	deliveries := make([]delivery.Delivery, 0, len(rows))
	for _, r := range rows {
		deliveries = append(deliveries, r.toDelivery())
	}
	return deliveries, nil
}
