package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/delivery"
)

type deliveryRepository struct {
	db *DB
}

var _ delivery.Repository = (*deliveryRepository)(nil)

func NewDeliveryRepository(db *DB) delivery.Repository {
	return &deliveryRepository{db: db}
}

func (repo *deliveryRepository) CreateDelivery(_ context.Context, d delivery.Delivery) (delivery.Delivery, error) {
	d.ID = newID()
	repo.db.deliveries.insert(d.ID, d)
	return d, nil
}

func (repo *deliveryRepository) QueryDeliveries(_ context.Context, filter *delivery.QueryFilter) ([]delivery.Delivery, error) {
	deliveries := repo.db.deliveries.filter(filter.Match)
	sortStable(deliveries, func(a, b delivery.Delivery) bool { return a.DeliveryDate.Before(b.DeliveryDate) })
	return deliveries, nil
}
