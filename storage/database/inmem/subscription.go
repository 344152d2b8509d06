package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil)

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	s.ID = newID()
	repo.db.subscriptions.insert(s.ID, s)
	return s, nil
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, s subscription.Subscription) (subscription.Subscription, error) {
	if !repo.db.subscriptions.update(s.ID, s) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return s, nil
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, id string) (subscription.Subscription, error) {
	if s, ok := repo.db.subscriptions.get(id); ok {
		return s, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) QuerySubscriptions(_ context.Context, filter *subscription.QueryFilter) ([]subscription.Subscription, error) {
	subs := repo.db.subscriptions.filter(filter.Match)
	sortStable(subs, func(a, b subscription.Subscription) bool { return a.StartDate.Before(b.StartDate) })
	return subs, nil
}
