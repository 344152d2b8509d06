package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	p.ID = newID()
	repo.db.payments.insert(p.ID, p)
	return p, nil
}

func (repo *paymentRepository) UpdatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	if !repo.db.payments.update(p.ID, p) {
		return payment.Payment{}, payment.ErrNotFound
	}
	return p, nil
}

func (repo *paymentRepository) DeletePayment(_ context.Context, id string) error {
	if !repo.db.payments.delete(id) {
		return payment.ErrNotFound
	}
	return nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter *payment.QueryFilter) ([]payment.Payment, error) {
	payments := repo.db.payments.filter(filter.Match)
	sortStable(payments, func(a, b payment.Payment) bool {
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.MandateRef < b.MandateRef
	})
	return payments, nil
}

func (repo *paymentRepository) CreateTransaction(_ context.Context, tx payment.Transaction) (payment.Transaction, error) {
	tx.ID = newID()
	repo.db.transactions.insert(tx.ID, tx)
	return tx, nil
}
