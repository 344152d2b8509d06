package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/payment"
)

const paymentColumns = "id, mandate_ref, due_date, amount, status, edited, transaction_id"

type paymentRow struct {
	ID            string          `db:"id"`
	MandateRef    string          `db:"mandate_ref"`
	DueDate       time.Time       `db:"due_date"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	Edited        bool            `db:"edited"`
	TransactionID null.String     `db:"transaction_id"`
}

func toPaymentRow(p payment.Payment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		MandateRef:    p.MandateRef,
		DueDate:       p.DueDate.UTC(),
		Amount:        p.Amount,
		Status:        p.Status,
		Edited:        p.Edited,
		TransactionID: nullString(p.TransactionID),
	}
}

func (r paymentRow) toPayment() payment.Payment {
	return payment.Payment{
		ID:            r.ID,
		MandateRef:    r.MandateRef,
		DueDate:       r.DueDate.UTC(),
		Amount:        r.Amount,
		Status:        r.Status,
		Edited:        r.Edited,
		TransactionID: r.TransactionID.String,
	}
}

type paymentRepository struct {
	repository
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{repository{db: db}}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	p.ID = newID()
	row := toPaymentRow(p)
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :mandate_ref, :due_date, :amount, :status, :edited, :transaction_id)`,
		row,
	)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) UpdatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	row := toPaymentRow(p)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		UPDATE payments SET mandate_ref = :mandate_ref, due_date = :due_date, amount = :amount, status = :status,
			edited = :edited, transaction_id = :transaction_id
		WHERE id = :id`,
		row,
	)
	if err = affected(res, err, payment.ErrNotFound); err != nil {
		return payment.Payment{}, err
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) DeletePayment(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM payments WHERE id = $1", id)
	return affected(res, err, payment.ErrNotFound)
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter *payment.QueryFilter) ([]payment.Payment, error) {
	w := new(where)
	if filter != nil {
		if len(filter.MandateRefs) > 0 {
			w.add("mandate_ref = ANY (?)", stringArray(filter.MandateRefs))
		}
		if !filter.DueDate.IsZero() {
			w.add("due_date = ?", filter.DueDate.UTC())
		}
		if !filter.DueAfter.IsZero() {
			w.add("due_date > ?", filter.DueAfter.UTC())
		}
		if filter.Status != "" {
			w.add("status = ?", filter.Status)
		}
	}

	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+paymentColumns+" FROM payments", " ORDER BY due_date, mandate_ref"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.toPayment())
	}
	return payments, nil
}

func (repo *paymentRepository) CreateTransaction(ctx context.Context, tx payment.Transaction) (payment.Transaction, error) {
	tx.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO payment_transactions (id, created_at, file_id) VALUES ($1, $2, $3)",
		tx.ID, tx.CreatedAt.UTC(), nullString(tx.FileID),
	)
	if err != nil {
		return payment.Transaction{}, errors.Wrap(err, "inserting payment transaction")
	}
	return tx, nil
}
