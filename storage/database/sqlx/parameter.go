package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/parameter"
)

type parameterRepository struct {
	repository
}

var _ parameter.Repository = (*parameterRepository)(nil)

func NewParameterRepository(db *sqlx.DB) parameter.Repository {
	return &parameterRepository{repository{db: db}}
}

func (repo *parameterRepository) QueryValues(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, "SELECT key, value FROM parameters"); err != nil {
		return nil, errors.Wrap(err, "querying parameters")
	}
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	return values, nil
}

func (repo *parameterRepository) SaveValue(ctx context.Context, key, value string) error {
	_, err := repo.exec(ctx).ExecContext(ctx, `
		INSERT INTO parameters (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return errors.Wrapf(err, "saving parameter %s", key)
}
