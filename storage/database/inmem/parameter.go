package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/parameter"
)

type parameterRepository struct {
	db *DB
}

var _ parameter.Repository = (*parameterRepository)(nil)

func NewParameterRepository(db *DB) parameter.Repository {
	return &parameterRepository{db: db}
}

func (repo *parameterRepository) QueryValues(context.Context) (map[string]string, error) {
	repo.db.params.RLock()
	defer repo.db.params.RUnlock()

	values := make(map[string]string, len(repo.db.params.values))
	for k, v := range repo.db.params.values {
		values[k] = v
	}
	return values, nil
}

func (repo *parameterRepository) SaveValue(_ context.Context, key, value string) error {
	repo.db.params.Lock()
	defer repo.db.params.Unlock()
	repo.db.params.values[key] = value
	return nil
}
