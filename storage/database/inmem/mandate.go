package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/mandate"
)

type mandateRepository struct {
	db *DB
}

var _ mandate.Repository = (*mandateRepository)(nil)

func NewMandateRepository(db *DB) mandate.Repository {
	return &mandateRepository{db: db}
}

func (repo *mandateRepository) CreateRef(_ context.Context, ref mandate.Ref) (mandate.Ref, error) {
	if existing, ok := repo.db.mandateRefs.get(ref.Ref); ok {
		return existing, nil
	}
	repo.db.mandateRefs.insert(ref.Ref, ref)
	return ref, nil
}

func (repo *mandateRepository) GetRef(_ context.Context, ref string) (mandate.Ref, error) {
	if r, ok := repo.db.mandateRefs.get(ref); ok {
		return r, nil
	}
	return mandate.Ref{}, mandate.ErrNotFound
}

func (repo *mandateRepository) QueryRefs(_ context.Context, memberID string) ([]mandate.Ref, error) {
	refs := repo.db.mandateRefs.filter(func(r mandate.Ref) bool { return r.MemberID == memberID })
	sortStable(refs, func(a, b mandate.Ref) bool { return a.StartTS.Before(b.StartTS) })
	return refs, nil
}
