package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/mandate"
)

type mandateRefRow struct {
	Ref      string    `db:"ref"`
	MemberID string    `db:"member_id"`
	StartTS  time.Time `db:"start_ts"`
}

func (r mandateRefRow) toRef() mandate.Ref {
	return mandate.Ref{Ref: r.Ref, MemberID: r.MemberID, StartTS: r.StartTS.UTC()}
}

type mandateRepository struct {
	repository
}

var _ mandate.Repository = (*mandateRepository)(nil)

func NewMandateRepository(db *sqlx.DB) mandate.Repository {
	return &mandateRepository{repository{db: db}}
}

func (repo *mandateRepository) CreateRef(ctx context.Context, ref mandate.Ref) (mandate.Ref, error) {
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO mandate_refs (ref, member_id, start_ts) VALUES ($1, $2, $3) ON CONFLICT (ref) DO NOTHING",
		ref.Ref, ref.MemberID, ref.StartTS.UTC(),
	)
	if err != nil {
		return mandate.Ref{}, errors.Wrap(err, "inserting mandate ref")
	}
	return repo.GetRef(ctx, ref.Ref)
}

func (repo *mandateRepository) GetRef(ctx context.Context, ref string) (mandate.Ref, error) {
	var row mandateRefRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT ref, member_id, start_ts FROM mandate_refs WHERE ref = $1", ref); err != nil {
		return mandate.Ref{}, trapNoRowsErr(err, mandate.ErrNotFound)
	}
	return row.toRef(), nil
}

func (repo *mandateRepository) QueryRefs(ctx context.Context, memberID string) ([]mandate.Ref, error) {
	var rows []mandateRefRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT ref, member_id, start_ts FROM mandate_refs WHERE member_id = $1 ORDER BY start_ts", memberID); err != nil {
		return nil, errors.Wrap(err, "querying mandate refs")
	}
	refs := make([]mandate.Ref, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, r.toRef())
	}
	return refs, nil
}
