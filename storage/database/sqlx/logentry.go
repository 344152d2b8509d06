package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/logentry"
)

const logEntryColumns = "id, kind, actor_id, member_id, comment, old_values, new_values, created_at"

type logEntryRow struct {
	ID        string      `db:"id"`
	Kind      string      `db:"kind"`
	ActorID   null.String `db:"actor_id"`
	MemberID  null.String `db:"member_id"`
	Comment   string      `db:"comment"`
	OldValues null.JSON   `db:"old_values"`
	NewValues null.JSON   `db:"new_values"`
	CreatedAt time.Time   `db:"created_at"`
}

func toLogEntryRow(e logentry.Entry) (logEntryRow, error) {
	row := logEntryRow{
		ID:        e.ID,
		Kind:      e.Kind,
		ActorID:   nullString(e.ActorID),
		MemberID:  nullString(e.MemberID),
		Comment:   e.Comment,
		CreatedAt: e.CreatedAt.UTC(),
	}
	if err := row.OldValues.Marshal(valuesOrEmpty(e.OldValues)); err != nil {
		return row, errors.Wrap(err, "marshalling old values")
	}
	if err := row.NewValues.Marshal(valuesOrEmpty(e.NewValues)); err != nil {
		return row, errors.Wrap(err, "marshalling new values")
	}
	return row, nil
}

func valuesOrEmpty(v logentry.Values) logentry.Values {
	if v == nil {
		return logentry.Values{}
	}
	return v
}

func (r logEntryRow) toEntry() (logentry.Entry, error) {
	e := logentry.Entry{
		ID:        r.ID,
		Kind:      r.Kind,
		ActorID:   r.ActorID.String,
		MemberID:  r.MemberID.String,
		Comment:   r.Comment,
		OldValues: logentry.Values{},
		NewValues: logentry.Values{},
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.OldValues.Valid {
		if err := r.OldValues.Unmarshal(&e.OldValues); err != nil {
			return e, errors.Wrap(err, "unmarshalling old values")
		}
	}
	if r.NewValues.Valid {
		if err := r.NewValues.Unmarshal(&e.NewValues); err != nil {
			return e, errors.Wrap(err, "unmarshalling new values")
		}
	}
	return e, nil
}

type logEntryRepository struct {
	repository
}

var _ logentry.Repository = (*logEntryRepository)(nil)

func NewLogEntryRepository(db *sqlx.DB) logentry.Repository {
	return &logEntryRepository{repository{db: db}}
}

func (repo *logEntryRepository) CreateEntry(ctx context.Context, e logentry.Entry) (logentry.Entry, error) {
	e.ID = newID()
	row, err := toLogEntryRow(e)
	if err != nil {
		return logentry.Entry{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO log_entries (`+logEntryColumns+`)
		VALUES (:id, :kind, :actor_id, :member_id, :comment, :old_values, :new_values, :created_at)`,
		row,
	)
	if err != nil {
		return logentry.Entry{}, errors.Wrap(err, "inserting log entry")
	}
	return e, nil
}

func (repo *logEntryRepository) QueryEntries(ctx context.Context, filter *logentry.QueryFilter) ([]logentry.Entry, error) {
	w := new(where)
	if filter != nil {
		if filter.MemberID != "" {
			w.add("member_id = ?", filter.MemberID)
		}
		if filter.Kind != "" {
			w.add("kind = ?", filter.Kind)
		}
	}

	var rows []logEntryRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT "+logEntryColumns+" FROM log_entries", " ORDER BY created_at DESC"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying log entries")
	}
	entries := make([]logentry.Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}
