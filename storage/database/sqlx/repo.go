// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/storage/database"
)

type repository struct {
	db *sqlx.DB
}

// exec returns the transaction of ctx if any.
func (repo repository) exec(ctx context.Context) database.Executor {
	return database.GetExecutor(ctx, repo.db)
}

func newID() string { return uuid.New().String() }

func trapNoRowsErr(err, notFound error) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return err
}

// affected returns `notFound` when the statement changed no row.
func affected(res sql.Result, err, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) null.String { return null.NewString(s, s != "") }

func nullTime(t time.Time) null.Time { return null.NewTime(t.UTC(), !t.IsZero()) }

func nullTimeFromPtr(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}

func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func utc(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

// where collects AND-ed conditions written with "?" placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// query appends the conditions & `suffix` to `base` and binds the placeholders for postgres.
func (w *where) query(base, suffix string) string {
	return sqlx.Rebind(sqlx.DOLLAR, base+w.String()+suffix)
}

func orderClause(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func likeContains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}

func stringArray(s []string) interface{} { return pq.Array(s) }
