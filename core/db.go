package core

import "context"

// Transactor runs fn inside a single database transaction.
// Repositories called with the ctx passed to fn take part in that transaction;
// nested calls reuse the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields not present in `allowed` ({param: column}) and maps the rest
// to their column names.
func FilterOrderings(ordering []DBOrdering, allowed map[string]string) []DBOrdering {
	res := make([]DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		if col, ok := allowed[ord.Field]; ok {
			res = append(res, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return res
}
