package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/logentry"
)

type logEntryRepository struct {
	db *DB
}

var _ logentry.Repository = (*logEntryRepository)(nil)

func NewLogEntryRepository(db *DB) logentry.Repository {
	return &logEntryRepository{db: db}
}

func (repo *logEntryRepository) CreateEntry(_ context.Context, e logentry.Entry) (logentry.Entry, error) {
	e.ID = newID()
	repo.db.logEntries.insert(e.ID, e)
	return e, nil
}

func (repo *logEntryRepository) QueryEntries(_ context.Context, filter *logentry.QueryFilter) ([]logentry.Entry, error) {
	entries := repo.db.logEntries.filter(filter.Match)
	// insertion order breaks ties between entries created within the same instant
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sortStable(entries, func(a, b logentry.Entry) bool { return a.CreatedAt.After(b.CreatedAt) })
	return entries, nil
}
