package inmemdb

import (
	"context"

	"github.com/trezcool/tapir/core/export"
)

type exportRepository struct {
	db *DB
}

var _ export.Repository = (*exportRepository)(nil)

func NewExportRepository(db *DB) export.Repository {
	return &exportRepository{db: db}
}

func (repo *exportRepository) CreateFile(_ context.Context, f export.File) (export.File, error) {
	f.ID = newID()
	f.Content = append([]byte(nil), f.Content...)
	repo.db.files.insert(f.ID, f)
	return f, nil
}

func (repo *exportRepository) GetFile(_ context.Context, id string) (export.File, error) {
	if f, ok := repo.db.files.get(id); ok {
		f.Content = append([]byte(nil), f.Content...)
		return f, nil
	}
	return export.File{}, export.ErrNotFound
}

func (repo *exportRepository) QueryFiles(context.Context) ([]export.File, error) {
	files := repo.db.files.filter(nil)
	for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
		files[i], files[j] = files[j], files[i]
	}
	sortStable(files, func(a, b export.File) bool { return a.CreatedAt.After(b.CreatedAt) })
	for i := range files {
		files[i].Content = nil
	}
	return files, nil
}
