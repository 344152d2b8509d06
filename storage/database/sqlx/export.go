package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core/export"
)

type fileRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Content   []byte    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

func (r fileRow) toFile() export.File {
	return export.File{ID: r.ID, Name: r.Name, Type: r.Type, Content: r.Content, CreatedAt: r.CreatedAt.UTC()}
}

type exportRepository struct {
	repository
}

var _ export.Repository = (*exportRepository)(nil)

func NewExportRepository(db *sqlx.DB) export.Repository {
	return &exportRepository{repository{db: db}}
}

func (repo *exportRepository) CreateFile(ctx context.Context, f export.File) (export.File, error) {
	f.ID = newID()
	if f.Content == nil {
		f.Content = []byte{}
	}
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO exported_files (id, name, type, content, created_at) VALUES ($1, $2, $3, $4, $5)",
		f.ID, f.Name, f.Type, f.Content, f.CreatedAt.UTC(),
	)
	if err != nil {
		return export.File{}, errors.Wrap(err, "inserting exported file")
	}
	return f, nil
}

func (repo *exportRepository) GetFile(ctx context.Context, id string) (export.File, error) {
	var row fileRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT id, name, type, content, created_at FROM exported_files WHERE id = $1", id); err != nil {
		return export.File{}, trapNoRowsErr(err, export.ErrNotFound)
	}
	return row.toFile(), nil
}

func (repo *exportRepository) QueryFiles(ctx context.Context) ([]export.File, error) {
	var rows []fileRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT id, name, type, created_at FROM exported_files ORDER BY created_at DESC"); err != nil {
		return nil, errors.Wrap(err, "querying exported files")
	}
	files := make([]export.File, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.toFile())
	}
	return files, nil
}
