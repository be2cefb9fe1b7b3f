package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"mediagate/internal/model"
	"mediagate/internal/repository"
)

const mediaColumns = `id, filename, original_name, storage_path, category, mimetype, size, access_password_hash, uploaded_by, created_at`

// MediaPostgres is a PostgreSQL implementation of repository.MediaRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type MediaPostgres struct {
	db *sql.DB
}

// NewMediaPostgres creates a new MediaPostgres repository.
func NewMediaPostgres(db *sql.DB) *MediaPostgres {
	return &MediaPostgres{db: db}
}

var _ repository.MediaRepository = (*MediaPostgres)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// scanMedia reads the mediaColumns followed by any extra destinations.
func scanMedia(row rowScanner, extra ...any) (*model.Media, error) {
	var m model.Media
	var category string
	dest := append([]any{
		&m.ID,
		&m.Filename,
		&m.OriginalName,
		&m.StoragePath,
		&category,
		&m.MIMEType,
		&m.Size,
		&m.PasswordHash,
		&m.UploadedBy,
		&m.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	m.Category = model.Category(category)
	return &m, nil
}

// Create inserts a new media row and returns the stored record.
func (r *MediaPostgres) Create(ctx context.Context, m *model.Media) (*model.Media, error) {
	const q = `
		INSERT INTO media (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + mediaColumns
	row := r.db.QueryRowContext(ctx, q,
		m.ID,
		m.Filename,
		m.OriginalName,
		m.StoragePath,
		string(m.Category),
		m.MIMEType,
		m.Size,
		m.PasswordHash,
		m.UploadedBy,
		m.CreatedAt,
	)
	return scanMedia(row)
}

// FindByID fetches a single media record by its ID.
func (r *MediaPostgres) FindByID(ctx context.Context, id string) (*model.Media, error) {
	const q = `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	return scanMedia(r.db.QueryRowContext(ctx, q, id))
}

// List returns media using LIMIT/OFFSET pagination and a total count.
func (r *MediaPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Media], error) {
	const qCount = `SELECT COUNT(*) FROM media`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT m.id, m.filename, m.original_name, m.storage_path, m.category, m.mimetype,
		       m.size, m.access_password_hash, m.uploaded_by, m.created_at,
		       COALESCE(a.username, '')
		FROM media m
		LEFT JOIN admins a ON a.id = m.uploaded_by
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Media, 0)
	for rows.Next() {
		var uploader string
		m, err := scanMedia(rows, &uploader)
		if err != nil {
			return nil, err
		}
		m.UploaderName = uploader
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Media]{
		Items: items,
		Total: total,
	}, nil
}

// Update sets only the provided columns. With nothing to change it
// behaves like FindByID.
func (r *MediaPostgres) Update(ctx context.Context, id string, u repository.MediaUpdate) (*model.Media, error) {
	var sets []string
	var args []any
	if u.OriginalName != nil {
		args = append(args, *u.OriginalName)
		sets = append(sets, "original_name = $"+strconv.Itoa(len(args)))
	}
	if u.PasswordHash != nil {
		args = append(args, *u.PasswordHash)
		sets = append(sets, "access_password_hash = $"+strconv.Itoa(len(args)))
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}
	args = append(args, id)

	q := `UPDATE media SET ` + strings.Join(sets, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) +
		` RETURNING ` + mediaColumns
	return scanMedia(r.db.QueryRowContext(ctx, q, args...))
}

// Delete removes a media row by ID. It does not return an error if the row does not exist.
func (r *MediaPostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM media WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
