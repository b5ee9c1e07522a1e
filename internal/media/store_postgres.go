package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/platform/tx"
)

// PostgresStore persists the catalog. The unique index on
// (media_type, slug) backs the per-type slug constraint.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) exec(ctx context.Context) execer {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

const mediaColumns = `
	id, title, slug, media_type, sub_type, status, is_adult,
	episodes, duration, volumes, chapters,
	start_date, start_precision, end_date, end_precision,
	season_year, season, description, synopsis, created_at, modified_at
`

func (s *PostgresStore) Create(ctx context.Context, m *Media) error {
	now := time.Now()
	m.CreatedAt = now
	m.ModifiedAt = now

	query := `
		INSERT INTO media (
			title, slug, media_type, sub_type, status, is_adult,
			episodes, duration, volumes, chapters,
			start_date, start_precision, end_date, end_precision,
			season_year, season, description, synopsis, created_at, modified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`
	err := s.exec(ctx).QueryRowContext(ctx, query,
		m.Title, m.Slug, string(m.MediaType), string(m.SubType), string(m.Status), m.IsAdult,
		m.Episodes, m.Duration, m.Volumes, m.Chapters,
		m.StartDate, string(m.StartPrecision), m.EndDate, string(m.EndPrecision),
		m.SeasonYear, nullSeason(m.Season), m.Description, m.Synopsis, m.CreatedAt, m.ModifiedAt,
	).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return errSlugTaken(m.MediaType, m.Slug)
		}
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	m, err := scanMedia(s.exec(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errMediaNotFound(id)
		}
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) GetBySlug(ctx context.Context, mediaType Type, slug string) (*Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE media_type = $1 AND slug = $2`
	m, err := scanMedia(s.exec(ctx).QueryRowContext(ctx, query, string(mediaType), slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "%s %q not found", mediaType, slug)
		}
		return nil, fmt.Errorf("get media by slug: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *Media) error {
	m.ModifiedAt = time.Now()

	query := `
		UPDATE media SET
			title = $2, slug = $3, media_type = $4, sub_type = $5, status = $6, is_adult = $7,
			episodes = $8, duration = $9, volumes = $10, chapters = $11,
			start_date = $12, start_precision = $13, end_date = $14, end_precision = $15,
			season_year = $16, season = $17, description = $18, synopsis = $19, modified_at = $20
		WHERE id = $1
	`
	result, err := s.exec(ctx).ExecContext(ctx, query,
		m.ID, m.Title, m.Slug, string(m.MediaType), string(m.SubType), string(m.Status), m.IsAdult,
		m.Episodes, m.Duration, m.Volumes, m.Chapters,
		m.StartDate, string(m.StartPrecision), m.EndDate, string(m.EndPrecision),
		m.SeasonYear, nullSeason(m.Season), m.Description, m.Synopsis, m.ModifiedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errSlugTaken(m.MediaType, m.Slug)
		}
		return fmt.Errorf("update media: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update media rows affected: %w", err)
	}
	if rows == 0 {
		return errMediaNotFound(m.ID)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	ex := s.exec(ctx)
	if _, err := ex.ExecContext(ctx, `DELETE FROM media_artwork WHERE media_id = $1`, id); err != nil {
		return fmt.Errorf("delete media artwork: %w", err)
	}
	result, err := ex.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete media rows affected: %w", err)
	}
	if rows == 0 {
		return errMediaNotFound(id)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		query += ` AND media_type = ` + arg(string(filter.Type))
	}
	if filter.Adult != nil {
		query += ` AND is_adult = ` + arg(*filter.Adult)
	}
	if filter.Search != "" {
		query += ` AND title ILIKE ` + arg("%"+filter.Search+"%")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY title, id LIMIT ` + arg(limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var result []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) GetArtwork(ctx context.Context, id int64) (*Artwork, error) {
	query := `SELECT id, media_id, filename, caption, sort FROM media_artwork WHERE id = $1`
	var a Artwork
	err := s.exec(ctx).QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.MediaID, &a.Filename, &a.Caption, &a.Sort)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", id)
		}
		return nil, fmt.Errorf("get artwork: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListArtwork(ctx context.Context, mediaID int64) ([]*Artwork, error) {
	query := `
		SELECT id, media_id, filename, caption, sort
		FROM media_artwork
		WHERE media_id = $1
		ORDER BY sort, id
	`
	rows, err := s.exec(ctx).QueryContext(ctx, query, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list artwork: %w", err)
	}
	defer rows.Close()

	var result []*Artwork
	for rows.Next() {
		var a Artwork
		if err := rows.Scan(&a.ID, &a.MediaID, &a.Filename, &a.Caption, &a.Sort); err != nil {
			return nil, fmt.Errorf("scan artwork: %w", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artwork: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) CreateArtwork(ctx context.Context, a *Artwork) error {
	query := `
		INSERT INTO media_artwork (media_id, filename, caption, sort)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := s.exec(ctx).QueryRowContext(ctx, query, a.MediaID, a.Filename, a.Caption, a.Sort).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create artwork: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateArtwork(ctx context.Context, a *Artwork) error {
	query := `UPDATE media_artwork SET filename = $2, caption = $3, sort = $4 WHERE id = $1`
	result, err := s.exec(ctx).ExecContext(ctx, query, a.ID, a.Filename, a.Caption, a.Sort)
	if err != nil {
		return fmt.Errorf("update artwork: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update artwork rows affected: %w", err)
	}
	if rows == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", a.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteArtwork(ctx context.Context, id int64) error {
	result, err := s.exec(ctx).ExecContext(ctx, `DELETE FROM media_artwork WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete artwork: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete artwork rows affected: %w", err)
	}
	if rows == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "artwork %d not found", id)
	}
	return nil
}

func scanMedia(row interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		m         Media
		mediaType string
		subType   string
		status    string
		season    sql.NullString
		startPrec string
		endPrec   string
		startDate sql.NullTime
		endDate   sql.NullTime
	)
	err := row.Scan(
		&m.ID, &m.Title, &m.Slug, &mediaType, &subType, &status, &m.IsAdult,
		&m.Episodes, &m.Duration, &m.Volumes, &m.Chapters,
		&startDate, &startPrec, &endDate, &endPrec,
		&m.SeasonYear, &season, &m.Description, &m.Synopsis, &m.CreatedAt, &m.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	m.MediaType = Type(mediaType)
	m.SubType = SubType(subType)
	m.Status = Status(status)
	m.Season = Season(season.String)
	m.StartPrecision = DatePrecision(startPrec)
	m.EndPrecision = DatePrecision(endPrec)
	if startDate.Valid {
		m.StartDate = &startDate.Time
	}
	if endDate.Valid {
		m.EndDate = &endDate.Time
	}
	return &m, nil
}

func nullSeason(s Season) sql.NullString {
	return sql.NullString{String: string(s), Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
