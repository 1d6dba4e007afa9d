package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/database"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/pagination"
)

const contentColumns = `id, title, description, rating, like_count, budget, published,
		type, user_id, created_at, updated_at, latitude, longitude`

// PostgresSource reads content straight from a read replica of the
// content service's database.
type PostgresSource struct {
	db database.DBTX
}

var _ ContentSource = (*PostgresSource)(nil)

// NewPostgresSource creates a source over db.
func NewPostgresSource(db database.DBTX) *PostgresSource {
	return &PostgresSource{db: db}
}

// Get retrieves a content record by its ID.
func (s *PostgresSource) Get(ctx context.Context, id string) (rec *domain.ContentRecord, err error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetContent", query)
	defer func() { end(err) }()

	rec, err = scanRecord(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("content", id)
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return rec, nil
}

// List returns one page ordered by id. The total row count comes back with
// every row, so an out-of-range page reports zero pages.
func (s *PostgresSource) List(ctx context.Context, page, size int) (p *Page, err error) {
	query := `SELECT ` + contentColumns + `, COUNT(*) OVER() AS total_count
		FROM contents
		ORDER BY id
		LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListContents", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, size, pagination.Params{Page: page, Size: size}.Offset())
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()

	var total int64
	records := make([]domain.ContentRecord, 0, size)
	for rows.Next() {
		rec, err := scanRecord(rows, &total)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}

	return &Page{Records: records, TotalPages: pagination.TotalPages(total, size)}, nil
}

func scanRecord(row pgx.Row, extra ...any) (*domain.ContentRecord, error) {
	var (
		rec      domain.ContentRecord
		lat, lon *float64
	)
	dest := []any{
		&rec.ID, &rec.Title, &rec.Description, &rec.Rating, &rec.LikeCount, &rec.Budget, &rec.Published,
		&rec.Type, &rec.UserID, &rec.CreatedAt, &rec.UpdatedAt, &lat, &lon,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if lat != nil && lon != nil {
		rec.Location = &domain.GeoPoint{Lat: *lat, Lon: *lon}
	}
	return &rec, nil
}
