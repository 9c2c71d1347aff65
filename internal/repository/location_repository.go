package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/visitor-management/internal/domain"
)

type LocationRepository interface {
	Create(ctx context.Context, l *domain.Location) (*domain.Location, error)
	FindByID(ctx context.Context, id string) (*domain.Location, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Location, error)
	Update(ctx context.Context, l *domain.Location) (*domain.Location, error)
	Deactivate(ctx context.Context, id string) (*domain.Location, error)
	Delete(ctx context.Context, id string) error
}

type locationRepository struct {
	pool *pgxpool.Pool
}

func NewLocationRepository(pool *pgxpool.Pool) LocationRepository {
	return &locationRepository{pool: pool}
}

const locationCols = `id, name, address, city, state, zip_code, country, capacity, active, created_at, updated_at`

func scanLocation(row pgx.Row) (*domain.Location, error) {
	var l domain.Location
	err := row.Scan(
		&l.ID, &l.Name, &l.Address, &l.City, &l.State, &l.ZipCode, &l.Country,
		&l.Capacity, &l.Active, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *locationRepository) Create(ctx context.Context, l *domain.Location) (*domain.Location, error) {
	const q = `
		INSERT INTO locations (id, name, address, city, state, zip_code, country, capacity, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + locationCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	created, err := scanLocation(r.pool.QueryRow(ctx, q,
		uuid.NewString(), l.Name, l.Address, l.City, l.State, l.ZipCode, l.Country, l.Capacity, l.Active,
	))
	if err != nil {
		return nil, translate("create location", err)
	}
	return created, nil
}

func (r *locationRepository) FindByID(ctx context.Context, id string) (*domain.Location, error) {
	const q = `SELECT ` + locationCols + ` FROM locations WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	l, err := scanLocation(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, translate("find location", err)
	}
	return l, nil
}

func (r *locationRepository) List(ctx context.Context, activeOnly bool) ([]domain.Location, error) {
	q := `SELECT ` + locationCols + ` FROM locations`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, translate("list locations", err)
	}
	defer rows.Close()

	locations := []domain.Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, translate("scan location", err)
		}
		locations = append(locations, *l)
	}
	return locations, translate("list locations", rows.Err())
}

func (r *locationRepository) Update(ctx context.Context, l *domain.Location) (*domain.Location, error) {
	const q = `
		UPDATE locations
		SET name = $2, address = $3, city = $4, state = $5, zip_code = $6, country = $7,
			capacity = $8, active = $9, updated_at = now()
		WHERE id = $1
		RETURNING ` + locationCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	updated, err := scanLocation(r.pool.QueryRow(ctx, q,
		l.ID, l.Name, l.Address, l.City, l.State, l.ZipCode, l.Country, l.Capacity, l.Active,
	))
	if err != nil {
		return nil, translate("update location", err)
	}
	return updated, nil
}

func (r *locationRepository) Deactivate(ctx context.Context, id string) (*domain.Location, error) {
	const q = `UPDATE locations SET active = false, updated_at = now() WHERE id = $1 RETURNING ` + locationCols
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	l, err := scanLocation(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, translate("deactivate location", err)
	}
	return l, nil
}

// Delete fails with ErrConflict while visits still reference the location.
func (r *locationRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM locations WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return translate("delete location", err)
	}
	if result.RowsAffected() == 0 {
		return translate("delete location", pgx.ErrNoRows)
	}
	return nil
}
