package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/visitor-management/internal/domain"
)

// VisitorRepository reads visitor rows. Writes go through
// VisitRepository.CreateWithVisitor so a visitor never exists without a visit.
type VisitorRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Visitor, error)
}

type visitorRepository struct {
	pool *pgxpool.Pool
}

func NewVisitorRepository(pool *pgxpool.Pool) VisitorRepository {
	return &visitorRepository{pool: pool}
}

func (r *visitorRepository) FindByID(ctx context.Context, id string) (*domain.Visitor, error) {
	const q = `SELECT id, name, email, phone, company, purpose, host_id, photo_url, created_at FROM visitors WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v domain.Visitor
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&v.ID, &v.Name, &v.Email, &v.Phone, &v.Company, &v.Purpose, &v.HostID, &v.PhotoURL, &v.CreatedAt,
	)
	if err != nil {
		return nil, translate("find visitor", err)
	}
	return &v, nil
}
