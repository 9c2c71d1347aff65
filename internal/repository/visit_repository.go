package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/visitor-management/internal/domain"
)

// RecordFilter narrows ListRecords at the store. Free-text search, status,
// sorting and paging happen in the query engine.
type RecordFilter struct {
	HostID string
	From   *time.Time
	To     *time.Time
}

type VisitRepository interface {
	// CreateWithVisitor upserts the visitor by email and inserts the visit in
	// one transaction. IDs are assigned here.
	CreateWithVisitor(ctx context.Context, visitor *domain.Visitor, visit *domain.VisitLog) (*domain.VisitRecord, error)
	GetRecord(ctx context.Context, id string) (*domain.VisitRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]domain.VisitRecord, error)
	FindByCheckInToken(ctx context.Context, token string) (*domain.VisitLog, error)
	ListExpectedByEmail(ctx context.Context, email string) ([]domain.VisitLog, error)
	LatestForVisitor(ctx context.Context, visitorID string) (*domain.VisitLog, error)
	// HasVisitWithHost reports whether hostID hosted any visit of visitorID.
	HasVisitWithHost(ctx context.Context, visitorID, hostID string) (bool, error)
	// UpdateStatus persists a transitioned visit only if its stored status is
	// still from. Losing a race yields ErrConflict.
	UpdateStatus(ctx context.Context, visit *domain.VisitLog, from domain.VisitStatus) error
}

type visitRepository struct {
	pool *pgxpool.Pool
}

func NewVisitRepository(pool *pgxpool.Pool) VisitRepository {
	return &visitRepository{pool: pool}
}

const visitCols = `id, visitor_id, host_id, location_id, status, scheduled_at,
check_in_time, check_out_time, check_in_token, code_hash, created_at, updated_at`

const recordSelect = `SELECT
	v.id, v.visitor_id, v.host_id, v.location_id, v.status, v.scheduled_at,
	v.check_in_time, v.check_out_time, v.check_in_token, v.code_hash, v.created_at, v.updated_at,
	vi.id, vi.name, vi.email, vi.phone, vi.company, vi.purpose, vi.host_id, vi.photo_url, vi.created_at,
	u.id, u.name, u.email, u.role, u.department, u.avatar, u.notifications_enabled,
	l.id, l.name, l.address, l.city, l.state, l.zip_code, l.country, l.capacity, l.active, l.created_at, l.updated_at
FROM visit_logs v
JOIN visitors vi ON vi.id = v.visitor_id
JOIN users u ON u.id = v.host_id
JOIN locations l ON l.id = v.location_id`

func scanVisit(row pgx.Row) (*domain.VisitLog, error) {
	var v domain.VisitLog
	err := row.Scan(
		&v.ID, &v.VisitorID, &v.HostID, &v.LocationID, &v.Status, &v.ScheduledAt,
		&v.CheckInTime, &v.CheckOutTime, &v.CheckInToken, &v.CodeHash, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanRecord(row pgx.Row) (*domain.VisitRecord, error) {
	var rec domain.VisitRecord
	v, vi, h, l := &rec.Visit, &rec.Visitor, &rec.Host, &rec.Location
	err := row.Scan(
		&v.ID, &v.VisitorID, &v.HostID, &v.LocationID, &v.Status, &v.ScheduledAt,
		&v.CheckInTime, &v.CheckOutTime, &v.CheckInToken, &v.CodeHash, &v.CreatedAt, &v.UpdatedAt,
		&vi.ID, &vi.Name, &vi.Email, &vi.Phone, &vi.Company, &vi.Purpose, &vi.HostID, &vi.PhotoURL, &vi.CreatedAt,
		&h.ID, &h.Name, &h.Email, &h.Role, &h.Department, &h.Avatar, &h.NotificationsEnabled,
		&l.ID, &l.Name, &l.Address, &l.City, &l.State, &l.ZipCode, &l.Country, &l.Capacity, &l.Active, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *visitRepository) CreateWithVisitor(ctx context.Context, visitor *domain.Visitor, visit *domain.VisitLog) (*domain.VisitRecord, error) {
	const upsertVisitor = `
		INSERT INTO visitors (id, name, email, phone, company, purpose, host_id, photo_url)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)
		ON CONFLICT ((lower(email))) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			company = EXCLUDED.company,
			purpose = EXCLUDED.purpose,
			host_id = EXCLUDED.host_id,
			photo_url = CASE WHEN EXCLUDED.photo_url <> '' THEN EXCLUDED.photo_url ELSE visitors.photo_url END
		RETURNING id`

	const insertVisit = `
		INSERT INTO visit_logs (id, visitor_id, host_id, location_id, status, scheduled_at,
			check_in_time, check_out_time, check_in_token, code_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, translate("begin create visit", err)
	}
	defer tx.Rollback(ctx)

	var visitorID string
	err = tx.QueryRow(ctx, upsertVisitor,
		uuid.NewString(), visitor.Name, visitor.Email, visitor.Phone, visitor.Company,
		visitor.Purpose, visitor.HostID, visitor.PhotoURL,
	).Scan(&visitorID)
	if err != nil {
		return nil, translate("upsert visitor", err)
	}

	visitID := uuid.NewString()
	_, err = tx.Exec(ctx, insertVisit,
		visitID, visitorID, visit.HostID, visit.LocationID, visit.Status, visit.ScheduledAt,
		visit.CheckInTime, visit.CheckOutTime, visit.CheckInToken, visit.CodeHash,
	)
	if err != nil {
		return nil, translate("insert visit", err)
	}

	rec, err := scanRecord(tx.QueryRow(ctx, recordSelect+` WHERE v.id = $1`, visitID))
	if err != nil {
		return nil, translate("load created visit", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translate("commit create visit", err)
	}
	return rec, nil
}

func (r *visitRepository) GetRecord(ctx context.Context, id string) (*domain.VisitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rec, err := scanRecord(r.pool.QueryRow(ctx, recordSelect+` WHERE v.id = $1`, id))
	if err != nil {
		return nil, translate("get visit", err)
	}
	return rec, nil
}

// recordQuery builds the ListRecords statement. Rows come back in creation
// order; any other ordering is the query engine's job.
func recordQuery(filter RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.HostID != "" {
		args = append(args, filter.HostID)
		where = append(where, fmt.Sprintf("v.host_id = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, fmt.Sprintf("COALESCE(v.check_in_time, v.scheduled_at) >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, fmt.Sprintf("COALESCE(v.check_in_time, v.scheduled_at) < $%d", len(args)))
	}

	q := recordSelect
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return q + ` ORDER BY v.created_at, v.id`, args
}

func (r *visitRepository) ListRecords(ctx context.Context, filter RecordFilter) ([]domain.VisitRecord, error) {
	q, args := recordQuery(filter)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate("list visits", err)
	}
	defer rows.Close()

	records := []domain.VisitRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, translate("scan visit", err)
		}
		records = append(records, *rec)
	}
	return records, translate("list visits", rows.Err())
}

func (r *visitRepository) HasVisitWithHost(ctx context.Context, visitorID, hostID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM visit_logs WHERE visitor_id = $1 AND host_id = $2)`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var ok bool
	if err := r.pool.QueryRow(ctx, q, visitorID, hostID).Scan(&ok); err != nil {
		return false, translate("check visitor host", err)
	}
	return ok, nil
}

func (r *visitRepository) FindByCheckInToken(ctx context.Context, token string) (*domain.VisitLog, error) {
	const q = `SELECT ` + visitCols + ` FROM visit_logs WHERE check_in_token = $1 AND check_in_token <> ''`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, token))
	if err != nil {
		return nil, translate("find visit by token", err)
	}
	return v, nil
}

func (r *visitRepository) ListExpectedByEmail(ctx context.Context, email string) ([]domain.VisitLog, error) {
	const q = `
		SELECT v.id, v.visitor_id, v.host_id, v.location_id, v.status, v.scheduled_at,
			v.check_in_time, v.check_out_time, v.check_in_token, v.code_hash, v.created_at, v.updated_at
		FROM visit_logs v
		JOIN visitors vi ON vi.id = v.visitor_id
		WHERE lower(vi.email) = lower($1) AND v.status = 'expected'
		ORDER BY v.scheduled_at`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, email)
	if err != nil {
		return nil, translate("list expected visits", err)
	}
	defer rows.Close()

	var visits []domain.VisitLog
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, translate("scan visit", err)
		}
		visits = append(visits, *v)
	}
	return visits, translate("list expected visits", rows.Err())
}

func (r *visitRepository) LatestForVisitor(ctx context.Context, visitorID string) (*domain.VisitLog, error) {
	const q = `SELECT ` + visitCols + ` FROM visit_logs WHERE visitor_id = $1 ORDER BY created_at DESC LIMIT 1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	v, err := scanVisit(r.pool.QueryRow(ctx, q, visitorID))
	if err != nil {
		return nil, translate("latest visit", err)
	}
	return v, nil
}

func (r *visitRepository) UpdateStatus(ctx context.Context, visit *domain.VisitLog, from domain.VisitStatus) error {
	const q = `
		UPDATE visit_logs
		SET status = $2, check_in_time = $3, check_out_time = $4, updated_at = now()
		WHERE id = $1 AND status = $5`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, visit.ID, visit.Status, visit.CheckInTime, visit.CheckOutTime, from)
	if err != nil {
		return translate("update visit status", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM visit_logs WHERE id = $1)`, visit.ID).Scan(&exists); err != nil {
		return translate("update visit status", err)
	}
	if !exists {
		return translate("update visit status", pgx.ErrNoRows)
	}
	return fmt.Errorf("update visit status: %w: visit is no longer %s", domain.ErrConflict, from)
}
