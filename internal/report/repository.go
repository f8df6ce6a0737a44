package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

const reportColumns = `id::text, reporter_id, reporter_name, lat, lng, address, authority,
        defect_count, status, created_at, evidence_image_ref, resolution_image_ref, resolved_at`

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Insert(ctx context.Context, rep *Report) (string, error) {
	const query = `
        INSERT INTO reports (reporter_id, reporter_name, lat, lng, address, authority, defect_count, status, created_at, evidence_image_ref)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id::text
    `

	var id string
	err := r.pool.QueryRow(ctx, query,
		rep.ReporterID,
		rep.ReporterName,
		rep.Location.Lat,
		rep.Location.Lng,
		rep.Address,
		string(rep.Authority),
		rep.DefectCount,
		string(rep.Status),
		rep.CreatedAt,
		rep.EvidenceImageRef,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) FindMany(ctx context.Context, q Query) ([]Report, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if q.Authority != nil {
		clauses = append(clauses, fmt.Sprintf("authority = $%d", idx))
		args = append(args, string(*q.Authority))
		idx++
	}
	if q.ReporterID != "" {
		clauses = append(clauses, fmt.Sprintf("reporter_id = $%d", idx))
		args = append(args, q.ReporterID)
		idx++
	}
	if q.Status != nil {
		clauses = append(clauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(*q.Status))
		idx++
	}

	query := "SELECT " + reportColumns + " FROM reports"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, q.Limit)
		idx++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, q.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return reports, nil
}

func (r *Repository) FindOne(ctx context.Context, id string) (*Report, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	row := r.pool.QueryRow(ctx, "SELECT "+reportColumns+" FROM reports WHERE id = $1", uid)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rep, err
}

// UpdateConditional writes the resolution only while the row still has the
// expected status, so concurrent resolves cannot both win.
func (r *Repository) UpdateConditional(ctx context.Context, id string, expected Status, patch Resolution) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	query, args := resolveStatement(uid, expected, patch)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const resolveSQL = `
        UPDATE reports
        SET status = $1, resolved_at = $2, resolution_image_ref = $3
        WHERE id = $4 AND status = $5
    `

// resolveStatement returns the conditional resolve and its arguments. The
// status argument must stay in the WHERE clause: zero affected rows is how a
// lost race is detected.
func resolveStatement(id uuid.UUID, expected Status, patch Resolution) (string, []any) {
	return resolveSQL, []any{
		string(StatusResolved),
		patch.ResolvedAt,
		patch.ResolutionImageRef,
		id,
		string(expected),
	}
}

func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, "DELETE FROM reports WHERE id = $1", uid)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		rep       Report
		authority string
		status    string
	)
	err := row.Scan(
		&rep.ID,
		&rep.ReporterID,
		&rep.ReporterName,
		&rep.Location.Lat,
		&rep.Location.Lng,
		&rep.Address,
		&authority,
		&rep.DefectCount,
		&status,
		&rep.CreatedAt,
		&rep.EvidenceImageRef,
		&rep.ResolutionImageRef,
		&rep.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	rep.Authority = jurisdiction.Authority(authority)
	rep.Status = Status(status)
	rep.CreatedAt = rep.CreatedAt.UTC()
	if rep.ResolvedAt != nil {
		t := rep.ResolvedAt.UTC()
		rep.ResolvedAt = &t
	}
	return &rep, nil
}
