package labreport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdesk/labdesk/internal/platform/jsondoc"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type reportRepoPG struct{ db queryable }

// NewReportRepoPG returns a repository backed by the lab_reports table.
func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{db: pool} }

// The document column is json, not jsonb, so stored reports keep their key
// order.
const reportCols = `id, report_number, source, status, patient_name, file_name, blob_id,
	page_count, parameter_count, error, document, created_by, created_at`

func (r *reportRepoPG) scanReport(row pgx.Row) (*Report, error) {
	var rep Report
	var doc []byte
	err := row.Scan(&rep.ID, &rep.ReportNumber, &rep.Source, &rep.Status, &rep.PatientName,
		&rep.FileName, &rep.BlobID, &rep.PageCount, &rep.ParameterCount, &rep.Error,
		&doc, &rep.CreatedBy, &rep.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(doc) > 0 {
		if rep.Document, err = jsondoc.Parse(doc); err != nil {
			return nil, fmt.Errorf("decode stored document %s: %w", rep.ID, err)
		}
	}
	return &rep, nil
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	var doc []byte
	if rep.Document.Kind() != jsondoc.Undefined {
		var err error
		if doc, err = rep.Document.MarshalJSON(); err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO lab_reports (id, report_number, source, status, patient_name, file_name, blob_id,
			page_count, parameter_count, error, document, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::json,$12)
		RETURNING created_at`,
		rep.ID, rep.ReportNumber, rep.Source, rep.Status, rep.PatientName, rep.FileName, rep.BlobID,
		rep.PageCount, rep.ParameterCount, rep.Error, nullableJSON(doc), rep.CreatedBy,
	).Scan(&rep.CreatedAt)
}

func nullableJSON(doc []byte) interface{} {
	if doc == nil {
		return nil
	}
	return string(doc)
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return r.scanReport(r.db.QueryRow(ctx, `SELECT `+reportCols+` FROM lab_reports WHERE id = $1`, id))
}

func (r *reportRepoPG) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM lab_reports`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+reportCols+` FROM lab_reports ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		rep, err := r.scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

func (r *reportRepoPG) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COALESCE(SUM(parameter_count), 0)
		FROM lab_reports`, StatusProcessed,
	).Scan(&s.TotalReports, &s.ProcessedReports, &s.ParametersAnalyzed)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
