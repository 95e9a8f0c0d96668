package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"cloudauditor/internal/domain"
)

func (db *DB) CreateReport(ctx context.Context, r domain.Report) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO reports (id, scan_id, name, type, generated_at, size_bytes, status, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.ScanID, r.Name, string(r.Type), r.GeneratedAt, r.SizeBytes, r.Status, r.Content)
	return err
}

func (db *DB) GetReport(ctx context.Context, id string) (domain.Report, bool, error) {
	var r domain.Report
	var typ string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, scan_id, name, type, generated_at, size_bytes, status, content
		FROM reports WHERE id = $1
	`, id).Scan(&r.ID, &r.ScanID, &r.Name, &typ, &r.GeneratedAt, &r.SizeBytes, &r.Status, &r.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Report{}, false, nil
	}
	if err != nil {
		return domain.Report{}, false, err
	}
	r.Type = domain.ReportType(typ)
	return r, true, nil
}

func (db *DB) ListReports(ctx context.Context) ([]domain.Report, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, scan_id, name, type, generated_at, size_bytes, status
		FROM reports ORDER BY seq DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Report{}
	for rows.Next() {
		var r domain.Report
		var typ string
		if err := rows.Scan(&r.ID, &r.ScanID, &r.Name, &typ, &r.GeneratedAt, &r.SizeBytes, &r.Status); err != nil {
			return nil, err
		}
		r.Type = domain.ReportType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}
