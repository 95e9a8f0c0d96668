package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cloudauditor/internal/domain"
)

const scanColumns = `id, name, target, scan_scope, status, progress, findings_count,
	critical_count, high_count, start_time, end_time, evidence_hash`

func scanScan(row pgx.Row) (domain.Scan, error) {
	var s domain.Scan
	var scope, status string
	err := row.Scan(&s.ID, &s.Name, &s.Target, &scope, &status, &s.Progress, &s.FindingsCount,
		&s.CriticalCount, &s.HighCount, &s.StartTime, &s.EndTime, &s.EvidenceHash)
	s.Scope = domain.Scope(scope)
	s.Status = domain.ScanStatus(status)
	return s, err
}

func (db *DB) CreateScan(ctx context.Context, s domain.Scan) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO scans (id, name, target, scan_scope, status, progress, findings_count,
			critical_count, high_count, start_time, end_time, evidence_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.ID, s.Name, s.Target, string(s.Scope), string(s.Status), domain.ClampProgress(s.Progress),
		s.FindingsCount, s.CriticalCount, s.HighCount, s.StartTime, s.EndTime, s.EvidenceHash)
	return err
}

// PatchScan is a single UPDATE guarded by the allowed source statuses, so two
// concurrent patches cannot interleave and terminal rows are never touched.
func (db *DB) PatchScan(ctx context.Context, id string, p domain.ScanPatch) (domain.Scan, bool, error) {
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}
	var progress *int
	if p.Progress != nil {
		v := domain.ClampProgress(*p.Progress)
		progress = &v
	}
	sources := make([]string, 0, 4)
	for _, s := range p.AllowedSources() {
		sources = append(sources, string(s))
	}

	row := db.Pool.QueryRow(ctx, `
		UPDATE scans SET
			status         = COALESCE($2, status),
			progress       = COALESCE($3, progress),
			findings_count = COALESCE($4, findings_count),
			critical_count = COALESCE($5, critical_count),
			high_count     = COALESCE($6, high_count),
			end_time       = COALESCE($7, end_time),
			evidence_hash  = COALESCE($8, evidence_hash)
		WHERE id = $1 AND status = ANY($9)
		RETURNING `+scanColumns,
		id, status, progress, p.FindingsCount, p.CriticalCount, p.HighCount, p.EndTime, p.EvidenceHash, sources)

	scan, err := scanScan(row)
	if err == nil {
		return scan, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, false, err
	}

	current, found, err := db.GetScan(ctx, id)
	if err != nil || !found {
		return domain.Scan{}, found, err
	}
	return current, true, fmt.Errorf("%w: scan %s is %s", domain.ErrInvalidTransition, id, current.Status)
}

func (db *DB) GetScan(ctx context.Context, id string) (domain.Scan, bool, error) {
	s, err := scanScan(db.Pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Scan{}, false, nil
	}
	if err != nil {
		return domain.Scan{}, false, err
	}
	return s, true, nil
}

func (db *DB) ListScans(ctx context.Context) ([]domain.Scan, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+scanColumns+` FROM scans ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Scan{}
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
