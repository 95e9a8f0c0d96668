package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"cloudauditor/internal/domain"
	"cloudauditor/internal/ports"
)

const vulnColumns = `id, scan_id, title, severity, category, cvss_score, affected_resource,
	status, description, remediation, discovered_at`

const threatColumns = `id, scan_id, type, severity, source, description, ts, status,
	related_findings, recommended_action`

const frameworkColumns = `id, scan_id, name, short_name, score, total_controls,
	passed_controls, failed_controls, na_controls`

func (db *DB) AppendFindings(ctx context.Context, scanID string, vulns []domain.Vulnerability) error {
	if len(vulns) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, v := range vulns {
		batch.Queue(`INSERT INTO vulnerabilities (`+vulnColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			v.ID, scanID, v.Title, string(v.Severity), v.Category, v.CVSSScore, v.AffectedResource,
			string(v.Status), v.Description, v.Remediation, v.DiscoveredAt)
	}
	return db.Pool.SendBatch(ctx, batch).Close()
}

func (db *DB) AppendThreats(ctx context.Context, scanID string, threats []domain.Threat) error {
	if len(threats) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range threats {
		batch.Queue(`INSERT INTO threats (`+threatColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.ID, scanID, t.Type, string(t.Severity), t.Source, t.Description, t.Timestamp,
			string(t.Status), t.RelatedFindings, t.RecommendedAction)
	}
	return db.Pool.SendBatch(ctx, batch).Close()
}

// AppendComplianceFrameworks writes frameworks and their controls in one
// transaction.
func (db *DB) AppendComplianceFrameworks(ctx context.Context, scanID string, frameworks []domain.ComplianceFramework) (err error) {
	if len(frameworks) == 0 {
		return nil
	}
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	batch := &pgx.Batch{}
	for _, f := range frameworks {
		batch.Queue(`INSERT INTO compliance_frameworks (`+frameworkColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID, scanID, f.Name, f.ShortName, f.Score, f.TotalControls,
			f.PassedControls, f.FailedControls, f.NAControls)
		for i, c := range f.Controls {
			batch.Queue(`INSERT INTO compliance_controls
				(framework_id, position, id, control_id, description, status, category, severity, framework)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				f.ID, i, c.ID, c.ControlID, c.Description, string(c.Status), c.Category,
				string(c.Severity), c.Framework)
		}
	}
	err = tx.SendBatch(ctx, batch).Close()
	return err
}

func (db *DB) FindingsByScan(ctx context.Context, scanID string) ([]domain.Vulnerability, error) {
	return db.queryVulns(ctx, `SELECT `+vulnColumns+` FROM vulnerabilities WHERE scan_id = $1 ORDER BY seq`, scanID)
}

func (db *DB) AllFindings(ctx context.Context, f ports.FindingFilter) ([]domain.Vulnerability, error) {
	var where []string
	var args []any
	if len(f.Severities) > 0 {
		sev := make([]string, len(f.Severities))
		for i, s := range f.Severities {
			sev[i] = string(s)
		}
		args = append(args, sev)
		where = append(where, "severity = ANY($1)")
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	q := `SELECT ` + vulnColumns + ` FROM vulnerabilities`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	return db.queryVulns(ctx, q+` ORDER BY seq`, args...)
}

func (db *DB) queryVulns(ctx context.Context, q string, args ...any) ([]domain.Vulnerability, error) {
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Vulnerability{}
	for rows.Next() {
		var v domain.Vulnerability
		var sev, status string
		if err := rows.Scan(&v.ID, &v.ScanID, &v.Title, &sev, &v.Category, &v.CVSSScore,
			&v.AffectedResource, &status, &v.Description, &v.Remediation, &v.DiscoveredAt); err != nil {
			return nil, err
		}
		v.Severity = domain.Severity(sev)
		v.Status = domain.VulnStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (db *DB) ThreatsByScan(ctx context.Context, scanID string) ([]domain.Threat, error) {
	return db.queryThreats(ctx, `SELECT `+threatColumns+` FROM threats WHERE scan_id = $1 ORDER BY seq`, scanID)
}

func (db *DB) AllThreats(ctx context.Context) ([]domain.Threat, error) {
	return db.queryThreats(ctx, `SELECT `+threatColumns+` FROM threats ORDER BY seq`)
}

func (db *DB) queryThreats(ctx context.Context, q string, args ...any) ([]domain.Threat, error) {
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Threat{}
	for rows.Next() {
		var t domain.Threat
		var sev, status string
		if err := rows.Scan(&t.ID, &t.ScanID, &t.Type, &sev, &t.Source, &t.Description,
			&t.Timestamp, &status, &t.RelatedFindings, &t.RecommendedAction); err != nil {
			return nil, err
		}
		t.Severity = domain.Severity(sev)
		t.Status = domain.ThreatStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) FrameworksByScan(ctx context.Context, scanID string) ([]domain.ComplianceFramework, error) {
	return db.queryFrameworks(ctx, `SELECT `+frameworkColumns+` FROM compliance_frameworks WHERE scan_id = $1 ORDER BY seq`, scanID)
}

func (db *DB) AllFrameworks(ctx context.Context) ([]domain.ComplianceFramework, error) {
	return db.queryFrameworks(ctx, `SELECT `+frameworkColumns+` FROM compliance_frameworks ORDER BY seq`)
}

// queryFrameworks loads frameworks and then all their controls in one query.
func (db *DB) queryFrameworks(ctx context.Context, q string, args ...any) ([]domain.ComplianceFramework, error) {
	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []domain.ComplianceFramework{}
	index := map[string]int{}
	ids := []string{}
	for rows.Next() {
		var f domain.ComplianceFramework
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Name, &f.ShortName, &f.Score, &f.TotalControls,
			&f.PassedControls, &f.FailedControls, &f.NAControls); err != nil {
			rows.Close()
			return nil, err
		}
		f.Controls = []domain.ComplianceControl{}
		index[f.ID] = len(out)
		ids = append(ids, f.ID)
		out = append(out, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	crows, err := db.Pool.Query(ctx, `
		SELECT framework_id, id, control_id, description, status, category, severity, framework
		FROM compliance_controls WHERE framework_id = ANY($1)
		ORDER BY framework_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var fwID, status, sev string
		var c domain.ComplianceControl
		if err := crows.Scan(&fwID, &c.ID, &c.ControlID, &c.Description, &status, &c.Category, &sev, &c.Framework); err != nil {
			return nil, err
		}
		c.Status = domain.ControlStatus(status)
		c.Severity = domain.Severity(sev)
		i := index[fwID]
		out[i].Controls = append(out[i].Controls, c)
	}
	return out, crows.Err()
}
