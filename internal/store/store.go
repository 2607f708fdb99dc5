// Package store handles SQLite persistence of finished session reports.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/klsim/internal/model"
	"github.com/verte-zerg/klsim/internal/vault"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a report does not exist.
var ErrNotFound = errors.New("report not found")

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store wraps SQLite access for report data.
type Store struct {
	db    *sql.DB
	vault *vault.Vault
}

// Open opens or creates the SQLite database and applies migrations. The
// reconstructed text of each report is sealed with v.
func Open(path string, v *vault.Vault) (*Store, error) {
	if v == nil {
		return nil, errors.New("store requires a vault")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, vault: v}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			peak_risk TEXT NOT NULL,
			scan_count INTEGER NOT NULL,
			block_count INTEGER NOT NULL,
			keystrokes INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS report_keys (
			report_id TEXT NOT NULL,
			key TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (report_id, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_report_keys_key ON report_keys(key);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertReport stores a session report and its per-key counts.
func (s *Store) InsertReport(ctx context.Context, snap model.ReportSnapshot, keys []model.KeyCount, createdAt time.Time) (string, error) {
	payload, err := s.vault.Encrypt([]byte(snap.ReconstructedText))
	if err != nil {
		return "", fmt.Errorf("failed to seal report text: %w", err)
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, session_id, created_at, peak_risk, scan_count, block_count, keystrokes, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		snap.SessionID,
		createdAt.UTC().Format(timeLayout),
		snap.PeakRisk.String(),
		snap.ScanCount,
		snap.BlockCount,
		len(snap.CapturedStream),
		string(payload),
	)
	if err != nil {
		return "", err
	}

	if len(keys) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO report_keys (report_id, key, count) VALUES (?, ?, ?)`)
		if perr != nil {
			err = perr
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, kc := range keys {
			if _, err = stmt.ExecContext(ctx, id, kc.Key, kc.Count); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListReports returns the most recent reports, newest first. A limit of zero
// or less returns all of them.
func (s *Store) ListReports(ctx context.Context, limit int) ([]model.ReportRecord, error) {
	query := `SELECT id, session_id, created_at, peak_risk, scan_count, block_count, keystrokes, payload
		FROM reports
		ORDER BY created_at DESC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.ReportRecord
	for rows.Next() {
		rec, err := s.scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetReport returns a single report by id.
func (s *Store) GetReport(ctx context.Context, id string) (model.ReportRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at, peak_risk, scan_count, block_count, keystrokes, payload
		 FROM reports WHERE id = ?`, id)
	rec, err := s.scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReportRecord{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanReport(row scanner) (model.ReportRecord, error) {
	var rec model.ReportRecord
	var createdAt, peak, payload string
	if err := row.Scan(&rec.ID, &rec.SessionID, &createdAt, &peak, &rec.ScanCount, &rec.BlockCount, &rec.Keystrokes, &payload); err != nil {
		return model.ReportRecord{}, err
	}
	parsed, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return model.ReportRecord{}, err
	}
	rec.CreatedAt = parsed
	level, err := model.ParseRiskLevel(peak)
	if err != nil {
		return model.ReportRecord{}, err
	}
	rec.PeakRisk = level
	// Text sealed under another key reads as unavailable.
	if text, ok := s.vault.Decrypt([]byte(payload)); ok {
		rec.Text = string(text)
		rec.TextAvailable = true
	}
	return rec, nil
}

// KeyCounts aggregates key counts across reports, most frequent first.
func (s *Store) KeyCounts(ctx context.Context, reportIDs []string) ([]model.KeyCount, error) {
	if len(reportIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(reportIDs))
	args := make([]any, len(reportIDs))
	for i, id := range reportIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT key, SUM(count) AS total
		FROM report_keys
		WHERE report_id IN (%s)
		GROUP BY key
		ORDER BY total DESC, key ASC`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.KeyCount
	for rows.Next() {
		var kc model.KeyCount
		if err := rows.Scan(&kc.Key, &kc.Count); err != nil {
			return nil, err
		}
		result = append(result, kc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteReport removes a report and its key counts.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()
	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = ErrNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM report_keys WHERE report_id = ?`, id); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}
