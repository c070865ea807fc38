package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	"enem-dashboard/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Store persists exported sessions, dashboard snapshots and filtered rows
type Store struct {
	db *sql.DB
}

// SessionInfo is one row of the sessions table
type SessionInfo struct {
	ID          string
	DatasetPath string
	Fingerprint uint64
	Criteria    model.FilterCriteria
	CreatedAt   time.Time
}

// Open opens (or creates) the SQLite database at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// Create tables if not exists
	sessionTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		dataset_path TEXT,
		fingerprint TEXT,
		criteria TEXT,
		created_at DATETIME
	);
	`
	snapshotTable := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		metrics TEXT,
		admin_means TEXT,
		top TEXT,
		computed_at DATETIME
	);
	`
	rowsTable := `
	CREATE TABLE IF NOT EXISTS filtered_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		municipality TEXT,
		year INTEGER,
		admin_code INTEGER,
		admin_label TEXT,
		score REAL,
		gdp REAL,
		per_capita REAL,
		extra TEXT
	);
	`
	for _, stmt := range []string{sessionTable, snapshotTable, rowsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create tables")
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// SaveSession stores (or replaces) a session and the criteria it used
func (s *Store) SaveSession(ctx context.Context, sessionID string, ds *model.Dataset, c model.FilterCriteria) error {
	return saveSession(ctx, s.db, sessionID, ds, c)
}

// SaveSnapshot records the derived outputs of one computation
func (s *Store) SaveSnapshot(ctx context.Context, d *model.Dashboard) error {
	return saveSnapshot(ctx, s.db, d)
}

// SaveRows replaces the stored filtered rows of a session in one transaction
func (s *Store) SaveRows(ctx context.Context, sessionID string, records []model.Record) (int, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		return replaceRows(ctx, tx, sessionID, records)
	})
}

// SaveExport writes the session, a snapshot of d and the filtered rows in one
// transaction. On error nothing is stored, so the call can be repeated.
func (s *Store) SaveExport(ctx context.Context, ds *model.Dataset, d *model.Dashboard, records []model.Record) (int, error) {
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		if err := saveSession(ctx, tx, d.SessionID, ds, d.Criteria); err != nil {
			return 0, err
		}
		if err := saveSnapshot(ctx, tx, d); err != nil {
			return 0, err
		}
		return replaceRows(ctx, tx, d.SessionID, records)
	})
}

// inTx runs fn in a transaction. The count is 0 unless the commit succeeds.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) (int, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	n, err := fn(tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return n, nil
}

func saveSession(ctx context.Context, ex execer, sessionID string, ds *model.Dataset, c model.FilterCriteria) error {
	criteriaJSON, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, dataset_path, fingerprint, criteria, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, ds.Path, formatFingerprint(ds.Fingerprint), string(criteriaJSON), time.Now().UTC())
	return errors.Wrap(err, "save session")
}

func saveSnapshot(ctx context.Context, ex execer, d *model.Dashboard) error {
	metricsJSON, err := json.Marshal(d.Metrics)
	if err != nil {
		return err
	}
	meansJSON, err := json.Marshal(d.AdminMeans)
	if err != nil {
		return err
	}
	topJSON, err := json.Marshal(d.Top)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, metrics, admin_means, top, computed_at) VALUES (?, ?, ?, ?, ?)`,
		d.SessionID, string(metricsJSON), string(meansJSON), string(topJSON), d.ComputedAt)
	return errors.Wrap(err, "save snapshot")
}

func replaceRows(ctx context.Context, ex execer, sessionID string, records []model.Record) (int, error) {
	if _, err := ex.ExecContext(ctx, `DELETE FROM filtered_rows WHERE session_id = ?`, sessionID); err != nil {
		return 0, errors.Wrap(err, "clear rows")
	}
	stmt, err := ex.PrepareContext(ctx, `INSERT INTO filtered_rows
		(session_id, municipality, year, admin_code, admin_label, score, gdp, per_capita, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, rec := range records {
		var extra []byte
		if len(rec.Extra) > 0 {
			if extra, err = json.Marshal(rec.Extra); err != nil {
				return 0, err
			}
		}
		if _, err := stmt.ExecContext(ctx, sessionID, rec.Municipality, rec.Year, int(rec.Admin),
			rec.Admin.Label(), rec.Score, rec.GDP, rec.PerCapita, string(extra)); err != nil {
			return 0, errors.Wrapf(err, "insert row %d", i)
		}
	}
	return len(records), nil
}

// CountRows returns the number of stored rows of a session
func (s *Store) CountRows(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM filtered_rows WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}

// ListSessions returns all sessions, newest first
func (s *Store) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, dataset_path, fingerprint, criteria, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var (
			info        SessionInfo
			fingerprint string
			criteria    string
		)
		if err := rows.Scan(&info.ID, &info.DatasetPath, &fingerprint, &criteria, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.Fingerprint = parseFingerprint(fingerprint)
		if err := json.Unmarshal([]byte(criteria), &info.Criteria); err != nil {
			return nil, errors.Wrapf(err, "decode criteria of session %s", info.ID)
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// fingerprints are stored as hex text; SQLite integers are signed
func formatFingerprint(f uint64) string {
	return strconv.FormatUint(f, 16)
}

func parseFingerprint(s string) uint64 {
	f, _ := strconv.ParseUint(s, 16, 64)
	return f
}
