package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/vertax/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lead_runs (
	id               TEXT PRIMARY KEY,
	product_id       TEXT NOT NULL,
	strategy         TEXT NOT NULL DEFAULT '',
	target_count     INTEGER NOT NULL,
	countries        TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'queued',
	progress         TEXT NOT NULL,
	summary          TEXT,
	error_message    TEXT NOT NULL DEFAULT '',
	total_tokens     INTEGER NOT NULL DEFAULT 0,
	total_cost_usd   REAL NOT NULL DEFAULT 0,
	lease_expires_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_logs (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES lead_runs(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS companies (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES lead_runs(id),
	name          TEXT NOT NULL,
	website       TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	country       TEXT NOT NULL DEFAULT '',
	industry      TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'discovered',
	tier          TEXT NOT NULL DEFAULT '',
	contact_count INTEGER NOT NULL DEFAULT 0,
	analysis      TEXT,
	research      TEXT,
	scoring       TEXT,
	contacts      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lead_runs_status ON lead_runs(status);
CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);
CREATE INDEX IF NOT EXISTS idx_companies_run_id ON companies(run_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_run_name ON companies(run_id, name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.LeadRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	if run.Status == "" {
		run.Status = model.RunStatusQueued
	}
	if run.Progress.Stage == "" {
		run.Progress.Stage = model.StageIdle
	}

	countriesJSON, err := json.Marshal(run.Countries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal countries")
	}
	progressJSON, err := json.Marshal(run.Progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_runs (id, product_id, strategy, target_count, countries, status, progress, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProductID, run.Strategy, run.TargetCompanyCount,
		string(countriesJSON), string(run.Status), string(progressJSON), now, now,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.LeadRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, strategy, target_count, countries, status, progress, summary,
		        error_message, total_tokens, total_cost_usd, created_at, updated_at
		 FROM lead_runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.LeadRun, error) {
	query := `SELECT id, product_id, strategy, target_count, countries, status, progress, summary,
	                 error_message, total_tokens, total_cost_usd, created_at, updated_at
	          FROM lead_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ProductID != "" {
		query += ` AND product_id = ?`
		args = append(args, filter.ProductID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.LeadRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, runID string, progress model.Progress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET progress = ?, updated_at = ? WHERE id = ?`,
		string(progressJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run progress %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunCountries(ctx context.Context, runID string, countries []model.CountryConfig) error {
	countriesJSON, err := json.Marshal(countries)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal countries")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET countries = ?, updated_at = ? WHERE id = ?`,
		string(countriesJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run countries %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, totalTokens int64, totalCostUSD float64) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET status = ?, summary = ?, total_tokens = ?, total_cost_usd = ?, lease_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		string(model.RunStatusDone), string(summaryJSON), totalTokens, totalCostUSD, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET status = ?, error_message = ?, lease_expires_at = NULL, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// --- Run log ---

func (s *SQLiteStore) AppendLog(ctx context.Context, runID, level, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_logs (id, run_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, level, message, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: append log for run %s", runID)
}

func (s *SQLiteStore) GetLog(ctx context.Context, runID string, limit int) ([]model.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, level, message, created_at FROM run_logs
		 WHERE run_id = ? ORDER BY created_at ASC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get log")
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.RunID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan log entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: get log iterate")
}

// --- Lease ---

func (s *SQLiteStore) AcquireLease(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET lease_expires_at = ?, updated_at = ?
		 WHERE id = ? AND (lease_expires_at IS NULL OR lease_expires_at < ?)`,
		now.Add(ttl), now, runID, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lease %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire lease rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) HeartbeatLease(ctx context.Context, runID string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET lease_expires_at = ? WHERE id = ? AND lease_expires_at IS NOT NULL`,
		now.Add(ttl), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: heartbeat lease %s", runID)
	}
	return checkRowsAffected(res, "lease", runID)
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET lease_expires_at = NULL WHERE id = ?`,
		runID,
	)
	return eris.Wrapf(err, "sqlite: release lease %s", runID)
}

func (s *SQLiteStore) ReapExpiredLeases(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE lead_runs SET status = ?, error_message = 'run lease expired', lease_expires_at = NULL, updated_at = ?
		 WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		string(model.RunStatusFailed), now, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reap expired leases")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: reap rows affected")
}

// --- Companies ---

func (s *SQLiteStore) InsertCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CompanyDiscovered
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, run_id, name, website, domain, country, industry, source, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.LeadRunID, c.Name, c.Website, c.Domain, c.Country, c.Industry, c.Source, string(c.Status), now, now,
	)
	return eris.Wrapf(err, "sqlite: insert company %s", c.Name)
}

// InsertCompanies inserts companies one at a time inside a transaction.
// SQLite has no bulk path worth the complexity at discovery batch sizes.
func (s *SQLiteStore) InsertCompanies(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert companies")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range companies {
		c := &companies[i]
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CreatedAt = now
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = model.CompanyDiscovered
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO companies (id, run_id, name, website, domain, country, industry, source, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.LeadRunID, c.Name, c.Website, c.Domain, c.Country, c.Industry, c.Source, string(c.Status), now, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert company %s", c.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert companies")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, name, website, domain, country, industry, source, status,
		        analysis, research, scoring, contacts, created_at, updated_at
		 FROM companies WHERE id = ?`,
		id,
	)
	return scanCompany(row)
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, runID string) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, website, domain, country, industry, source, status,
		        analysis, research, scoring, contacts, created_at, updated_at
		 FROM companies WHERE run_id = ? ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

func (s *SQLiteStore) CompanyNameExists(ctx context.Context, runID, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM companies WHERE run_id = ? AND name = ? COLLATE NOCASE`,
		runID, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: company name exists")
	}
	return n > 0, nil
}

func (s *SQLiteStore) AdvanceCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM companies WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return eris.Errorf("company not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get company status %s", id)
	}
	if !model.CompanyStatus(current).CanAdvance(status) {
		return eris.Errorf("company %s: status cannot regress %s -> %s", id, current, status)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE companies SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: advance company status %s", id)
}

func (s *SQLiteStore) SetWebsiteAnalysis(ctx context.Context, id string, wa *model.WebsiteAnalysis) error {
	waJSON, err := json.Marshal(wa)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET analysis = ?, updated_at = ? WHERE id = ?`,
		string(waJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set analysis %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) SetResearch(ctx context.Context, id string, research *model.Research, scoring *model.Scoring) error {
	researchJSON, err := json.Marshal(research)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal research")
	}
	scoringJSON, err := json.Marshal(scoring)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal scoring")
	}
	tier := ""
	if scoring != nil {
		tier = string(scoring.Tier)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET research = ?, scoring = ?, tier = ?, updated_at = ? WHERE id = ?`,
		string(researchJSON), string(scoringJSON), tier, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set research %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) AddContacts(ctx context.Context, id string, contacts []model.Contact) error {
	existing, err := s.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	merged := append(existing.Contacts, contacts...)
	contactsJSON, err := json.Marshal(merged)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal contacts")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE companies SET contacts = ?, contact_count = ?, updated_at = ? WHERE id = ?`,
		string(contactsJSON), len(merged), time.Now().UTC(), id,
	)
	return eris.Wrapf(err, "sqlite: add contacts %s", id)
}

func (s *SQLiteStore) Summarize(ctx context.Context, runID string) (*model.RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1),
		        COALESCE(SUM(CASE WHEN contact_count > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'A' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'B' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'C' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'D' THEN 1 ELSE 0 END), 0)
		 FROM companies WHERE run_id = ?`,
		runID,
	)
	var s2 model.RunSummary
	if err := row.Scan(&s2.TotalCompanies, &s2.WithContacts, &s2.TierA, &s2.TierB, &s2.TierC, &s2.TierD); err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize run")
	}
	return &s2, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
