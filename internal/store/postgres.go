package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/vertax/leadgen-cli/internal/db"
	"github.com/vertax/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lead_runs (
	id               TEXT PRIMARY KEY,
	product_id       TEXT NOT NULL,
	strategy         TEXT NOT NULL DEFAULT '',
	target_count     INTEGER NOT NULL,
	countries        JSONB NOT NULL,
	status           TEXT NOT NULL DEFAULT 'queued',
	progress         JSONB NOT NULL,
	summary          JSONB,
	error_message    TEXT NOT NULL DEFAULT '',
	total_tokens     BIGINT NOT NULL DEFAULT 0,
	total_cost_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	lease_expires_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_logs (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES lead_runs(id),
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	analysis      JSONB,
	research      JSONB,
	scoring       JSONB,
	contacts      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_lead_runs_status ON lead_runs(status);
CREATE INDEX IF NOT EXISTS idx_run_logs_run_id ON run_logs(run_id);
CREATE INDEX IF NOT EXISTS idx_companies_run_id ON companies(run_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_run_name ON companies(run_id, lower(name));
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.LeadRun) error {
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
		return eris.Wrap(err, "postgres: marshal countries")
	}
	progressJSON, err := json.Marshal(run.Progress)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO lead_runs (id, product_id, strategy, target_count, countries, status, progress, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.ProductID, run.Strategy, run.TargetCompanyCount,
		countriesJSON, string(run.Status), progressJSON, now, now,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.LeadRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, product_id, strategy, target_count, countries::text, status, progress::text, summary::text,
		        error_message, total_tokens, total_cost_usd, created_at, updated_at
		 FROM lead_runs WHERE id = $1`,
		runID,
	)
	return scanRun(row)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.LeadRun, error) {
	query := `SELECT id, product_id, strategy, target_count, countries::text, status, progress::text, summary::text,
	                 error_message, total_tokens, total_cost_usd, created_at, updated_at
	          FROM lead_runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.ProductID != "" {
		query += ` AND product_id = ` + arg(filter.ProductID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
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
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	return checkTagAffected(tag, "run", runID)
}

func (s *PostgresStore) UpdateRunProgress(ctx context.Context, runID string, progress model.Progress) error {
	progressJSON, err := json.Marshal(progress)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal progress")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET progress = $1, updated_at = now() WHERE id = $2`,
		progressJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run progress %s", runID)
	}
	return checkTagAffected(tag, "run", runID)
}

func (s *PostgresStore) UpdateRunCountries(ctx context.Context, runID string, countries []model.CountryConfig) error {
	countriesJSON, err := json.Marshal(countries)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal countries")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET countries = $1, updated_at = now() WHERE id = $2`,
		countriesJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run countries %s", runID)
	}
	return checkTagAffected(tag, "run", runID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, totalTokens int64, totalCostUSD float64) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET status = $1, summary = $2, total_tokens = $3, total_cost_usd = $4, lease_expires_at = NULL, updated_at = now()
		 WHERE id = $5`,
		string(model.RunStatusDone), summaryJSON, totalTokens, totalCostUSD, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return checkTagAffected(tag, "run", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET status = $1, error_message = $2, lease_expires_at = NULL, updated_at = now() WHERE id = $3`,
		string(model.RunStatusFailed), errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return checkTagAffected(tag, "run", runID)
}

// --- Run log ---

func (s *PostgresStore) AppendLog(ctx context.Context, runID, level, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (id, run_id, level, message) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), runID, level, message,
	)
	return eris.Wrapf(err, "postgres: append log for run %s", runID)
}

func (s *PostgresStore) GetLog(ctx context.Context, runID string, limit int) ([]model.LogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, level, message, created_at FROM run_logs
		 WHERE run_id = $1 ORDER BY created_at ASC LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get log")
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(&e.RunID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan log entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: get log iterate")
}

// --- Lease ---

func (s *PostgresStore) AcquireLease(ctx context.Context, runID string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET lease_expires_at = now() + $1, updated_at = now()
		 WHERE id = $2 AND (lease_expires_at IS NULL OR lease_expires_at < now())`,
		ttl, runID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lease %s", runID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) HeartbeatLease(ctx context.Context, runID string, ttl time.Duration) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET lease_expires_at = now() + $1 WHERE id = $2 AND lease_expires_at IS NOT NULL`,
		ttl, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: heartbeat lease %s", runID)
	}
	return checkTagAffected(tag, "lease", runID)
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, runID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET lease_expires_at = NULL WHERE id = $1`,
		runID,
	)
	return eris.Wrapf(err, "postgres: release lease %s", runID)
}

func (s *PostgresStore) ReapExpiredLeases(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lead_runs SET status = $1, error_message = 'run lease expired', lease_expires_at = NULL, updated_at = now()
		 WHERE status = $2 AND lease_expires_at IS NOT NULL AND lease_expires_at < now()`,
		string(model.RunStatusFailed), string(model.RunStatusRunning),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reap expired leases")
	}
	return int(tag.RowsAffected()), nil
}

// --- Companies ---

func (s *PostgresStore) InsertCompany(ctx context.Context, c *model.Company) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CompanyDiscovered
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, run_id, name, website, domain, country, industry, source, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.LeadRunID, c.Name, c.Website, c.Domain, c.Country, c.Industry, c.Source, string(c.Status), now, now,
	)
	return eris.Wrapf(err, "postgres: insert company %s", c.Name)
}

// InsertCompanies bulk-loads a discovery batch via COPY. Name dedupe
// happens upstream, before rows are built; the id conflict target only
// makes replays of rows that already carry ids idempotent.
func (s *PostgresStore) InsertCompanies(ctx context.Context, companies []model.Company) error {
	if len(companies) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(companies))
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
		rows = append(rows, []any{
			c.ID, c.LeadRunID, c.Name, c.Website, c.Domain, c.Country,
			c.Industry, c.Source, string(c.Status), now, now,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      []string{"id", "run_id", "name", "website", "domain", "country", "industry", "source", "status", "created_at", "updated_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"website", "domain", "industry", "updated_at"},
	}, rows)
	return eris.Wrap(err, "postgres: insert companies")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, name, website, domain, country, industry, source, status,
		        analysis::text, research::text, scoring::text, contacts::text, created_at, updated_at
		 FROM companies WHERE id = $1`,
		id,
	)
	return scanCompany(row)
}

func (s *PostgresStore) ListCompanies(ctx context.Context, runID string) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, website, domain, country, industry, source, status,
		        analysis::text, research::text, scoring::text, contacts::text, created_at, updated_at
		 FROM companies WHERE run_id = $1 ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
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
	return companies, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

func (s *PostgresStore) CompanyNameExists(ctx context.Context, runID, name string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM companies WHERE run_id = $1 AND lower(name) = lower($2)`,
		runID, name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: company name exists")
	}
	return n > 0, nil
}

func (s *PostgresStore) AdvanceCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM companies WHERE id = $1`, id).Scan(&current)
	if isNoRows(err) {
		return eris.Errorf("company not found: %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get company status %s", id)
	}
	if !model.CompanyStatus(current).CanAdvance(status) {
		return eris.Errorf("company %s: status cannot regress %s -> %s", id, current, status)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE companies SET status = $1, updated_at = now() WHERE id = $2`,
		string(status), id,
	)
	return eris.Wrapf(err, "postgres: advance company status %s", id)
}

func (s *PostgresStore) SetWebsiteAnalysis(ctx context.Context, id string, wa *model.WebsiteAnalysis) error {
	waJSON, err := json.Marshal(wa)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET analysis = $1, updated_at = now() WHERE id = $2`,
		waJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set analysis %s", id)
	}
	return checkTagAffected(tag, "company", id)
}

func (s *PostgresStore) SetResearch(ctx context.Context, id string, research *model.Research, scoring *model.Scoring) error {
	researchJSON, err := json.Marshal(research)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal research")
	}
	scoringJSON, err := json.Marshal(scoring)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal scoring")
	}
	tier := ""
	if scoring != nil {
		tier = string(scoring.Tier)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET research = $1, scoring = $2, tier = $3, updated_at = now() WHERE id = $4`,
		researchJSON, scoringJSON, tier, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set research %s", id)
	}
	return checkTagAffected(tag, "company", id)
}

func (s *PostgresStore) AddContacts(ctx context.Context, id string, contacts []model.Contact) error {
	existing, err := s.GetCompany(ctx, id)
	if err != nil {
		return err
	}
	merged := append(existing.Contacts, contacts...)
	contactsJSON, err := json.Marshal(merged)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal contacts")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE companies SET contacts = $1, contact_count = $2, updated_at = now() WHERE id = $3`,
		contactsJSON, len(merged), id,
	)
	return eris.Wrapf(err, "postgres: add contacts %s", id)
}

func (s *PostgresStore) Summarize(ctx context.Context, runID string) (*model.RunSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(1),
		        COALESCE(SUM(CASE WHEN contact_count > 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'A' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'B' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'C' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN tier = 'D' THEN 1 ELSE 0 END), 0)
		 FROM companies WHERE run_id = $1`,
		runID,
	)
	var sum model.RunSummary
	if err := row.Scan(&sum.TotalCompanies, &sum.WithContacts, &sum.TierA, &sum.TierB, &sum.TierC, &sum.TierD); err != nil {
		return nil, eris.Wrap(err, "postgres: summarize run")
	}
	return &sum, nil
}

// --- helpers ---

func checkTagAffected(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
