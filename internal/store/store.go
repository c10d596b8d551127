// Package store persists lead runs and companies behind a driver-agnostic
// interface with SQLite and Postgres backends.
package store

import (
	"context"
	"time"

	"github.com/vertax/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	ProductID string          `json:"product_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.LeadRun) error
	GetRun(ctx context.Context, runID string) (*model.LeadRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.LeadRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunProgress(ctx context.Context, runID string, progress model.Progress) error
	UpdateRunCountries(ctx context.Context, runID string, countries []model.CountryConfig) error
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, totalTokens int64, totalCostUSD float64) error
	FailRun(ctx context.Context, runID string, errMsg string) error

	// Run log (surfaced live to the UI)
	AppendLog(ctx context.Context, runID, level, message string) error
	GetLog(ctx context.Context, runID string, limit int) ([]model.LogEntry, error)

	// Run lease: mutual exclusion that survives process restarts.
	AcquireLease(ctx context.Context, runID string, ttl time.Duration) (bool, error)
	HeartbeatLease(ctx context.Context, runID string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, runID string) error
	ReapExpiredLeases(ctx context.Context) (int, error)

	// Companies
	InsertCompany(ctx context.Context, c *model.Company) error
	InsertCompanies(ctx context.Context, companies []model.Company) error
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, runID string) ([]model.Company, error)
	CompanyNameExists(ctx context.Context, runID, name string) (bool, error)
	AdvanceCompanyStatus(ctx context.Context, id string, status model.CompanyStatus) error
	SetWebsiteAnalysis(ctx context.Context, id string, wa *model.WebsiteAnalysis) error
	SetResearch(ctx context.Context, id string, research *model.Research, scoring *model.Scoring) error
	AddContacts(ctx context.Context, id string, contacts []model.Contact) error
	Summarize(ctx context.Context, runID string) (*model.RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
