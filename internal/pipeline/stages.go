// Package pipeline drives the lead run state machine: discovery, website
// qualification, enrichment, contact mining, finalize. Stages are executed
// strictly in sequence; per-item work inside a stage is sequential too, so
// progress counters need no locking and the AI backends see bounded load.
package pipeline

import (
	"context"

	"github.com/vertax/leadgen-cli/internal/model"
)

// DiscoverResult is the outcome of one discovery iteration.
type DiscoverResult struct {
	Companies             []model.Company
	TotalDiscovered       int
	ReachedTarget         bool
	SwitchedCountry       bool
	CurrentCountry        string
	NextCountry           string
	AllCountriesExhausted bool
}

// AnalyzeResult is a website qualification verdict for one company.
type AnalyzeResult struct {
	Qualification  model.Qualification
	RelevanceScore int
	Reasoning      string
}

// EnrichResult reports the tier assigned after enrichment.
type EnrichResult struct {
	Tier model.Tier
}

// ContactsResult carries the contacts mined for one company.
type ContactsResult struct {
	Contacts []model.Contact
}

// FinalizeResult is the run rollup computed exactly once at the end.
type FinalizeResult struct {
	Summary      *model.RunSummary
	TotalTokens  int64
	TotalCostUSD float64
}

// StageAPI is the stage work the orchestrator drives. Implementations
// persist their own results; the orchestrator only sequences calls and
// maintains run-level state. Every call must be safe to retry.
type StageAPI interface {
	Discover(ctx context.Context, runID string) (*DiscoverResult, error)
	AnalyzeWebsite(ctx context.Context, runID, companyID string) (*AnalyzeResult, error)
	Enrich(ctx context.Context, runID, companyID string) (*EnrichResult, error)
	MineContacts(ctx context.Context, runID, companyID string) (*ContactsResult, error)
	Finalize(ctx context.Context, runID string) (*FinalizeResult, error)
}
