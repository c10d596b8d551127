// Package model defines the domain types shared across the lead pipeline.
package model

import "time"

// RunStatus is the outer lifecycle of a lead run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusDone     RunStatus = "done"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// Terminal reports whether the run has finished and will not change again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed, RunStatusCanceled:
		return true
	}
	return false
}

// Stage is the pipeline phase a run is currently executing. Stages advance
// strictly forward; StageError is absorbing.
type Stage string

const (
	StageIdle            Stage = "idle"
	StageDiscovery       Stage = "discovery"
	StageWebsiteAnalysis Stage = "website-analysis"
	StageEnrichment      Stage = "enrichment"
	StageContacts        Stage = "contacts"
	StageDone            Stage = "done"
	StageError           Stage = "error"
)

// Priority weights a country's share of the discovery query budget.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// CountryStatus tracks discovery progress within a single country.
type CountryStatus string

const (
	CountryPending    CountryStatus = "pending"
	CountryRunning    CountryStatus = "running"
	CountryDoneStatus CountryStatus = "done"
	// CountrySkipped marks countries never searched because the run hit
	// its target early.
	CountrySkipped CountryStatus = "skipped"
)

// CountryConfig is the per-country slice of a run's discovery plan. The
// allocator fills AllocatedQueries up front; discovery consumes them.
type CountryConfig struct {
	Code             string        `json:"code"`
	Name             string        `json:"name"`
	LocalName        string        `json:"local_name,omitempty"`
	Language         string        `json:"language,omitempty"`
	Priority         Priority      `json:"priority"`
	AllocatedQueries int           `json:"allocated_queries"`
	ConsumedQueries  int           `json:"consumed_queries"`
	Status           CountryStatus `json:"status"`
	CompaniesFound   int           `json:"companies_found"`
}

// Progress is the live counter block for a run. Counters only grow.
type Progress struct {
	Stage               Stage `json:"stage"`
	CountryIndex        int   `json:"country_index"`
	DiscoveredCompanies int   `json:"discovered_companies"`
	AnalyzedCompanies   int   `json:"analyzed_companies"`
	QualifiedCompanies  int   `json:"qualified_companies"`
	FilteredCompanies   int   `json:"filtered_companies"`
	EnrichedCompanies   int   `json:"enriched_companies"`
	MinedCompanies      int   `json:"mined_companies"`
	TotalContacts       int   `json:"total_contacts"`
}

// RunSummary is the final rollup written exactly once when a run ends.
type RunSummary struct {
	TotalCompanies int `json:"total_companies"`
	WithContacts   int `json:"with_contacts"`
	TierA          int `json:"tier_a"`
	TierB          int `json:"tier_b"`
	TierC          int `json:"tier_c"`
	TierD          int `json:"tier_d"`
}

// LeadRun is one end-to-end pipeline execution for a product.
type LeadRun struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id"`
	Strategy           string          `json:"strategy,omitempty"`
	TargetCompanyCount int             `json:"target_company_count"`
	Countries          []CountryConfig `json:"countries"`
	Status             RunStatus       `json:"status"`
	Progress           Progress        `json:"progress"`
	Summary            *RunSummary     `json:"summary,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	TotalTokens        int64           `json:"total_tokens"`
	TotalCostUSD       float64         `json:"total_cost_usd"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LogEntry is one line of a run's activity log.
type LogEntry struct {
	RunID     string    `json:"run_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
