package model

import "time"

// CompanyStatus is the soft lifecycle of a discovered company. Transitions
// are monotonic: a status never regresses once advanced.
type CompanyStatus string

const (
	CompanyDiscovered  CompanyStatus = "discovered"
	CompanyResearching CompanyStatus = "researching"
	CompanyResearched  CompanyStatus = "researched"
	CompanyScored      CompanyStatus = "scored"
	CompanyOutreached  CompanyStatus = "outreached"
	CompanyFailed      CompanyStatus = "failed"
)

var companyStatusRank = map[CompanyStatus]int{
	CompanyDiscovered:  0,
	CompanyResearching: 1,
	CompanyResearched:  2,
	CompanyScored:      3,
	CompanyOutreached:  4,
	CompanyFailed:      4,
}

// CanAdvance reports whether moving from s to next is a forward transition.
func (s CompanyStatus) CanAdvance(next CompanyStatus) bool {
	from, ok := companyStatusRank[s]
	if !ok {
		return false
	}
	to, ok := companyStatusRank[next]
	if !ok {
		return false
	}
	return to >= from
}

// Qualification is the website-relevance gate verdict for a company.
type Qualification string

const (
	Qualified    Qualification = "QUALIFIED"
	Maybe        Qualification = "MAYBE"
	Disqualified Qualification = "DISQUALIFIED"
)

// Company is a discovered business entity owned by a lead run. Discovery
// creates it; every later stage mutates it; the pipeline never deletes it.
type Company struct {
	ID        string        `json:"id"`
	LeadRunID string        `json:"lead_run_id"`
	Name      string        `json:"name"`
	Website   string        `json:"website,omitempty"`
	Domain    string        `json:"domain,omitempty"`
	Country   string        `json:"country"`
	Industry  string        `json:"industry,omitempty"`
	Source    string        `json:"source"`
	Status    CompanyStatus `json:"status"`

	WebsiteAnalysis *WebsiteAnalysis `json:"website_analysis,omitempty"`
	Research        *Research        `json:"research,omitempty"`
	Scoring         *Scoring         `json:"scoring,omitempty"`
	Outreach        *Outreach        `json:"outreach,omitempty"`
	Tender          *TenderMetadata  `json:"tender,omitempty"`
	Contacts        []Contact        `json:"contacts,omitempty"`
	Evidence        []Evidence       `json:"evidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WebsiteAnalysis is the persisted qualification-gate verdict. Disqualified
// companies keep theirs for later audit even though they never advance.
type WebsiteAnalysis struct {
	Qualification  Qualification `json:"qualification"`
	RelevanceScore int           `json:"relevance_score"`
	Reasoning      string        `json:"reasoning,omitempty"`
	AnalyzedAt     time.Time     `json:"analyzed_at"`
}

// Research holds the firmographic detail gathered during enrichment, plus
// the shadow signals detected for the company.
type Research struct {
	Summary       string         `json:"summary,omitempty"`
	EmployeeRange string         `json:"employee_range,omitempty"`
	RevenueRange  string         `json:"revenue_range,omitempty"`
	Signals       []ShadowSignal `json:"signals,omitempty"`
	ResearchedAt  time.Time      `json:"researched_at"`
}

// EmailStatus is the verification state of a mined contact email.
type EmailStatus string

const (
	EmailVerified   EmailStatus = "verified"
	EmailUnverified EmailStatus = "unverified"
	EmailGuessed    EmailStatus = "guessed"
)

// Contact is a decision-maker record mined for a company.
type Contact struct {
	Name        string      `json:"name"`
	Title       string      `json:"title,omitempty"`
	Email       string      `json:"email,omitempty"`
	EmailStatus EmailStatus `json:"email_status,omitempty"`
	Phone       string      `json:"phone,omitempty"`
	WhatsApp    bool        `json:"whatsapp"`
	Confidence  float64     `json:"confidence"`
}

// Outreach tracks downstream contact attempts. Written by the UI, read here
// only for export.
type Outreach struct {
	Status      string     `json:"status,omitempty"`
	LastContact *time.Time `json:"last_contact,omitempty"`
}

// TenderMetadata links a company to the public tender it surfaced from.
type TenderMetadata struct {
	TenderID string     `json:"tender_id,omitempty"`
	Portal   string     `json:"portal,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
}
