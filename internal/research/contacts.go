package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
)

const contactsExtractPrompt = `You extract decision-maker contacts from research text about one company.

Email status values: "verified" (published on an official source), "unverified" (reported but not confirmed), "guessed" (inferred pattern).

Respond with ONLY valid JSON, no other text:
[{"name": "Full Name", "title": "Job Title", "email": "a@b.com", "email_status": "unverified", "phone": "+49...", "whatsapp": false, "confidence": 0.7}]

Only include people actually named in the text. confidence is 0.0-1.0. Omit unknown fields. whatsapp is true only when the phone is stated to be WhatsApp-capable.`

type contactRecord struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Email       string  `json:"email"`
	EmailStatus string  `json:"email_status"`
	Phone       string  `json:"phone"`
	WhatsApp    bool    `json:"whatsapp"`
	Confidence  float64 `json:"confidence"`
}

// MineContacts searches for decision-makers at one qualified company and
// persists any contacts found. A company that already has contacts returns
// them unchanged.
func (s *Service) MineContacts(ctx context.Context, runID, companyID string) (*pipeline.ContactsResult, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "research: contacts load company")
	}
	if len(company.Contacts) > 0 {
		return &pipeline.ContactsResult{Contacts: company.Contacts}, nil
	}

	searchPrompt := fmt.Sprintf(
		"Find decision-makers at the company %q (%s, %s): owners, managing directors, "+
			"heads of operations, procurement or sales leadership. Report names, titles, "+
			"business email addresses and phone numbers where published.",
		company.Name, company.Industry, company.Country)

	content, err := s.groundedSearch(ctx, runID, searchPrompt)
	if err != nil {
		return nil, eris.Wrap(err, "research: contact search")
	}

	text, err := s.askClaude(ctx, runID, s.cfg.Anthropic.Model, contactsExtractPrompt, content)
	if err != nil {
		return nil, eris.Wrap(err, "research: contact extraction")
	}

	contacts, err := parseContacts(text)
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		if err := s.store.AddContacts(ctx, companyID, contacts); err != nil {
			return nil, eris.Wrap(err, "research: persist contacts")
		}
	}
	return &pipeline.ContactsResult{Contacts: contacts}, nil
}

func parseContacts(text string) ([]model.Contact, error) {
	payload, err := extractJSON(text, "[", "]")
	if err != nil {
		return nil, err
	}
	var records []contactRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, eris.Wrap(err, "research: parse contacts")
	}

	contacts := make([]model.Contact, 0, len(records))
	for _, r := range records {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			continue
		}
		conf := r.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		contacts = append(contacts, model.Contact{
			Name:        name,
			Title:       r.Title,
			Email:       r.Email,
			EmailStatus: normalizeEmailStatus(r.EmailStatus, r.Email),
			Phone:       r.Phone,
			WhatsApp:    r.WhatsApp,
			Confidence:  conf,
		})
	}
	return contacts, nil
}

func normalizeEmailStatus(status, email string) model.EmailStatus {
	if email == "" {
		return ""
	}
	switch model.EmailStatus(strings.ToLower(strings.TrimSpace(status))) {
	case model.EmailVerified:
		return model.EmailVerified
	case model.EmailGuessed:
		return model.EmailGuessed
	default:
		return model.EmailUnverified
	}
}
