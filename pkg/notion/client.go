// Package notion pushes qualified leads into a Notion database for the
// sales handoff.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Lead is the subset of a scored company pushed to Notion.
type Lead struct {
	Name         string
	Website      string
	Country      string
	Tier         string
	Score        int
	ContactCount int
	Reasoning    string
}

// Client defines the Notion operations used by the lead export.
type Client interface {
	CreateLead(ctx context.Context, databaseID string, lead Lead) (string, error)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the default Notion rate limit (3 req/s).
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewClient creates a Notion client with the given integration token.
// Calls are throttled to Notion's 3 req/s limit by default.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *notionClient) CreateLead(ctx context.Context, databaseID string, lead Lead) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "notion: rate limit wait")
		}
	}

	page, err := c.inner.Page.Create(ctx, leadPageRequest(databaseID, lead))
	if err != nil {
		return "", eris.Wrapf(err, "notion: create lead %s", lead.Name)
	}
	return string(page.ID), nil
}

func leadPageRequest(databaseID string, lead Lead) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Name}}},
		},
		"Country": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Country}}},
		},
		"Tier": notionapi.SelectProperty{
			Select: notionapi.Option{Name: lead.Tier},
		},
		"Score": notionapi.NumberProperty{
			Number: float64(lead.Score),
		},
		"Contacts": notionapi.NumberProperty{
			Number: float64(lead.ContactCount),
		},
	}
	if lead.Website != "" {
		props["Website"] = notionapi.URLProperty{URL: lead.Website}
	}
	if lead.Reasoning != "" {
		props["Reasoning"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Reasoning}}},
		}
	}

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: props,
	}
}
