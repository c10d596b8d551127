package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/vertax/leadgen-cli/internal/model"
)

// scannable covers *sql.Row, *sql.Rows, pgx.Row and pgx.Rows so both
// backends share the row mapping code.
type scannable interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func scanRun(row scannable) (*model.LeadRun, error) {
	var r model.LeadRun
	var countriesJSON, progressJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.ProductID, &r.Strategy, &r.TargetCompanyCount,
		&countriesJSON, &r.Status, &progressJSON, &summaryJSON,
		&r.ErrorMessage, &r.TotalTokens, &r.TotalCostUSD, &r.CreatedAt, &r.UpdatedAt)
	if isNoRows(err) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	if err := json.Unmarshal([]byte(countriesJSON), &r.Countries); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal countries")
	}
	if err := json.Unmarshal([]byte(progressJSON), &r.Progress); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal progress")
	}
	if summaryJSON.Valid && summaryJSON.String != "null" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal summary")
		}
	}
	return &r, nil
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var analysisJSON, researchJSON, scoringJSON, contactsJSON sql.NullString

	err := row.Scan(&c.ID, &c.LeadRunID, &c.Name, &c.Website, &c.Domain, &c.Country,
		&c.Industry, &c.Source, &c.Status,
		&analysisJSON, &researchJSON, &scoringJSON, &contactsJSON,
		&c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, eris.New("company not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan company")
	}

	if analysisJSON.Valid && analysisJSON.String != "null" {
		c.WebsiteAnalysis = &model.WebsiteAnalysis{}
		if err := json.Unmarshal([]byte(analysisJSON.String), c.WebsiteAnalysis); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal analysis")
		}
	}
	if researchJSON.Valid && researchJSON.String != "null" {
		c.Research = &model.Research{}
		if err := json.Unmarshal([]byte(researchJSON.String), c.Research); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal research")
		}
	}
	if scoringJSON.Valid && scoringJSON.String != "null" {
		c.Scoring = &model.Scoring{}
		if err := json.Unmarshal([]byte(scoringJSON.String), c.Scoring); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal scoring")
		}
	}
	if contactsJSON.Valid && contactsJSON.String != "null" {
		if err := json.Unmarshal([]byte(contactsJSON.String), &c.Contacts); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal contacts")
		}
	}
	return &c, nil
}
