package main

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/pkg/notion"
)

var (
	exportOut    string
	exportNotion bool
	exportTiers  string
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's leads to XLSX and optionally push them to Notion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if _, err := st.GetRun(ctx, args[0]); err != nil {
			return eris.Wrap(err, "get run")
		}

		companies, err := st.ListCompanies(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list companies")
		}

		leads := filterLeads(companies, parseTierFilter(exportTiers))
		if len(leads) == 0 {
			zap.L().Warn("no scored leads to export", zap.String("run_id", args[0]))
			return nil
		}

		if err := writeLeadsXLSX(exportOut, leads); err != nil {
			return err
		}
		zap.L().Info("leads exported",
			zap.String("file", exportOut),
			zap.Int("leads", len(leads)),
		)

		if exportNotion {
			if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
				return eris.New("notion export requires LEADGEN_NOTION_TOKEN and LEADGEN_NOTION_LEAD_DB")
			}
			pushLeadsToNotion(ctx, notion.NewClient(cfg.Notion.Token), leads)
		}

		return nil
	},
}

// filterLeads keeps scored companies, optionally restricted to a tier set.
func filterLeads(companies []model.Company, tiers map[model.Tier]bool) []model.Company {
	var out []model.Company
	for _, c := range companies {
		if c.Scoring == nil {
			continue
		}
		if len(tiers) > 0 && !tiers[c.Scoring.Tier] {
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseTierFilter(s string) map[model.Tier]bool {
	tiers := make(map[model.Tier]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			tiers[model.Tier(part)] = true
		}
	}
	return tiers
}

func writeLeadsXLSX(path string, leads []model.Company) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Company", "Website", "Country", "Industry", "Tier", "Score",
		"Qualification", "Contacts", "Top Contact", "Top Contact Email", "Reasoning",
	} {
		header.AddCell().Value = h
	}

	for _, c := range leads {
		row := sheet.AddRow()
		row.AddCell().Value = c.Name
		row.AddCell().Value = c.Website
		row.AddCell().Value = c.Country
		row.AddCell().Value = c.Industry
		row.AddCell().Value = string(c.Scoring.Tier)
		row.AddCell().SetInt(c.Scoring.Total)
		if c.WebsiteAnalysis != nil {
			row.AddCell().Value = string(c.WebsiteAnalysis.Qualification)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().SetInt(len(c.Contacts))
		if len(c.Contacts) > 0 {
			row.AddCell().Value = c.Contacts[0].Name
			row.AddCell().Value = c.Contacts[0].Email
		} else {
			row.AddCell().Value = ""
			row.AddCell().Value = ""
		}
		row.AddCell().Value = strings.Join(c.Scoring.Reasons, "; ")
	}

	return eris.Wrap(file.Save(path), "save xlsx")
}

// pushLeadsToNotion writes each lead to the configured Notion database.
// Individual failures are logged and skipped so one bad lead does not
// abort the export.
func pushLeadsToNotion(ctx context.Context, client notion.Client, leads []model.Company) {
	var pushed int
	for _, c := range leads {
		lead := notion.Lead{
			Name:         c.Name,
			Website:      c.Website,
			Country:      c.Country,
			Tier:         string(c.Scoring.Tier),
			Score:        c.Scoring.Total,
			ContactCount: len(c.Contacts),
			Reasoning:    strings.Join(c.Scoring.Reasons, "; "),
		}
		if _, err := client.CreateLead(ctx, cfg.Notion.LeadDB, lead); err != nil {
			zap.L().Warn("notion lead push failed",
				zap.String("company", c.Name),
				zap.Error(err),
			)
			continue
		}
		pushed++
	}
	zap.L().Info("notion export complete", zap.Int("pushed", pushed), zap.Int("total", len(leads)))
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "leads.xlsx", "output XLSX path")
	exportCmd.Flags().BoolVar(&exportNotion, "notion", false, "also push leads to the Notion lead database")
	exportCmd.Flags().StringVar(&exportTiers, "tiers", "", "comma-separated tier filter (e.g. A,B)")
	rootCmd.AddCommand(exportCmd)
}
