package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusLogLines int

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show progress and recent log for a run",
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

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get run")
		}

		fmt.Printf("Run:      %s\n", run.ID)
		fmt.Printf("Product:  %s\n", run.ProductID)
		fmt.Printf("Status:   %s\n", run.Status)
		fmt.Printf("Stage:    %s\n", run.Progress.Stage)
		fmt.Printf("Target:   %d companies\n", run.TargetCompanyCount)
		if run.ErrorMessage != "" {
			fmt.Printf("Error:    %s\n", run.ErrorMessage)
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "COUNTRY\tPRIORITY\tQUERIES\tFOUND\tSTATUS")
		for _, c := range run.Countries {
			fmt.Fprintf(w, "%s (%s)\t%s\t%d/%d\t%d\t%s\n",
				c.Name, c.Code, c.Priority, c.ConsumedQueries, c.AllocatedQueries, c.CompaniesFound, c.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		p := run.Progress
		fmt.Println()
		fmt.Printf("Discovered: %d  Analyzed: %d  Qualified: %d  Filtered: %d\n",
			p.DiscoveredCompanies, p.AnalyzedCompanies, p.QualifiedCompanies, p.FilteredCompanies)
		fmt.Printf("Enriched: %d  Mined: %d  Contacts: %d\n",
			p.EnrichedCompanies, p.MinedCompanies, p.TotalContacts)

		if s := run.Summary; s != nil {
			fmt.Println()
			fmt.Printf("Summary: %d companies, %d with contacts (A:%d B:%d C:%d D:%d)\n",
				s.TotalCompanies, s.WithContacts, s.TierA, s.TierB, s.TierC, s.TierD)
			fmt.Printf("Usage: %d tokens, $%.4f\n", run.TotalTokens, run.TotalCostUSD)
		}

		entries, err := st.GetLog(ctx, run.ID, statusLogLines)
		if err != nil {
			return eris.Wrap(err, "get run log")
		}
		if len(entries) > 0 {
			fmt.Println()
			for _, e := range entries {
				fmt.Printf("%s [%s] %s\n", e.CreatedAt.Format("15:04:05"), e.Level, e.Message)
			}
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLogLines, "log-lines", 20, "number of log lines to show")
	rootCmd.AddCommand(statusCmd)
}
