package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/store"
)

var (
	runsStatus  string
	runsProduct string
	runsLimit   int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List lead runs",
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

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status:    model.RunStatus(runsStatus),
			ProductID: runsProduct,
			Limit:     runsLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRODUCT\tSTATUS\tSTAGE\tDISCOVERED\tQUALIFIED\tCONTACTS\tCOST\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\n",
				shortID(r.ID),
				r.ProductID,
				r.Status,
				r.Progress.Stage,
				r.Progress.DiscoveredCompanies,
				r.Progress.QualifiedCompanies,
				r.Progress.TotalContacts,
				r.TotalCostUSD,
				r.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (queued|running|done|failed|canceled)")
	runsCmd.Flags().StringVar(&runsProduct, "product", "", "filter by product ID")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
