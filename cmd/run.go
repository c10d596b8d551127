package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
	"github.com/vertax/leadgen-cli/internal/research"
	anthropicpkg "github.com/vertax/leadgen-cli/pkg/anthropic"
	"github.com/vertax/leadgen-cli/pkg/perplexity"
)

var runCmd = &cobra.Command{
	Use:   "run <campaign.yaml>",
	Short: "Execute a lead discovery run for a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		campaign, err := loadCampaign(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		run := &model.LeadRun{
			ID:                 uuid.NewString(),
			ProductID:          campaign.ProductID,
			Strategy:           campaign.Strategy,
			TargetCompanyCount: campaign.TargetCompanyCount,
			Countries:          campaign.CountryConfigs(),
			Status:             model.RunStatusQueued,
		}
		if err := st.CreateRun(ctx, run); err != nil {
			return eris.Wrap(err, "create run")
		}

		zap.L().Info("run created",
			zap.String("run_id", run.ID),
			zap.String("product", run.ProductID),
			zap.Int("target", run.TargetCompanyCount),
			zap.Int("countries", len(run.Countries)),
		)

		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)

		svc := research.New(cfg, st, anthropicClient, perplexityClient)
		orch := pipeline.New(cfg, st, svc)

		if err := orch.Execute(ctx, run.ID); err != nil {
			if eris.Is(err, pipeline.ErrCanceled) {
				zap.L().Warn("run canceled", zap.String("run_id", run.ID))
				return nil
			}
			return eris.Wrap(err, "pipeline execute")
		}

		final, err := st.GetRun(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "load finished run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", final.ID),
			zap.Int64("total_tokens", final.TotalTokens),
			zap.Float64("total_cost_usd", final.TotalCostUSD),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
