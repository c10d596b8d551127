package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vertax/leadgen-cli/internal/config"
	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/store"
)

var (
	// ErrRunActive is returned when this process is already driving a run.
	ErrRunActive = eris.New("pipeline: another run is already active")
	// ErrLeaseHeld is returned when another process holds the run's lease.
	ErrLeaseHeld = eris.New("pipeline: run lease is held by another process")
	// ErrCanceled is returned when the run was canceled mid-stage.
	ErrCanceled = eris.New("pipeline: run canceled")
)

// Orchestrator executes the stage state machine for one run at a time.
// Exclusion is two-layer: an in-process flag rejects concurrent starts
// within this process, and a store lease with heartbeat excludes other
// processes and survives restarts.
type Orchestrator struct {
	cfg    *config.Config
	store  store.Store
	stages StageAPI
	active atomic.Bool
}

// New creates an Orchestrator.
func New(cfg *config.Config, st store.Store, stages StageAPI) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: st, stages: stages}
}

// Execute drives the run through discovery, qualification, enrichment and
// contact mining, then finalizes. Finalize happens exactly once on every
// non-fatal path, including the empty-discovery and empty-qualification
// short circuits. A discovery call failure is fatal and marks the run failed.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	if !o.active.CompareAndSwap(false, true) {
		return ErrRunActive
	}
	defer o.active.Store(false)

	leaseTTL := time.Duration(o.cfg.Pipeline.LeaseTTLSecs) * time.Second
	ok, err := o.store.AcquireLease(ctx, runID, leaseTTL)
	if err != nil {
		return eris.Wrap(err, "pipeline: acquire lease")
	}
	if !ok {
		return ErrLeaseHeld
	}
	defer func() {
		if releaseErr := o.store.ReleaseLease(context.WithoutCancel(ctx), runID); releaseErr != nil {
			zap.L().Warn("pipeline: release lease", zap.String("run_id", runID), zap.Error(releaseErr))
		}
	}()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go o.heartbeat(hbCtx, runID, leaseTTL)

	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load run")
	}
	if run.Status.Terminal() {
		return eris.Errorf("pipeline: run %s already %s", runID, run.Status)
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("product_id", run.ProductID))
	log.Info("pipeline: starting run", zap.Int("target", run.TargetCompanyCount))

	if err := o.store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		return eris.Wrap(err, "pipeline: mark running")
	}
	run.Status = model.RunStatusRunning

	if err := o.runStages(ctx, run, log); err != nil {
		if eris.Is(err, ErrCanceled) {
			log.Info("pipeline: run canceled")
			return ErrCanceled
		}
		log.Error("pipeline: run failed", zap.Error(err))
		o.setStage(ctx, run, model.StageError)
		if failErr := o.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); failErr != nil {
			log.Warn("pipeline: mark failed", zap.Error(failErr))
		}
		return err
	}

	return o.finalize(ctx, run, log)
}

// runStages executes the stage loops. A nil return means the run should
// finalize; the empty-discovery and empty-qualification short circuits
// return nil early so finalize still runs exactly once.
func (o *Orchestrator) runStages(ctx context.Context, run *model.LeadRun, log *zap.Logger) error {
	discovered, err := o.runDiscovery(ctx, run, log)
	if err != nil {
		return err
	}
	if len(discovered) == 0 {
		o.appendLog(ctx, run.ID, "info", "no companies discovered, finalizing")
		return nil
	}

	qualified, err := o.runQualification(ctx, run, discovered, log)
	if err != nil {
		return err
	}
	if len(qualified) == 0 {
		o.appendLog(ctx, run.ID, "info", "no companies survived qualification, finalizing")
		return nil
	}

	if err := o.runEnrichment(ctx, run, qualified, log); err != nil {
		return err
	}
	return o.runContactMining(ctx, run, qualified, log)
}

// runDiscovery iterates discovery calls until the target is reached, every
// country is exhausted, or the safety valve trips. A failed discovery call
// is fatal for the run.
func (o *Orchestrator) runDiscovery(ctx context.Context, run *model.LeadRun, log *zap.Logger) ([]model.Company, error) {
	o.setStage(ctx, run, model.StageDiscovery)

	multiplier := o.cfg.Discovery.SafetyMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	maxDiscovered := multiplier * run.TargetCompanyCount

	var discovered []model.Company
	seen := make(map[string]bool)

	for {
		if err := o.checkCanceled(ctx, run.ID); err != nil {
			return nil, err
		}

		res, err := o.stages.Discover(ctx, run.ID)
		if err != nil {
			o.appendLog(ctx, run.ID, "error", fmt.Sprintf("discovery call failed: %v", err))
			return nil, eris.Wrap(err, "pipeline: discovery")
		}

		for _, c := range res.Companies {
			key := normalizeName(c.Name)
			if seen[key] {
				continue
			}
			seen[key] = true
			discovered = append(discovered, c)
		}
		run.Progress.DiscoveredCompanies = len(discovered)
		o.saveProgress(ctx, run)

		if len(res.Companies) > 0 {
			o.appendLog(ctx, run.ID, "info", fmt.Sprintf("discovered %d companies in %s (%d total)",
				len(res.Companies), res.CurrentCountry, len(discovered)))
		}

		if res.SwitchedCountry {
			run.Progress.CountryIndex++
			o.saveProgress(ctx, run)
			o.appendLog(ctx, run.ID, "info", fmt.Sprintf("country %s exhausted, switching to %s",
				res.CurrentCountry, res.NextCountry))
		}

		switch {
		case len(discovered) >= maxDiscovered:
			log.Warn("pipeline: discovery safety valve tripped",
				zap.Int("discovered", len(discovered)), zap.Int("cap", maxDiscovered))
			o.appendLog(ctx, run.ID, "warn", fmt.Sprintf("safety valve: %d companies reached %dx target, stopping discovery",
				len(discovered), multiplier))
			return discovered, nil
		case res.ReachedTarget:
			o.appendLog(ctx, run.ID, "info", "discovery target reached")
			return discovered, nil
		case res.AllCountriesExhausted:
			o.appendLog(ctx, run.ID, "info", "all countries exhausted")
			return discovered, nil
		}
	}
}

// runQualification applies the website gate to every discovered company in
// arrival order. Assessment failures follow the configured policy; the
// default keeps the company so a transient failure never drops a lead.
func (o *Orchestrator) runQualification(ctx context.Context, run *model.LeadRun, discovered []model.Company, log *zap.Logger) ([]model.Company, error) {
	o.setStage(ctx, run, model.StageWebsiteAnalysis)

	var qualified []model.Company
	for _, c := range discovered {
		if err := o.checkCanceled(ctx, run.ID); err != nil {
			return nil, err
		}

		res, err := o.stages.AnalyzeWebsite(ctx, run.ID, c.ID)
		if err != nil {
			log.Warn("pipeline: website analysis failed", zap.String("company", c.Name), zap.Error(err))
			if o.cfg.Pipeline.OnAssessmentError == config.DropOnError {
				run.Progress.FilteredCompanies++
				o.appendLog(ctx, run.ID, "warn", fmt.Sprintf("%s: assessment failed, dropped per policy: %v", c.Name, err))
			} else {
				qualified = append(qualified, c)
				run.Progress.AnalyzedCompanies++
				o.appendLog(ctx, run.ID, "warn", fmt.Sprintf("%s: assessment failed, kept conservatively: %v", c.Name, err))
			}
			o.saveProgress(ctx, run)
			continue
		}

		run.Progress.AnalyzedCompanies++
		if res.Qualification == model.Disqualified {
			run.Progress.FilteredCompanies++
			o.appendLog(ctx, run.ID, "info", fmt.Sprintf("%s: disqualified (score %d)", c.Name, res.RelevanceScore))
		} else {
			run.Progress.QualifiedCompanies++
			qualified = append(qualified, c)
			o.appendLog(ctx, run.ID, "info", fmt.Sprintf("%s: %s (score %d)", c.Name, res.Qualification, res.RelevanceScore))
		}
		o.saveProgress(ctx, run)
	}
	return qualified, nil
}

// runEnrichment enriches every qualified company. Failures are per-item and
// non-fatal.
func (o *Orchestrator) runEnrichment(ctx context.Context, run *model.LeadRun, qualified []model.Company, log *zap.Logger) error {
	o.setStage(ctx, run, model.StageEnrichment)

	for _, c := range qualified {
		if err := o.checkCanceled(ctx, run.ID); err != nil {
			return err
		}

		res, err := o.stages.Enrich(ctx, run.ID, c.ID)
		if err != nil {
			log.Warn("pipeline: enrichment failed", zap.String("company", c.Name), zap.Error(err))
			o.appendLog(ctx, run.ID, "warn", fmt.Sprintf("%s: enrichment failed: %v", c.Name, err))
			continue
		}
		run.Progress.EnrichedCompanies++
		o.saveProgress(ctx, run)
		o.appendLog(ctx, run.ID, "info", fmt.Sprintf("%s: enriched, tier %s", c.Name, res.Tier))
	}
	return nil
}

// runContactMining mines contacts for the same qualified set enrichment saw.
// A company whose enrichment failed is still mined; only the qualification
// gate excludes companies.
func (o *Orchestrator) runContactMining(ctx context.Context, run *model.LeadRun, qualified []model.Company, log *zap.Logger) error {
	o.setStage(ctx, run, model.StageContacts)

	for _, c := range qualified {
		if err := o.checkCanceled(ctx, run.ID); err != nil {
			return err
		}

		res, err := o.stages.MineContacts(ctx, run.ID, c.ID)
		if err != nil {
			log.Warn("pipeline: contact mining failed", zap.String("company", c.Name), zap.Error(err))
			o.appendLog(ctx, run.ID, "warn", fmt.Sprintf("%s: contact mining failed: %v", c.Name, err))
			continue
		}
		run.Progress.MinedCompanies++
		run.Progress.TotalContacts += len(res.Contacts)
		o.saveProgress(ctx, run)
		o.appendLog(ctx, run.ID, "info", fmt.Sprintf("%s: %d contacts found", c.Name, len(res.Contacts)))
	}
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, run *model.LeadRun, log *zap.Logger) error {
	o.setStage(ctx, run, model.StageDone)

	res, err := o.stages.Finalize(ctx, run.ID)
	if err != nil {
		o.setStage(ctx, run, model.StageError)
		if failErr := o.store.FailRun(context.WithoutCancel(ctx), run.ID, err.Error()); failErr != nil {
			log.Warn("pipeline: mark failed", zap.Error(failErr))
		}
		return eris.Wrap(err, "pipeline: finalize")
	}

	if err := o.store.CompleteRun(ctx, run.ID, res.Summary, res.TotalTokens, res.TotalCostUSD); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	o.appendLog(ctx, run.ID, "info", fmt.Sprintf("run complete: %d companies, %d with contacts, tiers A=%d B=%d C=%d D=%d",
		res.Summary.TotalCompanies, res.Summary.WithContacts,
		res.Summary.TierA, res.Summary.TierB, res.Summary.TierC, res.Summary.TierD))
	log.Info("pipeline: run complete",
		zap.Int("total_companies", res.Summary.TotalCompanies),
		zap.Int64("total_tokens", res.TotalTokens),
		zap.Float64("total_cost_usd", res.TotalCostUSD))
	return nil
}

// checkCanceled is called between items in every stage loop so a run marked
// canceled in the store, or a canceled context, stops before the next item.
func (o *Orchestrator) checkCanceled(ctx context.Context, runID string) error {
	if ctx.Err() != nil {
		if err := o.store.UpdateRunStatus(context.WithoutCancel(ctx), runID, model.RunStatusCanceled); err != nil {
			zap.L().Warn("pipeline: mark canceled", zap.String("run_id", runID), zap.Error(err))
		}
		return ErrCanceled
	}
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return eris.Wrap(err, "pipeline: cancellation check")
	}
	if run.Status == model.RunStatusCanceled {
		return ErrCanceled
	}
	return nil
}

func (o *Orchestrator) heartbeat(ctx context.Context, runID string, ttl time.Duration) {
	interval := time.Duration(o.cfg.Pipeline.HeartbeatSecs) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.store.HeartbeatLease(ctx, runID, ttl); err != nil {
				zap.L().Warn("pipeline: lease heartbeat", zap.String("run_id", runID), zap.Error(err))
			}
		}
	}
}

func (o *Orchestrator) setStage(ctx context.Context, run *model.LeadRun, stage model.Stage) {
	run.Progress.Stage = stage
	o.saveProgress(ctx, run)
}

func (o *Orchestrator) saveProgress(ctx context.Context, run *model.LeadRun) {
	if err := o.store.UpdateRunProgress(context.WithoutCancel(ctx), run.ID, run.Progress); err != nil {
		zap.L().Warn("pipeline: save progress", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (o *Orchestrator) appendLog(ctx context.Context, runID, level, message string) {
	if err := o.store.AppendLog(context.WithoutCancel(ctx), runID, level, message); err != nil {
		zap.L().Warn("pipeline: append run log", zap.String("run_id", runID), zap.Error(err))
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
