package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
	"github.com/vertax/leadgen-cli/internal/research"
	"github.com/vertax/leadgen-cli/internal/store"
	anthropicpkg "github.com/vertax/leadgen-cli/pkg/anthropic"
	"github.com/vertax/leadgen-cli/pkg/perplexity"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server for durable runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		svc := research.New(cfg, st, anthropicClient, perplexityClient)
		orch := pipeline.New(cfg, st, svc)

		api := newAPIServer(st)
		if err := api.requeuePending(ctx); err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.routes(cfg.Server.AllowedOrigins),
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return api.runWorker(ctx, orch) })
		g.Go(func() error { return api.reapLoop(ctx) })
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

// apiServer exposes run management over HTTP. Runs are durable: POST /runs
// persists the run as queued and a single worker drains the queue, so runs
// survive a restart and execute strictly one at a time.
type apiServer struct {
	store   store.Store
	queue   chan string
	logPoll time.Duration
}

func newAPIServer(st store.Store) *apiServer {
	return &apiServer{
		store:   st,
		queue:   make(chan string, 64),
		logPoll: time.Second,
	}
}

func (s *apiServer) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.handleCreateRun)
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Post("/{id}/cancel", s.handleCancelRun)
		r.Get("/{id}/log", s.handleRunLog)
	})

	return r
}

// requeuePending puts runs that were queued before a restart back on the
// worker queue.
func (s *apiServer) requeuePending(ctx context.Context) error {
	runs, err := s.store.ListRuns(ctx, store.RunFilter{Status: model.RunStatusQueued})
	if err != nil {
		return eris.Wrap(err, "list queued runs")
	}
	for _, r := range runs {
		select {
		case s.queue <- r.ID:
		default:
			zap.L().Warn("run queue full during requeue", zap.String("run_id", r.ID))
		}
	}
	if len(runs) > 0 {
		zap.L().Info("requeued pending runs", zap.Int("count", len(runs)))
	}
	return nil
}

// runWorker executes queued runs one at a time.
func (s *apiServer) runWorker(ctx context.Context, orch *pipeline.Orchestrator) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case runID := <-s.queue:
			zap.L().Info("worker picked up run", zap.String("run_id", runID))
			if err := orch.Execute(ctx, runID); err != nil {
				if eris.Is(err, pipeline.ErrCanceled) {
					zap.L().Warn("run canceled", zap.String("run_id", runID))
					continue
				}
				zap.L().Error("run failed", zap.String("run_id", runID), zap.Error(err))
			}
		}
	}
}

// reapLoop periodically fails runs whose lease expired, typically after a
// crash of the process that held them.
func (s *apiServer) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.store.ReapExpiredLeases(ctx)
			if err != nil {
				zap.L().Warn("lease reap failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("reaped expired run leases", zap.Int("count", n))
			}
		}
	}
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var campaign Campaign
	if err := json.NewDecoder(r.Body).Decode(&campaign); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := campaign.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run := &model.LeadRun{
		ID:                 uuid.NewString(),
		ProductID:          campaign.ProductID,
		Strategy:           campaign.Strategy,
		TargetCompanyCount: campaign.TargetCompanyCount,
		Countries:          campaign.CountryConfigs(),
		Status:             model.RunStatusQueued,
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		zap.L().Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create run failed")
		return
	}

	select {
	case s.queue <- run.ID:
	default:
		writeError(w, http.StatusServiceUnavailable, "run queue is full")
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status:    model.RunStatus(r.URL.Query().Get("status")),
		ProductID: r.URL.Query().Get("product"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.LeadRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCancelRun flips the run to canceled. A running orchestrator sees
// the persisted status at its next between-items check and stops.
func (s *apiServer) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	if run.Status.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("run is already %s", run.Status))
		return
	}

	if err := s.store.UpdateRunStatus(r.Context(), id, model.RunStatusCanceled); err != nil {
		zap.L().Error("cancel run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cancel run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.RunStatusCanceled)})
}

// handleRunLog streams the run's log as server-sent events until the run
// reaches a terminal status or the client disconnects.
func (s *apiServer) handleRunLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		zap.L().Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.logPoll)
	defer ticker.Stop()

	var sent int
	for {
		entries, err := s.store.GetLog(r.Context(), id, 0)
		if err != nil {
			zap.L().Warn("log poll failed", zap.String("run_id", id), zap.Error(err))
			return
		}
		for _, e := range entries[min(sent, len(entries)):] {
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		if len(entries) > sent {
			sent = len(entries)
			flusher.Flush()
		}

		run, err := s.store.GetRun(r.Context(), id)
		if err != nil {
			return
		}
		if run.Status.Terminal() {
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", run.Status)
			flusher.Flush()
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
