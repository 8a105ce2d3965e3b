package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/vesseldata/vesseldata/internal/auth/token"
	"github.com/vesseldata/vesseldata/internal/backend/hooks"
	"github.com/vesseldata/vesseldata/internal/backend/queue"
	"github.com/vesseldata/vesseldata/internal/backend/scheduler"
	"github.com/vesseldata/vesseldata/internal/backend/state"
	"github.com/vesseldata/vesseldata/internal/backend/usage"
	"github.com/vesseldata/vesseldata/internal/config"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers/tokens"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers/transfers"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers/usagestats"
	"github.com/vesseldata/vesseldata/internal/proxy/controllers/voyage"
	mw "github.com/vesseldata/vesseldata/internal/proxy/middlewares"
	"github.com/vesseldata/vesseldata/internal/store"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
	"github.com/vesseldata/vesseldata/internal/syslog"
	"github.com/vesseldata/vesseldata/internal/tasks"
	"github.com/vesseldata/vesseldata/internal/utils"
)

func openStore() (*store.Store, error) {
	return store.Initialize(context.Background(), nil)
}

// ensureSecret returns a stored secret, generating and persisting it on
// first boot.
func ensureSecret(storeInstance *store.Store, key string) (string, error) {
	if value, err := storeInstance.Database.GetCoreVar(key); err == nil && value != "" {
		return value, nil
	}
	value, err := utils.GenerateSecretKey(32)
	if err != nil {
		return "", err
	}
	if err := storeInstance.Database.SetCoreVar(key, value); err != nil {
		return "", err
	}
	return value, nil
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock := flock.New(constants.LockFilePath)
	locked, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("another transferd instance is already running")
	}
	defer lock.Unlock()

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(constants.RunLogsBasePath, 0o755); err != nil {
		return err
	}

	storeInstance, err := openStore()
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to initialize store").Write()
		return err
	}
	defer storeInstance.Close()

	tokenSecret := cfg.TokenSecret
	if tokenSecret == "" {
		if tokenSecret, err = ensureSecret(storeInstance, "tokenSecret"); err != nil {
			return err
		}
	}
	adminSecret := cfg.AdminSecret
	if adminSecret == "" {
		if adminSecret, err = ensureSecret(storeInstance, "adminSecret"); err != nil {
			return err
		}
	}

	tokenManager, err := token.NewManager(token.Config{
		TokenExpiration: 24 * time.Hour,
		SecretKey:       tokenSecret,
	})
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to initialize token manager").Write()
		return err
	}
	storeInstance.TokenManager = tokenManager

	tracker := state.NewTracker(storeInstance)
	if err := tracker.ResetStale(); err != nil {
		syslog.L.Error(err).WithMessage("failed to reset stale statuses").Write()
		return err
	}

	usageCache, err := usage.Open(filepath.Join(constants.DbBasePath, "usage.db"))
	if err != nil {
		syslog.L.Error(err).WithMessage("failed to open usage cache").Write()
		return err
	}
	defer usageCache.Close()

	q := queue.NewManager(ctx)
	runner := tasks.NewRunner(storeInstance, tracker, usageCache, tasks.Options{
		RunLogDir:        constants.RunLogsBasePath,
		CruiseDataDir:    cfg.CruiseDataDir,
		DashboardCommand: cfg.DashboardCommand,
		DashboardArgs:    cfg.DashboardArgs,
	})
	runner.Register(q)

	dispatcher, err := hooks.NewDispatcher(hooks.DefaultTable(), postHooks(cfg), q, storeInstance)
	if err != nil {
		syslog.L.Error(err).WithMessage("invalid hook configuration").Write()
		return err
	}
	runner.SetDispatcher(dispatcher)

	q.Start()
	defer q.Close()

	sched := scheduler.New(storeInstance, tracker, q, scheduler.Options{
		TransferInterval:    cfg.TransferInterval(),
		ShipToShoreInterval: cfg.ShipToShoreInterval(),
		UsageInterval:       cfg.UsageInterval(),
		RetryErrored:        cfg.RetryErrored,
	})
	go sched.Run(ctx)

	config.Watch(configFile, func(next *config.Config) {
		sched.SetRetryErrored(next.RetryErrored)
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/token", mw.CORS(tokens.Handler(storeInstance, adminSecret)))
	mux.HandleFunc("/api/v1/transfers", mw.RequireToken(storeInstance, mw.CORS(transfers.ListHandler(storeInstance))))
	mux.HandleFunc("/api/v1/transfers/{transfer}", mw.RequireToken(storeInstance, mw.CORS(transfers.SingleHandler(storeInstance, tracker, q))))
	mux.HandleFunc("/api/v1/transfers/{transfer}/run", mw.RequireToken(storeInstance, mw.CORS(transfers.RunHandler(storeInstance, tracker, q))))
	mux.HandleFunc("/api/v1/transfers/{transfer}/stop", mw.RequireToken(storeInstance, mw.CORS(transfers.StopHandler(tracker))))
	mux.HandleFunc("/api/v1/transfers/{transfer}/test", mw.RequireToken(storeInstance, mw.CORS(transfers.TestHandler(q))))
	mux.HandleFunc("/api/v1/transfers/{transfer}/status", mw.RequireToken(storeInstance, mw.CORS(transfers.StatusHandler(tracker))))
	mux.HandleFunc("/api/v1/statuses", mw.RequireToken(storeInstance, mw.CORS(transfers.StatusesHandler(tracker))))
	mux.HandleFunc("/api/v1/voyage", mw.RequireToken(storeInstance, mw.CORS(voyage.ContextHandler(storeInstance))))
	mux.HandleFunc("/api/v1/system", mw.RequireToken(storeInstance, mw.CORS(voyage.SystemHandler(storeInstance))))
	mux.HandleFunc("/api/v1/rebuild", mw.RequireToken(storeInstance, mw.CORS(voyage.RebuildHandler(q))))
	mux.HandleFunc("/api/v1/usage", mw.RequireToken(storeInstance, mw.CORS(usagestats.Handler(usageCache))))

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		syslog.L.Info().WithField("address", cfg.ListenAddress).WithMessage("starting admin server").Write()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			syslog.L.Error(err).WithMessage("admin server failed").Write()
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		syslog.L.Error(err).WithMessage("admin server shutdown failed").Write()
	}

	syslog.L.Info().WithMessage("transferd stopped").Write()
	return nil
}

func postHooks(cfg *config.Config) []hooks.PostHook {
	out := make([]hooks.PostHook, 0, len(cfg.PostHooks))
	for _, h := range cfg.PostHooks {
		out = append(out, hooks.PostHook{
			Task:     types.TaskKind(h.Task),
			Transfer: h.Transfer,
			Command:  h.Command,
			Args:     h.Args,
		})
	}
	return out
}
