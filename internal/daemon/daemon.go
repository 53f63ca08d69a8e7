// Package daemon assembles the long-running alignercore process: storage,
// attachments, change broadcasting, the replenishment sweep, and the
// operational HTTP endpoints.
package daemon

import (
	"alignercore/internal/blob"
	blobcore "alignercore/internal/blob/core"
	"alignercore/internal/config"
	"alignercore/internal/core"
	"alignercore/internal/infra/blob/fs"
	membus "alignercore/internal/infra/broadcast/memory"
	redisbus "alignercore/internal/infra/broadcast/redis"
	"alignercore/internal/platform/logger"
	"alignercore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Bus carries change events between processes sharing a database.
type Bus interface {
	core.Broadcaster
	Subscribe(ctx context.Context, fn func(domain.ChangeEvent)) error
	Close() error
}

type reloader interface {
	Reload(ctx context.Context) error
}

// App owns every collaborator of a running daemon.
type App struct {
	Log      *logger.Logger
	Config   config.Config
	Service  *core.Service
	Registry *prometheus.Registry

	store   core.PersistentStore
	blobs   blobcore.Store
	bus     Bus
	node    string
	sweeps  prometheus.Counter
	created prometheus.Counter
	alerts  *prometheus.GaugeVec
}

// New opens the configured backends and builds the service.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Wrap(nil)
	}
	node := cfg.Scheduler.Node
	if node == "" {
		node = uuid.NewString()
	}
	log = log.With("node", node)

	store, err := core.OpenStore(cfg.StorageOptions(), core.NewDefaultRulesEngine())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	var bus Bus
	if cfg.Redis.Addr != "" {
		rb, err := redisbus.New(redisbus.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, node, log)
		if err != nil {
			closeQuietly(store)
			return nil, fmt.Errorf("open change bus: %w", err)
		}
		bus = rb
	} else {
		bus = membus.New(0)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		closeQuietly(store)
		_ = bus.Close()
		return nil, err
	}
	a := &App{
		Log:      log,
		Config:   cfg,
		Registry: reg,
		store:    store,
		blobs:    blobs,
		bus:      bus,
		node:     node,
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alignercore", Subsystem: "scheduler", Name: "sweeps_total",
			Help: "Replenishment sweeps run.",
		}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alignercore", Subsystem: "scheduler", Name: "placeholders_created_total",
			Help: "Programmed replenishment placeholders created by sweeps.",
		}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "alignercore", Subsystem: "scheduler", Name: "alerts",
			Help: "Open replenishment alerts by bracket after the last sweep.",
		}, []string{"kind"}),
	}
	reg.MustRegister(a.sweeps, a.created, a.alerts)
	a.Service = core.NewService(store,
		core.WithLogger(log),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(auditLog{log: log}),
		core.WithBroadcaster(bus),
		core.WithBlobStore(blobs),
	)
	return a, nil
}

// Handler serves /metrics, /healthz, and signed fs attachment links under
// /blobs/.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.View(r.Context(), func(core.TransactionView) error { return nil }); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})
	if fsStore, ok := a.blobs.(*fs.Store); ok {
		mux.Handle("/blobs/", http.StripPrefix("/blobs", fsStore.Handler()))
	}
	return mux
}

// Sweep runs one replenishment pass and refreshes the alert gauges.
func (a *App) Sweep(ctx context.Context) ([]domain.Alert, error) {
	created, _, err := a.Service.RunReplenishment(ctx)
	if err != nil {
		return nil, err
	}
	a.sweeps.Inc()
	a.created.Add(float64(len(created)))
	alerts, err := a.Service.ListAlerts(ctx, domain.Actor{ID: "scheduler", Role: domain.RoleLab})
	if err != nil {
		return nil, err
	}
	counts := map[domain.AlertKind]int{
		domain.AlertDueIn15Days: 0,
		domain.AlertDueIn10Days: 0,
		domain.AlertOverdue:     0,
	}
	for _, al := range alerts {
		counts[al.Kind]++
		if al.Kind == domain.AlertOverdue {
			a.Log.Warn("replenishment overdue", "case_id", al.CaseID, "treatment_code", al.TreatmentCode, "tray", al.TrayNumber, "days_left", al.DaysLeft)
		}
	}
	for kind, n := range counts {
		a.alerts.WithLabelValues(string(kind)).Set(float64(n))
	}
	a.Log.Info("replenishment sweep", "created", len(created), "alerts", len(alerts))
	return alerts, nil
}

// Run serves HTTP, follows the change bus, and sweeps on the configured
// interval until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Config.HTTP.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.follow(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		a.Log.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if interval := a.Config.Scheduler.Interval; interval > 0 {
		g.Go(func() error {
			a.sweepLoop(gctx, interval)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.Sweep(ctx); err != nil && ctx.Err() == nil {
			a.Log.Error("replenishment sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// follow reloads a durable store when another node commits.
func (a *App) follow(ctx context.Context) error {
	r, ok := a.store.(reloader)
	if !ok {
		return nil
	}
	return a.bus.Subscribe(ctx, func(e domain.ChangeEvent) {
		if err := r.Reload(ctx); err != nil {
			a.Log.Error("store reload failed", "revision", e.Revision, "error", err)
			return
		}
		a.Log.Debug("store reloaded", "revision", e.Revision, "operation", e.Operation)
	})
}

// Close releases the bus and the store.
func (a *App) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func closeQuietly(store core.PersistentStore) {
	if c, ok := store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close store: %v\n", err)
		}
	}
}

// auditLog writes audit entries to the structured log.
type auditLog struct {
	log *logger.Logger
}

func (l auditLog) Record(_ context.Context, e core.AuditEntry) {
	kv := []any{
		"operation", e.Operation,
		"entity", e.Entity,
		"action", e.Action,
		"entity_id", e.EntityID,
		"status", e.Status,
		"duration", e.Duration,
	}
	if e.Error != "" {
		kv = append(kv, "error", e.Error)
	}
	l.log.Info("audit", kv...)
}
