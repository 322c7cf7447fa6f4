package plantao

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/core"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/appconfig"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/auth"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/docstore"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/enrich"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/eventbus"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/internal/persist"
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// AppDeps captures optional dependency overrides.
type AppDeps struct {
	Logger pslog.Logger
	// Enricher overrides the OpenAI-backed enricher built from config.
	Enricher enrich.Enricher
}

// AppOption toggles compositor components.
type AppOption func(*appOptions)

type appOptions struct {
	toasts       io.Writer
	logListener  bool
	enrichment   bool
	reconcileRow bool
}

// WithToasts prints sync failures and notices to w.
func WithToasts(w io.Writer) AppOption {
	return func(o *appOptions) { o.toasts = w }
}

// WithErrorLog logs every bus event.
func WithErrorLog() AppOption {
	return func(o *appOptions) { o.logListener = true }
}

// WithEnrichment builds the text enricher from config when no override is given.
func WithEnrichment() AppOption {
	return func(o *appOptions) { o.enrichment = true }
}

// WithDraftReconcile prunes draft row selections on every catalog snapshot.
func WithDraftReconcile() AppOption {
	return func(o *appOptions) { o.reconcileRow = true }
}

// App wires the synchronization layer: one bus, one store, one auth
// provider, and the components observing them.
type App struct {
	cfg     appconfig.Config
	options appOptions
	log     pslog.Logger

	Bus     *eventbus.Bus
	Store   *docstore.Badger
	Users   *auth.Store
	Auth    *auth.Provider
	Tracker *core.Tracker
	Manager *core.Manager
	Refs    *core.RefCache
	Catalog *core.Catalog
	Drafts  *core.DraftBoard
	Editor  *core.RenameEditor

	mu      sync.Mutex
	cancels []func()
	started bool
}

// New constructs the compositor. Nothing observes the store until Start.
func New(cfg appconfig.Config, deps AppDeps, opts ...AppOption) (*App, error) {
	options := appOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	bus := eventbus.New(logger)
	store, err := docstore.Open(docstore.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
		Logger:     logger.With("component", "docstore"),
	})
	if err != nil {
		return nil, err
	}
	users, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, cfg.Auth.SeedUsers, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	drafts, err := persist.NewStoreWithLogger(cfg.DraftDir(), logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	enricher := deps.Enricher
	if enricher == nil && options.enrichment {
		enricher = buildEnricher(cfg.Enrichment, logger)
	}

	provider := auth.NewProvider(users, store, logger)
	tracker := core.NewTracker(core.TrackerDeps{
		Source:       provider,
		Store:        store,
		Bootstrapper: core.NewBootstrapper(store, logger),
		Logger:       logger,
	})
	manager := core.NewManager(core.ManagerDeps{
		Store:    store,
		Bus:      bus,
		Identity: tracker.Identity,
		Logger:   logger,
	})
	refs := core.NewRefCache()
	catalog := core.NewCatalog(core.CatalogDeps{
		Manager:          manager,
		Refs:             refs,
		VerifyServerSide: cfg.Catalog.VerifyServerSide,
		AuditWrites:      cfg.Logging.AuditWrites,
		Logger:           logger,
	})
	board := core.NewDraftBoard(core.DraftDeps{
		Store:    store,
		Drafts:   drafts,
		Enricher: enricher,
		Bus:      bus,
		Logger:   logger,
	})

	return &App{
		cfg:     cfg,
		options: options,
		log:     logger,
		Bus:     bus,
		Store:   store,
		Users:   users,
		Auth:    provider,
		Tracker: tracker,
		Manager: manager,
		Refs:    refs,
		Catalog: catalog,
		Drafts:  board,
		Editor:  core.NewRenameEditor(catalog.Rename),
	}, nil
}

func buildEnricher(cfg appconfig.EnrichmentConfig, logger pslog.Logger) enrich.Enricher {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	}
	if key == "" {
		logger.Warn("enrichment disabled", "reason", "api key not set", "env", cfg.APIKeyEnv)
		return nil
	}
	client, err := enrich.NewOpenAI(enrich.Config{
		APIKey:  key,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Warn("enrichment disabled", "err", err)
		return nil
	}
	return client
}

// Start attaches listeners and begins following the session.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		a.log.Warn("app start rejected", "reason", "already started")
		return errors.New("app already started")
	}
	a.started = true
	a.mu.Unlock()

	var cancels []func()
	listeners := make([]eventbus.Listener, 0, 2)
	if a.options.toasts != nil {
		listeners = append(listeners, newToastWriter(a.options.toasts).OnEvent)
	}
	if a.options.logListener {
		listeners = append(listeners, logListener{log: a.log}.OnEvent)
	}
	if len(listeners) > 0 {
		fan := listenerFanout{listeners: listeners}
		cancels = append(cancels,
			a.Bus.Subscribe(eventbus.TopicPermissionError, fan.OnEvent),
			a.Bus.Subscribe(eventbus.TopicNotice, fan.OnEvent),
		)
	}

	a.Tracker.Start()
	cancels = append(cancels, a.Catalog.BindSession(a.Tracker))
	loadDrafts := func(state core.SessionState) {
		var org schema.OrgID
		if membership, ok := state.ActiveOrg(); ok {
			org = membership.ID
		}
		if err := a.Drafts.Load(state.Identity, org); err != nil {
			a.log.Warn("app draft load failed", "err", err)
		}
	}
	cancels = append(cancels, a.Tracker.OnChange(loadDrafts))
	loadDrafts(a.Tracker.State())
	if a.options.reconcileRow {
		for _, kind := range schema.EntityKinds {
			cancels = append(cancels, a.Catalog.Slot(kind).OnChange(func(core.State[schema.CatalogEntity]) {
				a.Drafts.Reconcile(a.Catalog)
			}))
		}
	}

	a.mu.Lock()
	a.cancels = cancels
	a.mu.Unlock()
	pslog.Ctx(ctx).Info("app start",
		"store", a.cfg.Store.Path,
		"in_memory", a.cfg.Store.InMemory,
		"verify_server_side", a.cfg.Catalog.VerifyServerSide,
	)
	return nil
}

// SignIn authenticates and waits until the profile is resolved.
func (a *App) SignIn(ctx context.Context, login, password, totpCode string) (core.SessionState, error) {
	if _, err := a.Tracker.SignIn(ctx, login, password, totpCode); err != nil {
		return core.SessionState{}, err
	}
	state, err := a.Tracker.WaitProfile(ctx)
	if err != nil {
		return state, err
	}
	if state.Err != nil {
		return state, state.Err
	}
	return state, nil
}

// Stop signs out, cancels every observation and closes the store.
func (a *App) Stop() error {
	a.mu.Lock()
	cancels := a.cancels
	started := a.started
	a.cancels = nil
	a.started = false
	a.mu.Unlock()
	if started {
		a.Auth.SignOut()
	}
	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	a.Tracker.Stop()
	a.Catalog.Close()
	if err := a.Store.Close(); err != nil {
		a.log.Warn("app store close failed", "err", err)
		return err
	}
	a.log.Info("app stopped")
	return nil
}
