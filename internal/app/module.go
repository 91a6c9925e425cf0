package app

import (
	"context"
	"time"

	"github.com/lfreitas/syncbox/internal/bus"
	"github.com/lfreitas/syncbox/internal/config"
	"github.com/lfreitas/syncbox/internal/lifecycle"
	"github.com/lfreitas/syncbox/internal/lock"
	"github.com/lfreitas/syncbox/internal/logging"
	"github.com/lfreitas/syncbox/internal/netmon"
	"github.com/lfreitas/syncbox/internal/profile"
	"github.com/lfreitas/syncbox/internal/remote"
	"github.com/lfreitas/syncbox/internal/status"
	"github.com/lfreitas/syncbox/internal/store"
	intsync "github.com/lfreitas/syncbox/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
// Remote is the embedding app's transport to the remote document store; nil
// falls back to the in-memory loopback, useful for local development.
type Params struct {
	Profile string
	Remote  remote.Client
}

// Module returns the fx module composing the offline store and sync engine.
func Module(p Params) fx.Option {
	return fx.Module("syncbox",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideRemote,
			provideEngine,
			provideNetMonitor,
			provideNotifier,
			provideMessages,
			provideConversations,
			provideUsers,
			provideOutbox,
			provideSyncState,
			provideLogs,
			provideStoreCore,
			provideTranslations,
			provideDrainer,
			provideCoordinator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("profile", p.Profile))
	return l, nil
}

func provideRemote(p Params) remote.Client {
	if p.Remote != nil {
		return p.Remote
	}
	return remote.NewMemory()
}

// provideEngine opens the cache database. The lock dependency is deliberate:
// the engine must never open a database another process is writing.
func provideEngine(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.Engine, error) {
	dbPath := profile.DBPath(p.Profile)
	eng, err := store.Open(dbPath, store.Options{
		BusyRetries:   cfg.Storage.BusyRetries,
		BusyBaseDelay: time.Duration(cfg.Storage.BusyBaseDelayMs) * time.Millisecond,
		BusyMaxDelay:  time.Duration(cfg.Storage.BusyMaxDelayMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return eng, nil
}

func provideNetMonitor(b *bus.Bus) *netmon.Monitor {
	return netmon.New(b)
}

func provideNotifier(b *bus.Bus, logger *zap.Logger) *lifecycle.Notifier {
	return lifecycle.NewNotifier(b, logger)
}

func provideMessages(eng *store.Engine, logger *zap.Logger) *store.Messages {
	return store.NewMessages(eng, logger)
}

func provideConversations(eng *store.Engine, logger *zap.Logger) *store.Conversations {
	return store.NewConversations(eng, logger)
}

func provideUsers(eng *store.Engine, logger *zap.Logger) *store.Users {
	return store.NewUsers(eng, logger)
}

func provideOutbox(eng *store.Engine) *store.Outbox {
	return store.NewOutbox(eng)
}

func provideSyncState(eng *store.Engine) *store.SyncState {
	return store.NewSyncState(eng)
}

func provideLogs(eng *store.Engine, logger *zap.Logger) *store.Logs {
	return store.NewLogs(eng, logger)
}

// provideStoreCore is shared by every logger that mirrors into the logs
// table, so shutdown has a single core to drain.
func provideStoreCore(logs *store.Logs) *logging.StoreCore {
	return logging.NewStoreCore(logs)
}

func provideTranslations(eng *store.Engine) *store.Translations {
	return store.NewTranslations(eng)
}

func provideDrainer(cfg *config.Config, outbox *store.Outbox, msgs *store.Messages, rc remote.Client, b *bus.Bus, net *netmon.Monitor, machine *status.Machine, core *logging.StoreCore, logger *zap.Logger) *intsync.Drainer {
	return intsync.NewDrainer(outbox, msgs, rc, b, net, machine,
		logging.WithStore(logger, core),
		cfg.Outbox.MaxAttempts,
		time.Duration(cfg.Outbox.DrainIntervalMs)*time.Millisecond)
}

func provideCoordinator(msgs *store.Messages, convs *store.Conversations, users *store.Users, outbox *store.Outbox, state *store.SyncState, logs *store.Logs, rc remote.Client, b *bus.Bus, net *netmon.Monitor, machine *status.Machine, drainer *intsync.Drainer, core *logging.StoreCore, logger *zap.Logger) *intsync.Coordinator {
	return intsync.NewCoordinator(msgs, convs, users, outbox, state, logs, rc, b, net, machine, drainer,
		logging.WithStore(logger, core))
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, eng *store.Engine, notifier *lifecycle.Notifier, coord *intsync.Coordinator, drainer *intsync.Drainer, logs *store.Logs, core *logging.StoreCore, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// The engine flushes in-flight writes before the app suspends.
			notifier.Register(eng)

			coord.Start(context.Background())
			drainer.Start(context.Background())

			retention := time.Duration(cfg.Logs.RetentionDays) * 24 * time.Hour
			go func() {
				if n, err := logs.Prune(context.Background(), retention); err == nil && n > 0 {
					logger.Info("pruned diagnostic logs", zap.Int64("deleted", n))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			drainer.Stop()
			coord.Stop()
			// Drain mirrored log records while the engine still accepts writes.
			core.Close()
			if err := eng.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("syncbox stopped")
			return nil
		},
	})
}
