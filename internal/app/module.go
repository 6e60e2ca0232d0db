// Package app composes the client out of its parts: config, logging, the
// data dir lock, the queue database, the protocol engine, the coordinator,
// the resilient sender, and the terminal frontend.
package app

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/config"
	"github.com/ternmail/tern/internal/imap"
	"github.com/ternmail/tern/internal/lock"
	"github.com/ternmail/tern/internal/logging"
	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/mailstore"
	"github.com/ternmail/tern/internal/queue"
	"github.com/ternmail/tern/internal/resilience"
	"github.com/ternmail/tern/internal/search"
	"github.com/ternmail/tern/internal/smtp"
	"github.com/ternmail/tern/internal/status"
	intsync "github.com/ternmail/tern/internal/sync"
	"github.com/ternmail/tern/internal/tui"
	"github.com/ternmail/tern/internal/wake"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
	Verbose    bool
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideWaker,
			provideStateMachine,
			provideLock,
			provideQueue,
			provideMailStore,
			provideClient,
			provideSyncEngine,
			provideSmtpSender,
			provideResilientSender,
			provideAccumulator,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, cfg.Account.Name, p.Verbose)
}

func provideWaker() *wake.Waker {
	return wake.New()
}

func provideStateMachine() *status.Machine {
	return status.NewMachine()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	dir := filepath.Dir(cfg.QueuePath)
	logger.Info("acquiring data dir lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir, cfg.Account.Name)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideQueue(cfg *config.Config, logger *zap.Logger) (*queue.DB, error) {
	db, err := queue.Open(cfg.QueuePath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("queue initialized", zap.String("path", cfg.QueuePath))
	return db, nil
}

func provideMailStore(cfg *config.Config) *mailstore.Store {
	return mailstore.New(mailstore.Params{
		SentFolder: cfg.Folders.Sent,
		Norm:       mail.NewNormalizer(cfg.Compose.ReplyPrefixes),
	})
}

func provideClient(cfg *config.Config, machine *status.Machine, logger *zap.Logger) *imap.Client {
	return imap.NewClient(imap.Config{
		Host:           cfg.Account.ImapHost,
		Port:           cfg.Account.ImapPort,
		User:           cfg.Account.User,
		Password:       cfg.Account.Password,
		FoldersExclude: cfg.Folders.Exclude,
	}, machine, logger)
}

func provideSyncEngine(store *mailstore.Store, client *imap.Client, waker *wake.Waker, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(store, client, waker, intsync.Config{
		Inbox:              cfg.Folders.Inbox,
		PrefetchLevel:      imap.PrefetchLevel(cfg.Sync.PrefetchLevel),
		PrefetchAllHeaders: cfg.Sync.PrefetchAllHeaders,
	}, logger)
}

func provideSmtpSender(cfg *config.Config, logger *zap.Logger) *smtp.Sender {
	return smtp.NewSender(smtp.Config{
		Host:     cfg.Account.SmtpHost,
		Port:     cfg.Account.SmtpPort,
		User:     cfg.Account.User,
		Password: cfg.Account.Password,
	}, logger)
}

func provideResilientSender(db *queue.DB, relay *smtp.Sender, engine *intsync.Engine, machine *status.Machine, waker *wake.Waker, cfg *config.Config, logger *zap.Logger) *resilience.Sender {
	return resilience.NewSender(db, relay, engine, machine, waker, resilience.Config{
		OnSendFail:      string(cfg.Compose.OnSendFail),
		DraftsFolder:    cfg.Folders.Drafts,
		SentFolder:      cfg.Folders.Sent,
		TrashFolder:     cfg.Folders.Trash,
		InboxFolder:     cfg.Folders.Inbox,
		SelfAddress:     cfg.Account.Address,
		ClientStoreSent: cfg.Compose.ClientStoreSent,
		BackupInterval:  time.Duration(cfg.Compose.BackupIntervalSec) * time.Second,
	}, logger)
}

func provideAccumulator(client *imap.Client, waker *wake.Waker, logger *zap.Logger) *search.Accumulator {
	return search.NewAccumulator(client, waker, logger)
}

func provideApp(store *mailstore.Store, engine *intsync.Engine, sender *resilience.Sender, acc *search.Accumulator, machine *status.Machine, waker *wake.Waker, cfg *config.Config, logger *zap.Logger) *tui.App {
	replyPrefix := "Re:"
	if len(cfg.Compose.ReplyPrefixes) > 0 {
		prefix := cfg.Compose.ReplyPrefixes[0]
		replyPrefix = strings.ToUpper(prefix[:1]) + prefix[1:] + ":"
	}
	return tui.NewApp(store, engine, sender, acc, machine, waker, tui.Config{
		Account:      cfg.Account.Name,
		Address:      cfg.Account.Address,
		Inbox:        cfg.Folders.Inbox,
		DraftsFolder: cfg.Folders.Drafts,
		SentFolder:   cfg.Folders.Sent,
		IdleRefresh:  time.Duration(cfg.Sync.IdleRefreshSec) * time.Second,
		NewMailBell:  cfg.Sync.NewMailBell,
		ReplyPrefix:  replyPrefix,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, ui *tui.App, client *imap.Client, engine *intsync.Engine, sender *resilience.Sender, acc *search.Accumulator, machine *status.Machine, waker *wake.Waker, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			client.SetHandlers(imap.Handlers{
				OnResponse:     engine.OnResponse,
				OnResult:       engine.OnActionResult,
				OnSearchResult: acc.OnResult,
			})
			// A reconnect re-checks the folder list; with a full-sync
			// prefetch level this fans out to the whole mailbox. Every
			// transition wakes the consumer so the status bar stays live.
			machine.Observe(func(ch status.Change) {
				if ch.To == status.Connected {
					engine.RefreshFolders()
					waker.Post(wake.Connected | wake.StatusChanged)
					return
				}
				waker.Post(wake.StatusChanged)
			})
			// The sender registers its upload-result observer before the
			// protocol worker can deliver any result.
			sender.Start(context.Background())
			client.Start()

			// The UI owns the foreground; fx shuts down when it returns.
			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("ui error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			_ = machine.Transition(status.Exiting)
			sender.Stop()
			client.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
