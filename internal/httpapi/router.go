package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"watchgate/internal/billing"
	"watchgate/internal/config"
	"watchgate/internal/lifecycle"
	"watchgate/internal/models"
	"watchgate/internal/notify"
	"watchgate/internal/queue"
	"watchgate/internal/scheduler"
	"watchgate/internal/storage"
	"watchgate/internal/utils"
)

// LedgerReader is the reporting slice of the usage ledger.
type LedgerReader interface {
	Summary(ctx context.Context, subscriberID, topicID string) (*models.UsageSummary, error)
	SubscriberTotals(ctx context.Context, subscriberID string) (*models.SubscriberUsage, error)
	CountsByKind(ctx context.Context, subscriberID, topicID string) (map[models.OperationKind]int64, error)
}

// SubscriptionReader lists a subscriber's watches.
type SubscriptionReader interface {
	ListBySubscriber(ctx context.Context, subscriberID string) ([]*models.Subscription, error)
}

// TopicDirectory reads the topic catalog.
type TopicDirectory interface {
	Get(ctx context.Context, id string) (*models.Topic, error)
	List(ctx context.Context) ([]*models.Topic, error)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Config        *config.Config
	Balances      billing.BalanceStore
	Ledger        LedgerReader
	Subscriptions SubscriptionReader
	Topics        TopicDirectory
	Gate          *billing.Gate
	Controller    *lifecycle.Controller
	Supervisor    *scheduler.Supervisor
	Notifier      notify.Notifier
	DeadLetter    queue.DeadLetterQueue
	Worker        *notify.Worker
	DB            *storage.DB

	logger *utils.Logger
}

// NewRouter creates an HTTP router with all dependencies wired up.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		logger: utils.NewLogger("httpapi"),
	}

	var (
		balances   billing.BalanceStore
		ledger     LedgerReader
		gateLedger billing.LedgerStore
		subs       billing.SubscriptionStore
		topics     *topicStores
	)

	switch cfg.StoreBackend {
	case "postgres":
		db, err := storage.NewDB(storage.DBConfig{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			QueryTimeout:    cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.EnsureSchema(context.Background()); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		deps.DB = db

		balanceRepo := storage.NewBalanceRepository(db)
		usageRepo := storage.NewUsageRepository(db)
		subRepo := storage.NewSubscriptionRepository(db)
		topicRepo := storage.NewTopicRepository(db)

		balances = balanceRepo
		ledger = usageRepo
		gateLedger = usageRepo
		subs = subRepo
		deps.Subscriptions = subRepo
		topics = &topicStores{ensure: topicRepo, directory: topicRepo}
	case "memory":
		balanceStore := storage.NewMemoryBalanceStore()
		ledgerStore := storage.NewMemoryLedgerStore()
		subStore := storage.NewMemorySubscriptionStore()
		topicStore := storage.NewMemoryTopicStore()

		balances = balanceStore
		ledger = ledgerStore
		gateLedger = ledgerStore
		subs = subStore
		deps.Subscriptions = subStore
		topics = &topicStores{ensure: topicStore, directory: topicStore}
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	notifier, worker, dlq, err := buildNotifier(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}
	if worker != nil {
		worker.Start(context.Background())
	}

	gate := billing.NewGate(balances, gateLedger, subs, billing.Config{
		FeeHeadroom: cfg.Pricing.FeeHeadroom,
	})
	controller := lifecycle.NewController(balances, subs, topics.ensure, notifier, lifecycle.Config{
		MinStartBalance:    cfg.Pricing.MinStartBalance,
		EstimatedDailyBurn: cfg.Pricing.EstimatedDailyBurn,
	})
	supervisor := scheduler.NewSupervisor(gate, subs, controller, notifier, scheduler.Config{
		Fee:               cfg.Pricing.RecurringFee,
		FeePeriod:         cfg.Scheduler.FeePeriod,
		CheckInterval:     cfg.Scheduler.CheckInterval,
		WarnStandardBelow: cfg.Pricing.WarnStandardBelow,
		WarnCriticalBelow: cfg.Pricing.WarnCriticalBelow,
	})
	if err := supervisor.Start(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	deps.Balances = balances
	deps.Ledger = ledger
	deps.Topics = topics.directory
	deps.Gate = gate
	deps.Controller = controller
	deps.Supervisor = supervisor
	deps.Notifier = notifier
	deps.DeadLetter = dlq
	deps.Worker = worker

	mux := http.NewServeMux()
	registerRoutes(mux, deps)
	return mux, deps, nil
}

// topicStores splits the topic store between the controller, which creates
// topics, and the read-only directory handlers.
type topicStores struct {
	ensure    lifecycle.TopicStore
	directory TopicDirectory
}

func buildNotifier(cfg *config.Config) (notify.Notifier, *notify.Worker, queue.DeadLetterQueue, error) {
	switch cfg.Notify.Backend {
	case "log", "":
		return notify.NewLogNotifier(), nil, nil, nil
	case "memory":
		qcfg := queue.DefaultConfig(cfg.Notify.QueueName)
		q := queue.NewMemoryQueue(qcfg)
		dlq := queue.NewMemoryDeadLetterQueue()
		worker := notify.NewWorker(q, dlq, logSender(), qcfg)
		return notify.NewQueueNotifier(q), worker, dlq, nil
	case "redis":
		qcfg := queue.DefaultConfig(cfg.Notify.QueueName)
		qcfg.RedisAddr = cfg.Redis.Address
		qcfg.RedisPassword = cfg.Redis.Password
		qcfg.RedisDB = cfg.Redis.DB
		q, err := queue.NewRedisQueue(qcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		dlq, err := queue.NewRedisDeadLetterQueue(qcfg)
		if err != nil {
			return nil, nil, nil, err
		}
		worker := notify.NewWorker(q, dlq, logSender(), qcfg)
		return notify.NewQueueNotifier(q), worker, dlq, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
	}
}

// logSender is the delivery sink until an outbound channel (chat, webhook)
// is plugged in.
func logSender() notify.Sender {
	logger := utils.NewLogger("notify-out")
	return notify.SenderFunc(func(ctx context.Context, n *models.Notification) error {
		logger.Info("delivering notification",
			"kind", n.Kind,
			"subscriber", n.SubscriberID,
			"topic", n.TopicID)
		return nil
	})
}

// Shutdown stops the background pieces the router started.
func (d *Dependencies) Shutdown() {
	if d.Supervisor != nil {
		d.Supervisor.Stop()
	}
	if d.Worker != nil {
		d.Worker.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/health", deps.handleHealth)
	mux.HandleFunc("/auth/login", deps.handleLogin)

	mux.HandleFunc("/v1/wallet/deposit", deps.requireAuth(deps.handleDeposit))
	mux.HandleFunc("/v1/wallet/withdraw", deps.requireAuth(deps.handleWithdraw))
	mux.HandleFunc("/v1/wallet/balance", deps.requireAuth(deps.handleBalance))

	mux.HandleFunc("/v1/watch", deps.requireAuth(deps.handleWatch))
	mux.HandleFunc("/v1/unwatch", deps.requireAuth(deps.handleUnwatch))
	mux.HandleFunc("/v1/resume", deps.requireAuth(deps.handleResume))
	mux.HandleFunc("/v1/subscriptions", deps.requireAuth(deps.handleSubscriptions))

	mux.HandleFunc("/v1/authorize", deps.requireAuth(deps.handleAuthorize))

	mux.HandleFunc("/v1/usage", deps.requireAuth(deps.handleUsage))
	mux.HandleFunc("/v1/topics", deps.requireAuth(deps.handleTopics))
	mux.HandleFunc("/v1/scheduler/topics", deps.requireAuth(deps.handleSchedulerTopics))
	mux.HandleFunc("/v1/notifications/dead-letter", deps.requireAuth(deps.handleDeadLetter))
}
