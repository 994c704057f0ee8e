package commands

import (
	"fmt"
	"time"

	"github.com/wonny/mtfscan/backend/internal/market/binance"
	"github.com/wonny/mtfscan/backend/internal/notify"
	"github.com/wonny/mtfscan/backend/internal/scanner"
	"github.com/wonny/mtfscan/backend/internal/scheduler"
	"github.com/wonny/mtfscan/backend/internal/scheduler/jobs"
	"github.com/wonny/mtfscan/backend/internal/selection"
	"github.com/wonny/mtfscan/backend/internal/signals"
	"github.com/wonny/mtfscan/backend/internal/stats"
	"github.com/wonny/mtfscan/backend/internal/store/postgres"
	"github.com/wonny/mtfscan/backend/internal/subscription"
	"github.com/wonny/mtfscan/backend/internal/telegram"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/database"
	"github.com/wonny/mtfscan/backend/pkg/httputil"
	"github.com/wonny/mtfscan/backend/pkg/logger"
	"github.com/wonny/mtfscan/backend/pkg/redis"
)

// app bundles the wired components shared by the commands.
type app struct {
	cfg    *config.Config
	logger *logger.Logger
	db     *database.DB
	redis  *redis.Client
	store  *postgres.Store

	prices      *redis.PriceCache
	market      *binance.Client
	stream      *binance.PriceStream
	messenger   *telegram.Messenger
	manager     *signals.Manager
	deriver     *signals.Deriver
	distributor *notify.Distributor
	scanner     *scanner.Scanner
	subs        *subscription.Service
	stats       *stats.Service
}

// newApp loads configuration and wires the component graph.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	store := postgres.New(db.Pool)
	prices := redis.NewPriceCache(redisClient, "mtfscan", 2*time.Minute)

	httpClient := httputil.New(log, cfg.Binance.Timeout)
	market := binance.New(cfg, log, httpClient, prices)
	stream := binance.NewPriceStream(cfg, log, prices)
	messenger := telegram.New(cfg, log, httputil.New(log, 15*time.Second))

	manager := signals.NewManager(cfg, log, store.Signals(), market)
	deriver := signals.NewDeriver(log, store.SubscriberSignals())
	distributor := notify.New(cfg, log, store.Subscribers(), store.SubscriberSignals(), deriver, messenger)
	subs := subscription.NewService(cfg, log, store.Subscribers(), store.Referrals())
	statsSvc := stats.NewService(store.Results())

	sc := scanner.New(cfg, log, market, selection.NewRanker(log), manager, distributor)

	return &app{
		cfg:         cfg,
		logger:      log,
		db:          db,
		redis:       redisClient,
		store:       store,
		prices:      prices,
		market:      market,
		stream:      stream,
		messenger:   messenger,
		manager:     manager,
		deriver:     deriver,
		distributor: distributor,
		scanner:     sc,
		subs:        subs,
		stats:       statsSvc,
	}, nil
}

// newScheduler wires the maintenance jobs into a fresh scheduler.
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.logger)

	register := []scheduler.Job{
		jobs.NewPlanExpiryJob(a.subs, a.logger, a.cfg.Maintenance.BatchSize),
		jobs.NewSignalPurgeJob(a.store.Signals(), a.store.SubscriberSignals(), a.logger, a.cfg.Signals.BaseRetentionDays, a.cfg.Signals.UserRetentionDays),
		jobs.NewHealthCheckJob(a.db, a.logger),
	}
	for _, job := range register {
		if err := sched.Register(job); err != nil {
			return nil, fmt.Errorf("register job %s: %w", job.Name(), err)
		}
	}
	return sched, nil
}

// close releases the app's connections.
func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
