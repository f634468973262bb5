package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/perpledger/params"
	"github.com/uhyunpark/perpledger/pkg/api"
	"github.com/uhyunpark/perpledger/pkg/core/funding"
	"github.com/uhyunpark/perpledger/pkg/core/gateway"
	"github.com/uhyunpark/perpledger/pkg/core/guard"
	"github.com/uhyunpark/perpledger/pkg/core/ledger"
	"github.com/uhyunpark/perpledger/pkg/core/oracle"
	"github.com/uhyunpark/perpledger/pkg/events"
	"github.com/uhyunpark/perpledger/pkg/metrics"
	"github.com/uhyunpark/perpledger/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Persistence ----
	store, err := ledger.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_init_failed", "err", err, "path", cfg.Node.DBPath)
	}
	defer store.Close()

	// ---- Oracle ----
	// Prices arrive via the admin REST endpoint; the adapter enforces the
	// staleness bound on every read.
	source := oracle.NewPostedSource()
	priceFeed := oracle.NewAdapter(source, int64(cfg.Market.PriceStaleness.Seconds()))

	// ---- Market state ----
	fundingCtl := funding.NewController(int64(cfg.Market.FundingInterval.Seconds()))

	// ---- Collateral gateway ----
	vault := gateway.NewVault()

	// ---- Access control ----
	roles := guard.NewStaticRoles()
	for _, addr := range cfg.Accounts.Admins {
		roles.Grant(guard.RoleAdmin, addr)
	}
	for _, addr := range cfg.Accounts.Keepers {
		roles.Grant(guard.RoleKeeper, addr)
	}
	pause := guard.NewPause()
	resolver := guard.NewResolver()
	for _, addr := range cfg.Accounts.Forwarders {
		resolver.RegisterForwarder(addr)
	}

	// ---- Observability ----
	m := metrics.New(cfg.Node.MetricsNamespace)
	hub := api.NewHub(sugar)
	emitter := events.Fanout{events.NewZapEmitter(sugar), hub}

	// ---- Ledger ----
	led, err := ledger.New(ledger.Deps{
		Store:   store,
		Oracle:  priceFeed,
		Funding: fundingCtl,
		Gateway: vault,
		Roles:   roles,
		Pause:   pause,
		Emitter: emitter,
		Metrics: m,
		Clock:   util.RealClock{},
		Logger:  sugar,
	})
	if err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(api.Deps{
		Ledger:   led,
		Funding:  fundingCtl,
		Source:   source,
		Vault:    vault,
		Roles:    roles,
		Pause:    pause,
		Resolver: resolver,
		Emitter:  emitter,
		Metrics:  m,
		Clock:    util.RealClock{},
		Hub:      hub,
		Logger:   sugar,
	})

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"api_addr", cfg.Node.APIAddr,
		"db_path", cfg.Node.DBPath,
		"funding_interval", cfg.Market.FundingInterval,
		"price_staleness", cfg.Market.PriceStaleness,
		"admins", len(cfg.Accounts.Admins),
		"keepers", len(cfg.Accounts.Keepers))

	// Market snapshot logging loop
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			return
		case <-ticker.C:
			longs, shorts := fundingCtl.OpenInterest()
			sugar.Infow("market_snapshot",
				"total_longs", longs,
				"total_shorts", shorts,
				"funding_rate", fundingCtl.Rate(),
				"paused", pause.IsPaused())
		}
	}
}
