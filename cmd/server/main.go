package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evergrid/creditbook/config"
	"github.com/evergrid/creditbook/pkg/api"
	"github.com/evergrid/creditbook/pkg/escrow"
	postgres_wrapper "github.com/evergrid/creditbook/pkg/infra/postgres"
	redis_wrapper "github.com/evergrid/creditbook/pkg/infra/redis"
	"github.com/evergrid/creditbook/pkg/journal"
	"github.com/evergrid/creditbook/pkg/logging"
	"github.com/evergrid/creditbook/pkg/market"
	"github.com/evergrid/creditbook/pkg/orderbook"
	"github.com/evergrid/creditbook/pkg/stream"
	"github.com/evergrid/creditbook/pkg/token"
	"github.com/redis/go-redis/v9"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config-file", "./config/config.yaml", "Specify config file path")
	flag.Parse()

	go func() {
		http.ListenAndServe("localhost:6060", nil)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	log := logging.NewLogger(logging.INFO)
	defer log.Sync() // nolint

	// asset ledgers; the engine only ever checks and consumes approvals
	stablecoin := token.NewStablecoin()
	credit := token.NewCreditToken()
	custody := cfg.CustodyAccount
	if custody == "" {
		custody = "custody"
	}
	gateway := escrow.NewGateway(stablecoin, credit, custody, log)

	j := journal.NewJournal()

	var store orderbook.Store
	if cfg.LedgerDB != nil {
		db := postgres_wrapper.InitPostgresWithBackoff(cfg.LedgerDB)
		store = orderbook.NewSQLStore(db)

		flushInterval := 500 * time.Millisecond
		if cfg.Journal != nil && cfg.Journal.FlushIntervalMiliseconds > 0 {
			flushInterval = time.Duration(cfg.Journal.FlushIntervalMiliseconds) * time.Millisecond
		}
		writer := journal.NewWriter(journal.NewOrderEventSQLRepo(db), j, flushInterval, log)
		go writer.Run(ctx)
	} else {
		store = orderbook.NewMemoryStore()
	}

	var cache *redis.Client
	if cfg.Redis != nil {
		cache, err = redis_wrapper.InitRedis(cfg.Redis)
		if err != nil {
			panic(err)
		}
	}

	engine := orderbook.NewEngine(store, gateway, j, log)

	window := uint64(500)
	cacheTTL := 2 * time.Second
	if cfg.Market != nil {
		if cfg.Market.ScanWindow > 0 {
			window = cfg.Market.ScanWindow
		}
		if cfg.Market.CacheTTLSeconds > 0 {
			cacheTTL = time.Duration(cfg.Market.CacheTTLSeconds) * time.Second
		}
	}
	mkt := market.NewService(store, cache, window, cacheTTL, log)

	broadcaster := stream.NewBroadcaster(j, log)
	go broadcaster.Run(ctx)

	handler := api.NewHandler(engine, gateway, mkt, stablecoin, credit)
	devFaucet := cfg.LedgerDB == nil
	server := api.NewServer(handler, broadcaster.Handle, devFaucet)

	addr := ":8080"
	if cfg.Server != nil && cfg.Server.Addr != "" {
		addr = cfg.Server.Addr
	}
	httpServer := &http.Server{Addr: addr, Handler: server.Router}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	fmt.Printf("creditbook listening on %s. Press Ctrl+C to exit.\n", addr)

	<-sigs
	fmt.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	cancel()

	fmt.Println("Exited cleanly.")
}
