// Command xquery is the indexer/processor binary: one process per
// configured exchange, wiring the scan+compute controller against a
// JSON-RPC node and a relational store, matching the reference design's "one
// entry point per configured exchange", using a node-binary-style
// main.go shape (urfave/cli App, flags bound to the same environment
// variables the Config struct reads).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"

	"github.com/rikublock/xquery2/internal/cache"
	"github.com/rikublock/xquery2/internal/config"
	"github.com/rikublock/xquery2/internal/controller"
	"github.com/rikublock/xquery2/internal/event"
	"github.com/rikublock/xquery2/internal/event/processor"
	"github.com/rikublock/xquery2/internal/metrics"
	"github.com/rikublock/xquery2/internal/rpcclient"
	"github.com/rikublock/xquery2/internal/state"
	"github.com/rikublock/xquery2/internal/store"
	"github.com/rikublock/xquery2/internal/xlog"
)

var (
	exchangeFlag = cli.StringFlag{
		Name:   "exchange",
		Usage:  "exchange strategy to run: pangolin or pegasys",
		EnvVar: "XQ_EXCHANGE",
		Value:  "pangolin",
	}
	factoryFlag = cli.StringFlag{
		Name:   "factory",
		Usage:  "factory contract address for PairCreated discovery",
		EnvVar: "XQ_FACTORY_ADDRESS",
	}
	routerFlag = cli.StringFlag{
		Name:   "router",
		Usage:  "router contract address (Swap beneficiary rewrite, legacy router filter)",
		EnvVar: "XQ_ROUTER_ADDRESS",
	}
	startBlockFlag = cli.Uint64Flag{
		Name:   "start-block",
		Usage:  "first block to scan when no indexer cursor exists yet",
		EnvVar: "XQ_START_BLOCK",
	}
	endBlockFlag = cli.Uint64Flag{
		Name:   "end-block",
		Usage:  "last block to scan; 0 means the chain tip at startup (the bound is not advanced afterwards)",
		EnvVar: "XQ_END_BLOCK",
	}
	chunkFlag = cli.Uint64Flag{
		Name:   "chunk-size",
		Usage:  "initial eth_getLogs block window",
		EnvVar: "XQ_CHUNK_SIZE",
		Value:  2000,
	}
	maxChunkFlag = cli.Uint64Flag{
		Name:   "max-chunk-size",
		Usage:  "upper bound on the adaptive eth_getLogs block window",
		EnvVar: "XQ_MAX_CHUNK_SIZE",
		Value:  2048,
	}
	targetSleepFlag = cli.DurationFlag{
		Name:   "target-sleep",
		Usage:  "target wall-clock duration of one scan+compute cycle",
		EnvVar: "XQ_TARGET_SLEEP",
		Value:  15 * time.Second,
	}
	legacyRouterFlag = cli.BoolFlag{
		Name:   "legacy-router",
		Usage:  "run the router-style legacy event filter/indexer instead of the factory-based one",
		EnvVar: "XQ_LEGACY_ROUTER",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:   "metrics-addr",
		Usage:  "listen address for the Prometheus /metrics endpoint; empty disables it",
		EnvVar: "XQ_METRICS_ADDR",
		Value:  ":9090",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "xquery"
	app.Usage = "Uniswap-v2-style DEX indexer and post-processor"
	app.Flags = []cli.Flag{
		exchangeFlag,
		factoryFlag,
		routerFlag,
		startBlockFlag,
		endBlockFlag,
		chunkFlag,
		maxChunkFlag,
		targetSleepFlag,
		legacyRouterFlag,
		metricsAddrFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "xquery:", err)
		os.Exit(1)
	}
}

// run is the single App.Action: it acquires the single-instance lock,
// opens the database/cache/RPC handles, builds the exchange's
// filter/indexer/stages, and blocks in the controller's scan+compute
// loop until a shutdown signal arrives, matching the reference design's exit-code
// contract (0 success, 1 init failure or duplicate instance).
func run(c *cli.Context) error {
	cfg := config.Load()
	if err := xlog.Init(cfg.LogLevel); err != nil {
		return cli.NewExitError(fmt.Sprintf("log init failed: %v", err), 1)
	}
	log := xlog.Named("main")

	exchange := event.Exchange(c.String(exchangeFlag.Name))

	lockPath := fmt.Sprintf("%s/xquery.%s.pid", cfg.LockDir, exchange)
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("lock acquisition failed: %v", err), 1)
	}
	if !locked {
		return cli.NewExitError(fmt.Sprintf("another instance already holds %s", lockPath), 1)
	}
	defer lock.Unlock()

	db, pgxPool, err := openDatabase(cfg)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("database init failed: %v", err), 1)
	}
	defer db.Close()
	defer pgxPool.Close()

	if err := db.AutoMigrate(store.AllModels()...).Error; err != nil {
		return cli.NewExitError(fmt.Sprintf("schema migration failed: %v", err), 1)
	}

	cacheHandle := buildCache(cfg)
	defer cacheHandle.Flush()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	rpc := rpcclient.NewClient(cfg.APIURL, httpClient, rpcclient.DefaultRetryConfig())
	chain := rpcclient.NewChainFetcher(rpc)
	tokenFetcher, err := rpcclient.NewTokenFetcher(rpc)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("token fetcher init failed: %v", err), 1)
	}

	factory := common.HexToAddress(c.String(factoryFlag.Name))
	router := common.HexToAddress(c.String(routerFlag.Name))
	exchangeCfg := exchangeConfig(exchange, factory, router)

	repo, err := store.NewRepository(db, tokenFetcher, 4096)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("repository init failed: %v", err), 1)
	}

	var filter event.EventFilter
	var newIndexer func() event.EventIndexer
	if c.Bool(legacyRouterFlag.Name) {
		routerFilter, ferr := event.NewRouterFilter(rpc, router)
		if ferr != nil {
			return cli.NewExitError(fmt.Sprintf("legacy router filter init failed: %v", ferr), 1)
		}
		filter = routerFilter
		newIndexer = func() event.EventIndexer {
			return event.NewRouterIndexer(repo, chain, chain, router, cfg.PairLoadTimeout)
		}
	} else {
		exchangeFilter, ferr := event.NewExchangeFilter(rpc, factory, nil)
		if ferr != nil {
			return cli.NewExitError(fmt.Sprintf("filter init failed: %v", ferr), 1)
		}
		filter = exchangeFilter
		newIndexer = func() event.EventIndexer {
			return event.NewExchangeIndexer(repo, chain, chain, router, cfg.PairLoadTimeout)
		}
	}

	stages := processor.NewStages(db, exchange, exchangeCfg, decimal.NewFromInt(1))

	stateStore := state.NewStore(db)
	ctrl := controller.New(chain, db, pgxPool, stateStore, cfg.NumWorkers, newIndexer, stages, log.Named("controller"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnw("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
	}

	ctrl.Start(ctx, cancel)

	runCfg := controller.RunConfig{
		Start:        c.Uint64(startBlockFlag.Name),
		End:          c.Uint64(endBlockFlag.Name),
		SafetyBlocks: cfg.SafetyBlocks,
		Filter:       filter,
		Chunk:        c.Uint64(chunkFlag.Name),
		MaxChunk:     c.Uint64(maxChunkFlag.Name),
		TargetSleep:  c.Duration(targetSleepFlag.Name),
	}
	if runCfg.End == 0 {
		latest, err := chain.FetchLatestBlockNumber(ctx)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("latest block fetch failed: %v", err), 1)
		}
		runCfg.End = latest
	}

	runErr := ctrl.Run(ctx, runCfg)
	if stopErr := ctrl.Stop(); stopErr != nil && runErr == nil {
		runErr = stopErr
	}
	if runErr != nil {
		return cli.NewExitError(fmt.Sprintf("run failed: %v", runErr), 1)
	}
	log.Info("shutdown complete")
	return nil
}

// openDatabase opens both database handles the pipeline needs: a gorm
// *DB for the entity repository and the coordinator's per-row merges,
// and a pgxpool.Pool for the coordinator's batched Bundle-row UPSERT
// path  , sharing one DSN.
func openDatabase(cfg *config.Config) (*gorm.DB, *pgxpool.Pool, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s search_path=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUsername, cfg.DBPassword, cfg.DBDatabase, cfg.DBSchema)

	db, err := gorm.Open("postgres", dsn)
	if err != nil {
		return nil, nil, err
	}
	db.LogMode(cfg.DBDebug)

	pgxPool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, pgxPool, nil
}

func buildCache(cfg *config.Config) cache.Cache {
	if cfg.RedisHost == "" {
		return cache.NewDummy()
	}
	addr := fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort)
	return cache.NewRedis(addr, cfg.RedisPassword, cfg.RedisDatabase)
}

// exchangeConfig assembles the per-exchange wiring named in
// the expanded design notes. Native-price tracked pairs are deployment addresses,
// not pipeline architecture, so they are left empty here; operators
// supply them via a future config-file layer (Open Question, noted in
// DESIGN.md) rather than compiled-in constants.
func exchangeConfig(exchange event.Exchange, factory, router common.Address) event.ExchangeConfig {
	cfg := event.ExchangeConfig{
		Name:           exchange,
		FactoryAddress: factory,
		RouterAddress:  router,
	}
	if exchange == event.ExchangePangolin {
		cfg.MigrationBlocks = event.PangolinMigrationBlocks
	}
	return cfg
}
