package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/nexusdex/params"
	"github.com/uhyunpark/nexusdex/pkg/abci"
	"github.com/uhyunpark/nexusdex/pkg/api"
	"github.com/uhyunpark/nexusdex/pkg/app/core/ledger"
	"github.com/uhyunpark/nexusdex/pkg/app/dex"
	"github.com/uhyunpark/nexusdex/pkg/chain"
	"github.com/uhyunpark/nexusdex/pkg/feed"
	"github.com/uhyunpark/nexusdex/pkg/storage"
	"github.com/uhyunpark/nexusdex/pkg/util"
)

func main() {
	// Priority: ENV > .env file > defaults
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("node_failed", zap.Error(err))
	}
}

func run(cfg params.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return err
	}

	// ---- State ----
	stateStore, err := ledger.NewStore(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		return err
	}
	defer stateStore.Close()

	blockStore, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "blocks"))
	if err != nil {
		return err
	}
	defer blockStore.Close()

	appCfg, err := dex.ConfigFromParams(cfg)
	if err != nil {
		return err
	}

	var gen *dex.TxGenerator
	if cfg.Loadgen.Enabled {
		gen, err = dex.NewTxGenerator(dex.GeneratorConfig{
			ChainID:   cfg.Node.ChainID,
			Accounts:  cfg.Loadgen.Accounts,
			Seed:      cfg.Loadgen.Seed,
			Base:      cfg.Loadgen.Base,
			Quote:     cfg.Loadgen.Quote,
			MidPrice:  cfg.Loadgen.MidPrice,
			Spread:    cfg.Loadgen.Spread,
			MinAmount: cfg.Loadgen.MinAmount,
			MaxAmount: cfg.Loadgen.MaxAmount,
		})
		if err != nil {
			return fmt.Errorf("loadgen: %w", err)
		}
		// Only read when the state store is empty.
		appCfg.Genesis.Balances = append(appCfg.Genesis.Balances,
			gen.GenesisBalances(cfg.Loadgen.BaseFunding, cfg.Loadgen.QuoteFunding)...)
	}

	app, err := dex.New(appCfg, dex.WithLogger(logger.Named("app")), dex.WithStore(stateStore))
	if err != nil {
		return err
	}

	// ---- API Server ----
	opts := []api.Option{api.WithLogger(logger.Named("api")), api.WithAllowedOrigins(cfg.API.AllowedOrigins...)}
	if cfg.API.TxLogFile != "" {
		txLog, err := storage.NewJournalFile(cfg.API.TxLogFile)
		if err != nil {
			return err
		}
		defer txLog.Close()
		opts = append(opts, api.WithTxLog(txLog))
	}
	apiServer := api.NewServer(app, opts...)

	// ---- Event feed (optional) ----
	var publisher *feed.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = feed.NewPublisher(cfg.Kafka, logger.Named("feed"))
		sugar.Infow("feed_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// ---- Block producer ----
	bridge := &abci.Bridge{
		App:        app,
		MaxTxBytes: cfg.Node.MaxBlockBytes,
		OnFinalize: func(chain.Block, abci.ResponseFinalizeBlock) {
			res := app.LastBlock()
			apiServer.PublishBlock(res)
			if publisher != nil {
				publisher.Enqueue(res)
			}
		},
	}
	producer, err := chain.NewProducer(chain.ProducerConfig{
		BlockTime: cfg.Node.BlockTime,
		Proposer:  cfg.Node.Proposer,
	}, blockStore, bridge, util.RealClock{}, logger.Named("chain"))
	if err != nil {
		return err
	}

	// The block store and the state store commit separately; refuse to run
	// when a crash left them at different heights.
	if head := producer.Head(); int64(head.Height) != app.Height() {
		return fmt.Errorf("block store at height %d but state at %d", head.Height, app.Height())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("node_starting",
		"chain_id", cfg.Node.ChainID,
		"height", app.Height(),
		"block_time", cfg.Node.BlockTime.String(),
		"api", cfg.API.Addr,
		"loadgen", cfg.Loadgen.Enabled)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return producer.Run(ctx) })
	g.Go(func() error { return apiServer.Start(ctx, cfg.API.Addr) })
	if publisher != nil {
		g.Go(func() error { return publisher.Run(ctx) })
	}
	if gen != nil {
		g.Go(func() error {
			dex.RunTxFeeder(ctx, app, gen, dex.TxFeederConfig{
				BatchSize: cfg.Loadgen.BatchSize,
				Interval:  cfg.Loadgen.Interval,
			}, logger.Named("loadgen"))
			return nil
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	sugar.Infow("node_stopped", "height", app.Height(), "apphash", app.AppHash().Hex())
	return err
}
