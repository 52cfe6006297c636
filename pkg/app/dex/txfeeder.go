package dex

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/nexusdex/pkg/app/core/mempool"
)

// TxFeederConfig controls transaction generation rate
type TxFeederConfig struct {
	BatchSize int           // Orders per batch
	Interval  time.Duration // How often to generate batches
}

// RunTxFeeder submits generated orders to the app until ctx is done. Nonces
// come from committed state, so an order whose predecessor is still pending
// may fail with a nonce mismatch; that is expected under load.
func RunTxFeeder(ctx context.Context, app *App, gen *TxGenerator, cfg TxFeederConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Sugar()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	start := time.Now()
	submitted, rejected := 0, 0
	nonceOf := func(addr common.Address) uint64 { return app.Account(addr).Nonce }

	log.Infow("txfeeder_started", "batch", cfg.BatchSize, "interval", cfg.Interval.String(), "accounts", len(gen.Accounts()))
	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(start)
			log.Infow("txfeeder_stopped",
				"submitted", submitted,
				"rejected", rejected,
				"rate", float64(submitted)/elapsed.Seconds())
			return
		case <-ticker.C:
			for i := 0; i < cfg.BatchSize; i++ {
				raw, err := gen.NextOrder(nonceOf)
				if err != nil {
					log.Errorw("txfeeder_sign_failed", "err", err)
					continue
				}
				if _, err := app.SubmitTx(raw); err != nil {
					rejected++
					if !errors.Is(err, mempool.ErrDuplicate) {
						log.Debugw("txfeeder_rejected", "err", err)
					}
					continue
				}
				submitted++
			}
		}
	}
}
