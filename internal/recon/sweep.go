package recon

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"bundlemart/internal/gateway"
	"bundlemart/internal/transaction"
)

// SweepConfig holds stale-pending sweep settings. Age is a Postgres
// interval string.
type SweepConfig struct {
	Interval time.Duration `envconfig:"STALE_SWEEP_INTERVAL" default:"10m"`
	Age      string        `envconfig:"STALE_SWEEP_AGE" default:"30 minutes"`
	Batch    int           `envconfig:"STALE_SWEEP_BATCH" default:"100"`
}

// StalePendingLister lists pending transactions older than the cutoff.
type StalePendingLister interface {
	ListStalePending(ctx context.Context, olderThan string, limit int) ([]*transaction.Transaction, error)
}

// GatewayVerifier fetches the gateway's authoritative view of a
// transaction by reference.
type GatewayVerifier interface {
	Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

// Sweeper reconciles pending transactions whose webhook never arrived.
// It asks the gateway for the authoritative state: paid transactions go
// through the same fraud gate and completion path as a webhook would,
// abandoned ones are failed, and anything the gateway still reports as
// in flight is left alone for the next pass.
type Sweeper struct {
	cfg      SweepConfig
	service  *Service
	lister   StalePendingLister
	verifier GatewayVerifier
	logger   *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(cfg SweepConfig, service *Service, lister StalePendingLister, verifier GatewayVerifier, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		service:  service,
		lister:   lister,
		verifier: verifier,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("stale-pending sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs one pass over the current batch of stale transactions.
// Per-transaction failures are logged and skipped so one bad reference
// cannot starve the rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) error {
	txns, err := s.lister.ListStalePending(ctx, s.cfg.Age, s.cfg.Batch)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		result, err := s.verifier.Verify(ctx, txn.Reference)
		if err != nil {
			s.logger.Warn("verifying stale transaction", "reference", txn.Reference, "error", err)
			continue
		}

		switch result.Status {
		case gateway.VerifyStatusSuccess:
			if _, err := s.service.reconcile(ctx, txn, result.AmountMinor, strconv.FormatInt(result.ID, 10)); err != nil {
				s.logger.Warn("reconciling stale transaction", "reference", txn.Reference, "error", err)
			}

		case gateway.VerifyStatusFailed, gateway.VerifyStatusAbandoned:
			meta := map[string]string{
				transaction.MetaNote: "gateway reported " + result.Status,
			}
			if _, err := s.service.store.FailTransaction(ctx, txn, meta); err != nil {
				s.logger.Warn("failing stale transaction", "reference", txn.Reference, "error", err)
				continue
			}
			s.logger.Info("stale transaction failed",
				"reference", txn.Reference,
				"gateway_status", result.Status,
			)

		default:
			// Still in flight at the gateway; the next pass will see it.
		}
	}

	return nil
}
