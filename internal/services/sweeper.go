package services

import (
	"context"
	"log"
	"time"

	"github.com/nnecfa/payments/internal/config"
)

// Sweeper runs the background jobs: expiring unresolved pushes, confirming
// paid receipts whose reconciliation failed after the callback was acked, and
// re-applying account flags that failed after the ledger write.
type Sweeper struct {
	ledger     Ledger
	reconciler *Reconciler
	cfg        *config.PaymentConfig
	now        func() time.Time
}

func NewSweeper(ledger Ledger, reconciler *Reconciler, cfg *config.PaymentConfig) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		reconciler: reconciler,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ExpireStale marks Pending requests older than the expiry window as Expired.
// Expired is bookkeeping only; the prompt on the phone times out on its own.
func (s *Sweeper) ExpireStale(ctx context.Context) ([]string, error) {
	cutoff := s.now().Add(-s.cfg.ExpiryWindow)
	expired, err := s.ledger.ExpireStale(ctx, cutoff)
	if err != nil {
		log.Printf("[SWEEPER] Expiry sweep failed: %v", err)
		return nil, err
	}

	if len(expired) > 0 {
		log.Printf("[SWEEPER] Expired %d pending requests created before %s", len(expired), cutoff.Format(time.RFC3339))
	}
	for _, id := range expired {
		s.reconciler.audit.LogRequestOutcome(id, "", "Expired", "no resolution within expiry window")
	}
	return expired, nil
}

// RepairFlags re-applies account flags for confirmed payments that were
// recorded but never projected onto the account.
func (s *Sweeper) RepairFlags(ctx context.Context) (int, error) {
	pending, err := s.ledger.ListUnappliedFlags(ctx, s.cfg.RepairBatchSize)
	if err != nil {
		log.Printf("[SWEEPER] Flag repair listing failed: %v", err)
		return 0, err
	}

	repaired := 0
	for i := range pending {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		if s.reconciler.ApplyAccountFlag(ctx, &pending[i]) {
			repaired++
		}
	}

	if len(pending) > 0 {
		log.Printf("[SWEEPER] Repaired %d of %d account flags", repaired, len(pending))
	}
	return repaired, nil
}

// ReconcileReceipts retries reconciliation for completed pushes whose receipt
// has no confirmed payment. Permanent rejections are recorded by the
// reconciler and drop out of the next listing.
func (s *Sweeper) ReconcileReceipts(ctx context.Context) (int, error) {
	pending, err := s.ledger.ListUnreconciledReceipts(ctx, s.cfg.RepairBatchSize)
	if err != nil {
		log.Printf("[SWEEPER] Receipt listing failed: %v", err)
		return 0, err
	}

	reconciled := 0
	for i := range pending {
		if ctx.Err() != nil {
			return reconciled, ctx.Err()
		}
		req := &pending[i]
		if _, err := s.reconciler.ReconcileRequest(ctx, req, req.Amount, s.cfg.DefaultAmount); err == nil {
			reconciled++
		}
	}

	if len(pending) > 0 {
		log.Printf("[SWEEPER] Reconciled %d of %d paid receipts", reconciled, len(pending))
	}
	return reconciled, nil
}

// Run executes every job each SweepInterval until ctx is cancelled. A
// non-positive interval disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		log.Printf("[SWEEPER] Disabled, interval=%s", s.cfg.SweepInterval)
		return
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	log.Printf("[SWEEPER] Started, interval=%s expiry=%s", s.cfg.SweepInterval, s.cfg.ExpiryWindow)
	for {
		select {
		case <-ctx.Done():
			log.Println("[SWEEPER] Stopped")
			return
		case <-ticker.C:
			s.ExpireStale(ctx)
			s.ReconcileReceipts(ctx)
			s.RepairFlags(ctx)
		}
	}
}
