package main

import (
	"fmt"

	"github.com/nnecfa/payments/internal/services"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending pushes older than the expiry window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkflow()
		if err != nil {
			return err
		}
		defer w.Close()

		expired, err := services.NewSweeper(w.ledger, w.reconciler, w.payments).ExpireStale(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Printf("Expired %d request(s)\n", len(expired))
		for _, id := range expired {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}

var repairFlagsCmd = &cobra.Command{
	Use:   "repair-flags",
	Short: "Re-apply account flags for confirmed payments that never reached the account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkflow()
		if err != nil {
			return err
		}
		defer w.Close()

		repaired, err := services.NewSweeper(w.ledger, w.reconciler, w.payments).RepairFlags(cmd.Context())
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}

		fmt.Printf("Repaired %d account flag(s)\n", repaired)
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Confirm paid receipts whose reconciliation failed after the callback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkflow()
		if err != nil {
			return err
		}
		defer w.Close()

		reconciled, err := services.NewSweeper(w.ledger, w.reconciler, w.payments).ReconcileReceipts(cmd.Context())
		if err != nil {
			return fmt.Errorf("reconcile failed: %w", err)
		}

		fmt.Printf("Reconciled %d receipt(s)\n", reconciled)
		return nil
	},
}
