package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nnecfa/payments/internal/config"
	"github.com/nnecfa/payments/internal/mpesa"
	"github.com/nnecfa/payments/internal/services"
	"github.com/spf13/cobra"
)

var queryStatusCmd = &cobra.Command{
	Use:   "query-status [checkoutRequestId]",
	Short: "Ask M-Pesa for the outcome of a push and record it",
	Long: `Query the provider for a push that never received a callback. A final
answer is written to the ledger; a successful payment still has to be
confirmed with its transaction code.

Example:
  paymentctl query-status ws_CO_01032024123000123456`,
	Args: cobra.ExactArgs(1),
	RunE: runQueryStatus,
}

func runQueryStatus(cmd *cobra.Command, args []string) error {
	mpesaCfg := config.LoadMpesaConfig()
	if err := mpesaCfg.Validate(); err != nil {
		return err
	}

	w, err := openWorkflow()
	if err != nil {
		return err
	}
	defer w.Close()

	gateway := mpesa.NewClient(mpesaCfg, mpesa.Options{
		RefreshMargin: w.payments.TokenRefreshMargin,
		QueryTimeout:  w.payments.StatusQueryTimeout,
	})
	service := services.NewPaymentService(gateway, w.ledger, w.reconciler, nil, nil, w.payments)

	// An empty account id skips the ownership check.
	req, err := service.QueryStatus(cmd.Context(), args[0], "")
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(req)
}
