package main

import (
	"database/sql"
	"fmt"

	"github.com/nnecfa/payments/internal/audit"
	"github.com/nnecfa/payments/internal/config"
	"github.com/nnecfa/payments/internal/database"
	"github.com/nnecfa/payments/internal/events"
	"github.com/nnecfa/payments/internal/services"
)

func loadConfig(path string) {
	config.InitViper(path)
	database.BindEnv()
}

func openDB() (*sql.DB, error) {
	db, err := database.InitDB()
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// workflow holds what the maintenance commands share. Close releases the
// database and the event broker.
type workflow struct {
	db         *sql.DB
	ledger     *services.PostgresLedger
	reconciler *services.Reconciler
	publisher  events.Publisher
	payments   *config.PaymentConfig
}

func openWorkflow() (*workflow, error) {
	eventsCfg := config.LoadEventsConfig()
	if err := eventsCfg.Validate(); err != nil {
		return nil, err
	}
	paymentCfg := config.LoadPaymentConfig()
	if err := paymentCfg.Validate(); err != nil {
		return nil, err
	}

	db, err := openDB()
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewPublisher(eventsCfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect events: %w", err)
	}

	ledger := services.NewPostgresLedger(db)
	reconciler := services.NewReconciler(ledger, services.NewPostgresAccountStore(db), publisher, audit.NewAuditLogger())

	return &workflow{
		db:         db,
		ledger:     ledger,
		reconciler: reconciler,
		publisher:  publisher,
		payments:   paymentCfg,
	}, nil
}

func (w *workflow) Close() {
	w.publisher.Close()
	w.db.Close()
}
