// Package app assembles the services shared by the API, worker and sweeper binaries.
package app

import (
	"fmt"

	"gorm.io/gorm"

	"famfin/internal/amqp"
	"famfin/internal/config"
	"famfin/internal/database"
	"famfin/internal/events"
	"famfin/internal/logger"
	"famfin/internal/services"
)

// Services holds one instance of every service over a single database.
type Services struct {
	Periods      services.SourcePeriodServicer
	Materializer services.MaterializerServicer
	Aggregator   services.AggregatorServicer
	Reconciler   services.ReconcileServicer
	Obligations  services.ObligationServicer
	Projections  services.ProjectionServicer
	Transactions services.TransactionServicer
	Feed         services.FeedServicer
	Audit        services.AuditServicer
}

// NewServices wires the services. Writes announce their changes through publisher.
func NewServices(db *gorm.DB, cfg *config.Config, publisher events.Publisher) *Services {
	s := &Services{}
	s.Periods = services.NewSourcePeriodService(db, cfg.BatchSize)
	s.Materializer = services.NewMaterializerService(db, s.Periods, cfg)
	s.Aggregator = services.NewAggregatorService(db, cfg)
	s.Reconciler = services.NewReconcileService(db, s.Aggregator)
	s.Obligations = services.NewObligationService(db, s.Periods, publisher)
	s.Projections = services.NewProjectionService(db, s.Obligations)
	s.Transactions = services.NewTransactionService(db, s.Obligations, s.Materializer, publisher)
	s.Feed = services.NewFeedService(db, s.Transactions)
	s.Audit = services.NewAuditService(db)
	return s
}

// EventHandler returns the handler that reacts to change notifications.
func (s *Services) EventHandler(bestEffort bool) *services.EventHandler {
	return services.NewEventHandler(s.Materializer, s.Aggregator, s.Reconciler, bestEffort)
}

// OpenDatabase connects and migrates the configured database.
func OpenDatabase(cfg *config.Config) (*database.Manager, error) {
	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.RunMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	return dbManager, nil
}

// Bus is the configured change-notification transport.
type Bus struct {
	Publisher events.Publisher
	client    *amqp.Client
}

// NewBus connects to the broker when the event bus is "amqp". Otherwise it returns an
// in-process dispatcher; call Subscribe once the services exist.
func NewBus(cfg *config.Config) (*Bus, error) {
	if cfg.EventBus != "amqp" {
		logger.Get().Info("Change notifications run inline")
		return &Bus{Publisher: events.NewDispatcher()}, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the event bus: %w", err)
	}
	logger.Get().Infow("Change notifications go to the broker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return &Bus{Publisher: client, client: client}, nil
}

// Subscribe attaches h to an inline bus. A broker-backed bus is consumed by the worker
// instead, so the call does nothing there.
func (b *Bus) Subscribe(h events.Handler) {
	if d, ok := b.Publisher.(*events.Dispatcher); ok {
		d.Subscribe(h)
	}
}

// Client returns the broker client, or nil for an inline bus.
func (b *Bus) Client() *amqp.Client {
	return b.client
}

// Close releases the broker connection, if any.
func (b *Bus) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
