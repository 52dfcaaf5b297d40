package cmd

import (
	"context"
	"fmt"
	"strconv"

	"poolbet/config"
	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
	"poolbet/repository"

	log "github.com/sirupsen/logrus"
)

// ListReconciliation logs every open reconciliation item and returns them
func ListReconciliation(ctx context.Context, repo interfaces.ReconciliationRepository) ([]*entities.ReconciliationItem, error) {
	items, err := repo.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation items: %w", err)
	}
	if len(items) == 0 {
		log.Info("No open reconciliation items")
		return items, nil
	}
	for _, item := range items {
		fields := log.Fields{
			"id":      item.ID,
			"kind":    item.Kind,
			"user_id": item.UserID,
			"amount":  item.Amount,
			"reason":  item.Reason,
			"created": item.CreatedAt,
		}
		if item.PoolID != nil {
			fields["pool_id"] = *item.PoolID
		}
		if item.TransactionID != nil {
			fields["transaction_id"] = *item.TransactionID
		}
		log.WithFields(fields).Warn("Open reconciliation item")
	}
	return items, nil
}

// Reconcile runs `reconciliation list` or `reconciliation resolve <id>` against the configured database
func Reconcile(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: poolbet reconciliation [list|resolve <id>]")
	}

	cfg := config.Get()
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	repo := repository.NewReconciliationRepository(db)

	switch args[0] {
	case "list":
		_, err := ListReconciliation(ctx, repo)
		return err
	case "resolve":
		if len(args) < 2 {
			return fmt.Errorf("usage: poolbet reconciliation resolve <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid reconciliation id %q: %w", args[1], err)
		}
		if err := repo.Resolve(ctx, id); err != nil {
			return fmt.Errorf("failed to resolve reconciliation item %d: %w", id, err)
		}
		log.WithField("id", id).Info("Reconciliation item resolved")
		return nil
	default:
		return fmt.Errorf("unknown reconciliation command: %s", args[0])
	}
}
