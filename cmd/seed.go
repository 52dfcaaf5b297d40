package cmd

import (
	"context"
	"fmt"
	"time"

	"poolbet/config"
	"poolbet/database"
	"poolbet/domain/entities"
	"poolbet/domain/interfaces"
	"poolbet/repository"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

const (
	seedEntryFee   = 100
	seedMaxPlayers = 10
	seedMinNumber  = 1
	seedMaxNumber  = 10
	seedDuration   = 15 * time.Minute
)

var seedVariants = []entities.GameVariant{
	entities.GameVariantBluff,
	entities.GameVariantTopSpot,
	entities.GameVariantJackpot,
}

// SeedPools creates one waiting pool per game variant ending after seedDuration
func SeedPools(ctx context.Context, pools interfaces.PoolRepository, now time.Time) ([]*entities.Pool, error) {
	created := make([]*entities.Pool, 0, len(seedVariants))
	for _, variant := range seedVariants {
		pool := &entities.Pool{
			Name:       fmt.Sprintf("%s %s", variant, now.Format("15:04")),
			Variant:    variant,
			EntryFee:   seedEntryFee,
			MaxPlayers: seedMaxPlayers,
			Status:     entities.PoolStatusWaiting,
			MinNumber:  seedMinNumber,
			MaxNumber:  seedMaxNumber,
			EndsAt:     now.Add(seedDuration),
		}
		if err := pools.Create(ctx, pool); err != nil {
			return created, fmt.Errorf("failed to seed %s pool: %w", variant, err)
		}
		log.WithFields(log.Fields{
			"pool_id": pool.ID,
			"variant": variant,
			"ends_at": pool.EndsAt,
		}).Info("Seeded pool")
		created = append(created, pool)
	}
	return created, nil
}

// Seed connects to the configured database and seeds pools
func Seed(ctx context.Context) error {
	cfg := config.Get()

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// all variants or none
	return db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := SeedPools(ctx, repository.NewPoolRepositoryScoped(tx), time.Now().UTC())
		return err
	})
}
