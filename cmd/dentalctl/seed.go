package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
)

var specialties = []string{
	"General Dentistry",
	"Orthodontics",
	"Endodontics",
	"Periodontics",
	"Prosthodontics",
	"Pediatric Dentistry",
	"Oral Surgery",
}

// serviceCatalog is the base price list; seeding adds a little noise to prices.
var serviceCatalog = []struct {
	name      string
	minutes   int
	basePrice float64
}{
	{"Check-up", 30, 60},
	{"Cleaning", 45, 90},
	{"Filling", 60, 120},
	{"Whitening", 60, 300},
	{"Extraction", 60, 200},
	{"Root canal", 90, 450},
}

func newSeedCmd(c *cli) *cobra.Command {
	var (
		dentists int
		seed     int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake dentists and the service catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			faker := gofakeit.New(uint64(seed))
			if _, err := seedDentists(cmd.Context(), store.Repo, faker, dentists, c.logger); err != nil {
				return fmt.Errorf("seed dentists: %w", err)
			}
			if _, err := seedServices(cmd.Context(), store.Repo, faker, c.logger); err != nil {
				return fmt.Errorf("seed services: %w", err)
			}

			c.logger.Info("seed complete")
			return nil
		},
	}

	cmd.Flags().IntVar(&dentists, "dentists", 10, "number of dentists to create")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = random)")
	return cmd
}

func seedDentists(ctx context.Context, repo appointment.CatalogWriter, faker *gofakeit.Faker, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding dentists", zap.Int("count", count))

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		spec := specialties[faker.Number(0, len(specialties)-1)]
		d := &appointment.Dentist{
			ID:        uuid.New(),
			Name:      "Dr. " + faker.Name(),
			Specialty: &spec,
			Active:    true,
		}
		if err := repo.InsertDentist(ctx, d); err != nil {
			return nil, err
		}
		ids = append(ids, d.ID)
		logger.Info("dentist created", zap.Stringer("id", d.ID), zap.String("name", d.Name))
	}
	return ids, nil
}

func seedServices(ctx context.Context, repo appointment.CatalogWriter, faker *gofakeit.Faker, logger *zap.Logger) ([]appointment.Treatment, error) {
	logger.Info("seeding services", zap.Int("count", len(serviceCatalog)))

	services := make([]appointment.Treatment, 0, len(serviceCatalog))
	for _, entry := range serviceCatalog {
		price := entry.basePrice + float64(faker.Number(0, 20))
		s := appointment.Treatment{
			ID:              uuid.New(),
			Name:            entry.name,
			DurationMinutes: entry.minutes,
			Price:           price,
		}
		if err := repo.InsertService(ctx, &s); err != nil {
			return nil, err
		}
		services = append(services, s)
		logger.Info("service created",
			zap.Stringer("id", s.ID),
			zap.String("name", s.Name),
			zap.Int("duration_minutes", s.DurationMinutes),
			zap.Float64("price", s.Price),
		)
	}
	return services, nil
}
