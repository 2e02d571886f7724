package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"symptom-triage/internal/db"
	"symptom-triage/internal/hospital"
	"symptom-triage/internal/keystore"
	"symptom-triage/internal/llm"
	"symptom-triage/pkg"
)

func (a *app) cmdMigrate() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the database tables",
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := openDatabase(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(ctx, conn); err != nil {
				return err
			}
			a.log.Info("schema applied")
			return nil
		},
	}
}

func (a *app) cmdAddHospital() *cli.Command {
	var h pkg.NewHospital
	return &cli.Command{
		Name:  "add-hospital",
		Usage: "Insert a hospital into the curated table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true, Destination: &h.Name},
			&cli.StringFlag{Name: "address", Required: true, Destination: &h.Address},
			&cli.StringFlag{Name: "phone", Destination: &h.Phone},
			&cli.StringFlag{Name: "hours", Usage: "Opening hours", Destination: &h.OpeningHours},
			&cli.StringSliceFlag{Name: "specialty", Usage: "Specialty display name, repeatable (e.g. Cardiology)"},
			&cli.FloatFlag{Name: "lat", Required: true, Destination: &h.Latitude},
			&cli.FloatFlag{Name: "lng", Required: true, Destination: &h.Longitude},
			&cli.FloatFlag{Name: "rating", Destination: &h.Rating},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			h.Specialty = c.StringSlice("specialty")

			conn, err := openDatabase(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer conn.Close()

			locator, err := hospital.NewLocator(db.NewRepository(conn), nil, a.log)
			if err != nil {
				return err
			}
			rec, err := locator.AddHospital(ctx, h)
			if err != nil {
				return err
			}
			fmt.Printf("added hospital %d: %s\n", rec.ID, rec.Name)
			return nil
		},
	}
}

func (a *app) cmdSetKeys() *cli.Command {
	return &cli.Command{
		Name:      "set-keys",
		Usage:     "Replace the persisted API key pool",
		ArgsUsage: "KEY [KEY...]",
		Action: func(ctx context.Context, c *cli.Command) error {
			keys := c.Args().Slice()
			if len(keys) == 0 {
				return fmt.Errorf("at least one key is required")
			}
			if a.cfg.Redis.Address == "" {
				return fmt.Errorf("redis.address is not configured; keys would not outlive this command")
			}
			client := keystore.NewClient(keystore.Options{
				Address:  a.cfg.Redis.Address,
				Password: a.cfg.Redis.Password,
				DB:       a.cfg.Redis.DB,
			})
			defer client.Close()
			store := keystore.NewRedisStore(client, a.cfg.Redis.Key)
			if err := store.Ping(ctx); err != nil {
				return err
			}

			pool, err := llm.NewPool(ctx, store, nil, a.log)
			if err != nil {
				return err
			}
			if err := pool.SetKeys(ctx, keys); err != nil {
				return err
			}
			size, _ := pool.Status()
			fmt.Printf("stored %d api keys\n", size)
			return nil
		},
	}
}
