package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"symptom-triage/internal/config"
	"symptom-triage/internal/logger"
)

var version = "dev"

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	a := &app{}
	cmd := &cli.Command{
		Name:    "symptom-triage",
		Usage:   "Symptom triage chat service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to a YAML config file (default: ./configs/config.yaml or ./config.yaml)",
				Sources:     cli.EnvVars("TRIAGE_CONFIG"),
				Destination: &a.configPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			var err error
			if a.configPath != "" {
				a.cfg, err = config.LoadFromFile(a.configPath)
			} else {
				a.cfg, err = config.Load()
			}
			if err != nil {
				return ctx, err
			}
			a.log = logger.New(a.cfg.Logging.Level, a.cfg.Logging.Format)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if a.log != nil {
				_ = a.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			a.cmdServe(),
			a.cmdMigrate(),
			a.cmdAddHospital(),
			a.cmdSetKeys(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
