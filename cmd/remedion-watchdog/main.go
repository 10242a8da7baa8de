package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/medwise/remedion/pkg/cmd"
	"github.com/medwise/remedion/pkg/config"
	"github.com/medwise/remedion/pkg/log"
	"github.com/medwise/remedion/pkg/otelhelper"
)

// Conventional config location probed when --config is not set.
const defaultConfigPath = "watchdog.yaml"

func main() {
	command := &cli.Command{
		Name:                  "remedion-watchdog",
		Usage:                 "Run scheduled deadlock scans, snapshot integrity sweeps and alert maintenance",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "watchdog-id",
				Aliases: []string{"id"},
				Usage:   "Custom watchdog ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WATCHDOG_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or file://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for cross-process recovery locks (process-local locks if empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the watchdog schedule config file (YAML)",
				Value:   "",
				Sources: cli.EnvVars("WATCHDOG_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			watchdogID := command.String("watchdog-id")
			if watchdogID == "" {
				watchdogID = "watchdog-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("watchdog").With("watchdog_id", watchdogID)

			logger.InfoContext(ctx, "Initializing Remedion Watchdog")

			var (
				cfg config.WatchdogConfig
				err error
			)

			if configPath := command.String("config"); configPath != "" {
				cfg, err = config.LoadWatchdogConfig(configPath)
				if err != nil {
					return err
				}
			} else {
				cfg = config.LoadWatchdogConfigOrDefault(defaultConfigPath)
			}

			if err := config.ValidateWatchdogConfig(cfg); err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			bus, err := cmd.NewEventBus(command.String("event-bus"), "remedion-watchdog", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			locker, err := cmd.NewInstanceLocker(ctx, command.String("redis-url"), logger)
			if err != nil {
				return err
			}

			engine := cmd.NewEngine(store, bus, locker, logger)
			defer engine.Close()

			tracer, err := otelhelper.NewTracer(ctx, "remedion-watchdog")
			if err != nil {
				logger.WarnContext(ctx, "Tracing exporter unavailable, continuing without spans", "error", err)

				tracer = otel.Tracer("remedion-watchdog")
			}

			watchdog, err := NewWatchdog(watchdogID, engine, cfg, tracer, logger)
			if err != nil {
				return err
			}

			return watchdog.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
