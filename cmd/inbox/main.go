package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadClient()

	app := &cli.App{
		Name:  "inbox",
		Usage: "Read and answer pasar tani marketplace messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api",
				Usage:   "Base URL of the messaging API",
				Value:   cfg.APIURL,
				EnvVars: []string{"PT_API_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Session token",
				Value:   cfg.Token,
				EnvVars: []string{"PT_TOKEN"},
			},
			&cli.DurationFlag{
				Name:  "thread-interval",
				Usage: "Polling interval of an open conversation",
				Value: cfg.ThreadInterval,
			},
			&cli.DurationFlag{
				Name:  "list-interval",
				Usage: "Polling interval of the conversation list",
				Value: cfg.ListInterval,
			},
			&cli.IntFlag{
				Name:  "refresh-per-minute",
				Usage: "Manual refresh limit, 0 disables it",
				Value: cfg.RefreshPerMinute,
			},
			&cli.IntFlag{
				Name:  "catalog-cache",
				Usage: "Number of products kept in the lookup cache",
				Value: cfg.CatalogCache,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   cfg.LogLevel,
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			conversationsCommand(),
			threadCommand(),
			sendCommand(),
			readCommand(),
			readAllCommand(),
			deleteCommand(),
			unreadCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
