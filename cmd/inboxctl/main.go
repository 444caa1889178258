package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
)

func getConfig(ctx *cli.Context) *Config {
	return ctx.Context.Value(contextKeyConfig).(*Config)
}

func prepareApp(ctx *cli.Context) error {
	level := zerolog.InfoLevel
	if ctx.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, cfg)
	return nil
}

func main() {
	app := &cli.App{
		Name:    "inboxctl",
		Usage:   "Terminal client for floatinbox conversations",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to config file",
				Value: defaultConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Use an in-process loopback network instead of NATS (demo mode)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "Open a conversation and follow it interactively",
				ArgsUsage: "<peer>",
				Before:    prepareApp,
				Action:    runOpen,
			},
			{
				Name:      "send",
				Usage:     "Send a single message (creates the conversation if needed)",
				ArgsUsage: "<peer> <text>",
				Before:    prepareApp,
				Action:    runSend,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "Attach the given file",
					},
				},
			},
			{
				Name:  "example-config",
				Usage: "Print an example config file",
				Action: func(*cli.Context) error {
					fmt.Print(ExampleConfig)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
