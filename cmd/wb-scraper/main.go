package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/maltedev/wb-deal-scraper/internal/config"
	"github.com/maltedev/wb-deal-scraper/pkg/logger"
	"github.com/rs/zerolog"
)

type CLI struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL" default:"info"`
	LogFormat string `help:"Log format (json or console)." env:"LOG_FORMAT" default:"console"`

	Search   SearchCmd   `cmd:"" help:"Harvest search results and extract every product."`
	Category CategoryCmd `cmd:"" help:"Harvest a category listing and extract every product."`
	Articles ArticlesCmd `cmd:"" help:"Extract products listed by article id in a file, one per line."`
	Random   RandomCmd   `cmd:"" help:"Extract randomly chosen article ids."`
	Extract  ExtractCmd  `cmd:"" help:"Extract one product page and print the outcome as JSON."`
	Proxies  ProxiesCmd  `cmd:"" help:"Check the configured proxies and report which work."`
}

// runContext is bound into every command's Run method.
type runContext struct {
	ctx    context.Context
	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("wb-scraper"),
		kong.Description("Finds Wildberries products whose review reward exceeds their price."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)

	log := logger.New(cli.LogLevel, cli.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&runContext{ctx: ctx, cfg: cfg, logger: log})
	if err != nil {
		log.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		stop()
		os.Exit(1)
	}
}
