package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/geosnap/internal/buildinfo"
	"github.com/dmitrijs2005/geosnap/internal/client/cli"
	"github.com/dmitrijs2005/geosnap/internal/client/config"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	passphrase, err := cli.GetPassword("Enter passphrase to unlock geosnap: ", os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := cli.NewApp(ctx, cfg, passphrase, logger)
	common.WipeByteArray(passphrase)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)
}
