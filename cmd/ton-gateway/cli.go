package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	gateway "github.com/dapplink-labs/ton-wallet-gateway"
	"github.com/dapplink-labs/ton-wallet-gateway/common/cliapp"
	"github.com/dapplink-labs/ton-wallet-gateway/common/opio"
	"github.com/dapplink-labs/ton-wallet-gateway/config"
	"github.com/dapplink-labs/ton-wallet-gateway/database"
	flags2 "github.com/dapplink-labs/ton-wallet-gateway/flags"
)

func runGateway(ctx *cli.Context, shutdown context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log.Info("running ton wallet gateway...")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return nil, err
	}
	return gateway.NewTonGateway(ctx.Context, &cfg, shutdown)
}

func runNotify(ctx *cli.Context, shutdown context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	log.Info("running notify task...")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return nil, err
	}
	return gateway.NewNotifyTask(ctx.Context, &cfg, shutdown)
}

func runMigrations(ctx *cli.Context) error {
	ctx.Context = opio.CancelOnInterrupt(ctx.Context)
	log.Info("running migrations...")
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error("failed to load config", "err", err)
		return err
	}
	db, err := database.NewDB(ctx.Context, cfg.MasterDB)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		return err
	}
	defer func(db *database.DB) {
		if err := db.Close(); err != nil {
			log.Error("fail to close database", "err", err)
		}
	}(db)
	return db.ExecuteSQLMigration(cfg.Migrations)
}

func NewCli(GitCommit string, GitDate string) *cli.App {
	flags := flags2.Flags
	return &cli.App{
		Version:              params.VersionWithCommit(GitCommit, GitDate),
		Description:          "A TON wallet gateway with rest api, ledger subscriptions and webhook callbacks",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:        "gateway",
				Flags:       flags,
				Description: "Run the wallet gateway: rest api, ledger subscriptions and callbacks",
				Action:      cliapp.LifecycleCmd(runGateway),
			},
			{
				Name:        "notify",
				Flags:       flags,
				Description: "Run failed callback re-delivery only",
				Action:      cliapp.LifecycleCmd(runNotify),
			},
			{
				Name:        "migrate",
				Flags:       flags,
				Description: "Run database migrations",
				Action:      runMigrations,
			},
			{
				Name:        "version",
				Description: "Show project version",
				Action: func(ctx *cli.Context) error {
					cli.ShowVersion(ctx)
					return nil
				},
			},
		},
	}
}
