package main

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/dapplink-labs/ton-wallet-gateway/common/opio"
)

var (
	GitCommit = ""
	GitDate   = ""
)

func main() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelInfo, true)))
	app := NewCli(GitCommit, GitDate)
	ctx := opio.CancelOnInterrupt(context.Background())
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Error("Application failed", "err", err)
		os.Exit(1)
	}
}
