// Command node boots a single p2pcoin node: it loads configuration
// from the environment, opens its wallet and stores, starts the
// server/pool/protocol/mining pipeline, and blocks until signalled to
// stop.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pouria-shahmiri/p2pcoin/pkg/appstate"
	"github.com/pouria-shahmiri/p2pcoin/pkg/config"
	"github.com/pouria-shahmiri/p2pcoin/pkg/logging"
)

func main() {
	cfg := config.LoadFromEnv()
	logging.Configure(cfg.LogLevel)
	log := logging.For("main")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	app, err := appstate.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize node: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	log.Infof("node identity: %s", app.Wallet.PublicKeyB64())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	app.Stop()
}
