package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CamiloWG/adhocfabric/cmd/fabricnode/cli"
	"github.com/CamiloWG/adhocfabric/internal/logging"
	"github.com/CamiloWG/adhocfabric/internal/runtime"
)

func main() {
	os.Exit(run())
}

// run wires the CLI to runtime construction/startup and returns the
// process exit code: 0 success, 1 initialization failure.
func run() int {
	log := logging.Named("main")
	defer logging.Sync()

	exitCode := 0
	rootCmd := cli.NewCLI(func(nodeIDHex string) error {
		cfg := runtime.DefaultConfig()
		cfg.NodeIDHex = nodeIDHex

		rt, err := runtime.New(cfg, nil)
		if err != nil {
			exitCode = 1
			return fmt.Errorf("initialization failed: %w", err)
		}

		log.Infow("starting fabric node", "node_id", rt.LocalID())
		rt.Start()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		log.Infow("shutting down")
		rt.Stop()
		return nil
	})

	if err := rootCmd.Execute(); err != nil {
		log.Errorw("fabricnode exited with error", "error", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}
