package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/droidmetrics/internal/logger"
	"github.com/coreos/go-systemd/v22/daemon"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// handleSignals cancels ctx on the first SIGINT or SIGTERM.
func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

// notify reports a state change to systemd for units with Type=notify. It is
// a no-op outside systemd.
func notify(states ...string) {
	for _, state := range states {
		if _, err := daemon.SdNotify(false, state); err != nil {
			logger.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
		}
	}
}
