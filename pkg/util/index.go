package util

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WaitTerm cancels when the process receives SIGINT or SIGTERM.
func WaitTerm(cancel context.CancelFunc) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	cancel()
}
