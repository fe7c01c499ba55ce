package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"m7s.live/mp4probe"
	"m7s.live/mp4probe/pkg/util"
	_ "m7s.live/mp4probe/plugin/logrotate"
	_ "m7s.live/mp4probe/plugin/mp4"
)

func main() {
	conf := flag.String("c", "config.yaml", "config file")
	flag.Parse()
	ctx, cancel := context.WithCancel(context.Background())
	go util.WaitTerm(cancel)
	if err := mp4probe.Run(ctx, *conf); err != nil {
		slog.Error("server exit", "error", err)
		os.Exit(1)
	}
}
