// Command dungeond runs a dungeon node: the run engine, the fee and
// reward settlements and the HTTP API in front of them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afurourrego/dungeonflip/internal/api"
	"github.com/afurourrego/dungeonflip/internal/config"
	"github.com/afurourrego/dungeonflip/internal/daemon"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (or set "+config.PathEnv+")")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dev        = flag.Bool("dev", false, "enable the development faucet routes")
		version    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *version {
		v := api.GetVersionInfo()
		fmt.Printf("dungeond %s (%s, %s)\n", v.EngineVersion, v.GitCommit, v.BuildTime)
		return
	}

	logger := log.New(os.Stdout, "[dungeond] ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *dev {
		cfg.DevFaucet = true
	}
	if cfg.AdminToken == "" {
		logger.Printf("admin_token not set; admin routes are closed")
	}

	m, err := daemon.NewModule(cfg, os.Stdout)
	if err != nil {
		logger.Fatalf("init: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := m.Startup(ctx); err != nil {
		logger.Fatalf("startup: %v", err)
	}
	<-ctx.Done()
	logger.Printf("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := m.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
