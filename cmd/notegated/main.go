package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"notegate/go-daemon/internal/config"
	"notegate/go-daemon/internal/daemon"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address (overrides config)")
	configPath := flag.String("config", "", "Path to notegate.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for daemon local data (overrides config)")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Notegate-RPC-Token (optional)")
	backend := flag.String("ledger", "", "Ledger backend override: mock | <linked backend>")
	flag.Parse()
	if *showVersion {
		fmt.Printf("notegated version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcToken != "" {
		_ = os.Setenv("NOTEGATE_RPC_TOKEN", *rpcToken)
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("notegated failed to load config: %v", err)
	}
	if *rpcAddr != "" {
		cfg.RPCAddr = *rpcAddr
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *backend != "" {
		cfg.Ledger.Backend = *backend
	}

	logger := daemon.DefaultLogger()
	d, err := daemon.New(cfg, logger)
	if err != nil {
		log.Fatalf("notegated failed to initialize: %v", err)
	}

	log.Println("notegated starting")
	if err := d.Run(ctx); err != nil {
		log.Fatalf("notegated failed: %v", err)
	}
	log.Println("notegated stopped")
}
