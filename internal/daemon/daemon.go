// Package daemon wires configuration, stores, the ledger backend, the
// actor worker and the RPC server into one runnable process.
package daemon

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"notegate/go-daemon/internal/actor"
	"notegate/go-daemon/internal/config"
	"notegate/go-daemon/internal/escrow"
	"notegate/go-daemon/internal/keystore"
	"notegate/go-daemon/internal/ledger"
	"notegate/go-daemon/internal/metrics"
	"notegate/go-daemon/internal/notes"
	"notegate/go-daemon/internal/registry"
	"notegate/go-daemon/internal/rpc"
)

type Daemon struct {
	log    *slog.Logger
	actor  *actor.Actor
	server *rpc.Server
}

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// New builds the daemon from config. Local state (keys, escrow
// records) is encrypted with NOTEGATE_STORE_PASSPHRASE when set.
func New(cfg config.Config, log *slog.Logger) (*Daemon, error) {
	client, err := newLedgerClient(cfg.Ledger)
	if err != nil {
		return nil, err
	}

	passphrase := os.Getenv("NOTEGATE_STORE_PASSPHRASE")
	if passphrase == "" {
		log.Warn("NOTEGATE_STORE_PASSPHRASE is not set; local state is stored in plaintext")
	}
	keys, err := keystore.Open(filepath.Join(cfg.DataDir, "keys"), passphrase)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	store, err := escrow.OpenStore(filepath.Join(cfg.DataDir, "escrows.enc"), passphrase)
	if err != nil {
		return nil, fmt.Errorf("open escrow store: %w", err)
	}

	reg := registry.New()
	nm := notes.NewManager(client, log, cfg.Ledger.PropagationPollInterval, cfg.Ledger.PropagationPollAttempts)
	coord := escrow.NewCoordinator(client, nm, reg, keys, store, rand.Reader, log)

	act := actor.New(actor.Config{
		QueueCapacity: cfg.Ledger.QueueCapacity,
		Token: ledger.TokenConfig{
			Symbol:    cfg.Ledger.Token.Symbol,
			Decimals:  cfg.Ledger.Token.Decimals,
			MaxSupply: cfg.Ledger.Token.MaxSupply,
		},
		InitialFunding:    cfg.Ledger.InitialFunding,
		DefaultMintAmount: cfg.Ledger.DefaultMintAmount,
	}, actor.Deps{
		Client:  client,
		Keys:    keys,
		Reg:     reg,
		Notes:   nm,
		Escrows: coord,
		Rng:     rand.Reader,
		Log:     log,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
	})

	srv := rpc.NewServer(cfg.RPCAddr, act, log)
	return &Daemon{log: log, actor: act, server: srv}, nil
}

// Run starts the worker and the RPC server and blocks until either
// stops or ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- d.actor.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Run(ctx)
	}()

	select {
	case err := <-workerErr:
		cancel()
		<-serverErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ledger worker: %w", err)
		}
		return nil
	case err := <-serverErr:
		cancel()
		<-workerErr
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}
}

// newLedgerClient selects the backend. Only the in-process mock ships
// in the default build; real network clients are linked in separately
// and selected by name.
func newLedgerClient(cfg config.LedgerConfig) (ledger.Client, error) {
	switch cfg.Backend {
	case "mock", "":
		return ledger.NewMemLedger(cfg.MockPropagationDelay), nil
	default:
		return nil, fmt.Errorf("ledger backend %q is not linked into this build", cfg.Backend)
	}
}
