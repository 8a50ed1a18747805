// Package actor serializes all ledger-mutating work through a single
// worker goroutine. The worker exclusively owns the ledger client, the
// key store and the randomness source; concurrent callers only ever
// touch the command queue and their own reply channel.
package actor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"notegate/go-daemon/internal/escrow"
	"notegate/go-daemon/internal/fault"
	"notegate/go-daemon/internal/keystore"
	"notegate/go-daemon/internal/ledger"
	"notegate/go-daemon/internal/metrics"
	"notegate/go-daemon/internal/notes"
	"notegate/go-daemon/internal/registry"
	"notegate/go-daemon/pkg/models"
)

type Verb string

const (
	VerbMint               Verb = "mint"
	VerbGetAccountInfo     Verb = "get-account-info"
	VerbGetConsumableNotes Verb = "get-consumable-notes"
	VerbConsumeNote        Verb = "consume-note"
	VerbTransferProperty   Verb = "transfer-property"
	VerbSendTokens         Verb = "send-tokens"
	VerbGetBalance         Verb = "get-balance"
	VerbCreateEscrow       Verb = "create-escrow"
	VerbFundEscrow         Verb = "fund-escrow"
	VerbReleaseEscrow      Verb = "release-escrow"
	VerbRefundEscrow       Verb = "refund-escrow"
	VerbGetEscrow          Verb = "get-escrow"
	VerbListEscrows        Verb = "list-escrows"
	VerbDisputeEscrow      Verb = "dispute-escrow"
)

// Params carries the inputs of a command. Account references are role
// names or hex identifiers; which fields a verb reads is documented on
// the dispatcher.
type Params struct {
	Account string `json:"account,omitempty"`
	Target  string `json:"target,omitempty"`
	Buyer   string `json:"buyer,omitempty"`
	Seller  string `json:"seller,omitempty"`
	Escrow  string `json:"escrow,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`

	// Disputed sets or clears the escrow dispute flag. Nil means set,
	// so a bare dispute-escrow call flags the escrow.
	Disputed *bool `json:"disputed,omitempty"`
}

type result struct {
	value any
	err   error
}

type command struct {
	verb   Verb
	params Params
	reply  chan result
}

// Config tunes the worker and its bootstrap.
type Config struct {
	QueueCapacity     int
	Token             ledger.TokenConfig
	InitialFunding    uint64
	DefaultMintAmount uint64
}

// Deps are the collaborators the worker takes exclusive ownership of.
type Deps struct {
	Client  ledger.Client
	Keys    *keystore.Store
	Reg     *registry.Registry
	Notes   *notes.Manager
	Escrows *escrow.Coordinator
	Rng     io.Reader
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

type Actor struct {
	cfg   Config
	d     Deps
	hub   *Hub
	state *StateMetrics
	queue chan command
	done  chan struct{}
}

func New(cfg Config, d Deps) *Actor {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 100
	}
	if cfg.DefaultMintAmount == 0 {
		cfg.DefaultMintAmount = 100
	}
	return &Actor{
		cfg:   cfg,
		d:     d,
		hub:   NewHub(),
		state: NewStateMetrics(),
		queue: make(chan command, cfg.QueueCapacity),
		done:  make(chan struct{}),
	}
}

func (a *Actor) Hub() *Hub { return a.hub }

// MetricsSnapshot samples the in-process counters plus current queue
// depth.
func (a *Actor) MetricsSnapshot() models.MetricsSnapshot {
	return a.state.Snapshot(len(a.queue))
}

// Submit enqueues one command and waits for its reply. Enqueueing never
// blocks: a full queue or a dead worker fails immediately with
// ErrTransportUnavailable. A worker that dies after accepting the
// command fails the wait with ErrInternalComm.
func (a *Actor) Submit(ctx context.Context, verb Verb, params Params) (any, error) {
	cmd := command{verb: verb, params: params, reply: make(chan result, 1)}
	select {
	case <-a.done:
		return nil, fmt.Errorf("%w: ledger worker is not running", fault.ErrTransportUnavailable)
	default:
	}
	select {
	case a.queue <- cmd:
		a.d.Metrics.QueueDepth.Set(float64(len(a.queue)))
	default:
		a.d.Metrics.QueueRejects.Inc()
		return nil, fmt.Errorf("%w: command queue is full", fault.ErrTransportUnavailable)
	}
	select {
	case res := <-cmd.reply:
		return res.value, res.err
	case <-a.done:
		// The worker may have replied and then shut down before this
		// select ran; a buffered reply wins over the death report.
		select {
		case res := <-cmd.reply:
			return res.value, res.err
		default:
		}
		return nil, fmt.Errorf("%w: ledger worker stopped before replying", fault.ErrInternalComm)
	case <-ctx.Done():
		// The in-flight command keeps running; its reply lands in the
		// buffered channel and is discarded.
		return nil, ctx.Err()
	}
}

// Run bootstraps the role accounts and then drains the queue until ctx
// is cancelled. A bootstrap failure shuts the worker down, which makes
// every subsequent Submit fail fast.
func (a *Actor) Run(ctx context.Context) error {
	defer close(a.done)
	if err := a.bootstrap(ctx); err != nil {
		a.d.Log.Error("bootstrap failed, refusing all commands", "error", err)
		return err
	}
	a.d.Log.Info("ledger worker ready", "queue_capacity", cap(a.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-a.queue:
			a.d.Metrics.QueueDepth.Set(float64(len(a.queue)))
			a.handle(ctx, cmd)
		}
	}
}

// bootstrap creates the seller, buyer and faucet role accounts with
// fresh keys, then best-effort funds the buyer so escrow flows can be
// exercised right away. Funding failures are warnings; account-creation
// failures are fatal.
func (a *Actor) bootstrap(ctx context.Context) error {
	if _, err := a.d.Client.SyncState(ctx); err != nil {
		return fault.Network(err)
	}

	sellerID, err := a.createRoleWallet(ctx, registry.RoleSeller)
	if err != nil {
		return err
	}
	buyerID, err := a.createRoleWallet(ctx, registry.RoleBuyer)
	if err != nil {
		return err
	}

	faucetEntry, err := a.d.Keys.Create(a.d.Rng)
	if err != nil {
		return fmt.Errorf("generate faucet key: %w", err)
	}
	faucet, err := a.d.Client.CreateFaucet(ctx, faucetEntry.SeedBytes(), faucetEntry.PublicKey, a.cfg.Token)
	if err != nil {
		return fault.Network(err)
	}
	a.d.Reg.SetRole(registry.RoleFaucet, faucet.ID)
	a.d.Log.Info("role accounts ready",
		"seller", sellerID.String(), "buyer", buyerID.String(),
		"faucet", faucet.ID.String(), "token", a.cfg.Token.Symbol)

	if a.cfg.InitialFunding > 0 {
		a.fundBuyer(ctx, faucet.ID, buyerID)
	}
	return nil
}

func (a *Actor) createRoleWallet(ctx context.Context, role registry.Role) (ledger.AccountID, error) {
	entry, err := a.d.Keys.Create(a.d.Rng)
	if err != nil {
		return ledger.AccountID{}, fmt.Errorf("generate %s key: %w", role, err)
	}
	acct, err := a.d.Client.CreateWallet(ctx, entry.SeedBytes(), entry.PublicKey, true)
	if err != nil {
		return ledger.AccountID{}, fault.Network(err)
	}
	a.d.Reg.SetRole(role, acct.ID)
	return acct.ID, nil
}

func (a *Actor) fundBuyer(ctx context.Context, faucetID, buyerID ledger.AccountID) {
	_, disc, err := a.d.Notes.Mint(ctx, faucetID, buyerID, a.cfg.InitialFunding)
	if err != nil {
		a.d.Log.Warn("initial buyer funding mint failed", "error", err)
		return
	}
	if disc.State != notes.DiscoveryFound {
		a.d.Log.Warn("initial funding note not yet visible, buyer vault starts empty",
			"note_id", disc.NoteID)
		return
	}
	if _, _, err := a.d.Notes.ConsumeAll(ctx, buyerID); err != nil {
		a.d.Log.Warn("initial buyer funding consume failed", "error", err)
		return
	}
	a.d.Log.Info("buyer pre-funded", "amount", a.cfg.InitialFunding)
}

func (a *Actor) handle(ctx context.Context, cmd command) {
	start := time.Now()
	value, err := a.execute(ctx, cmd.verb, cmd.params)
	elapsed := time.Since(start)

	category := fault.Category(err)
	a.state.Record(string(cmd.verb), elapsed, category)
	outcome := "ok"
	errMsg := ""
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
		a.d.Log.Warn("command failed",
			"verb", string(cmd.verb), "category", category, "error", err,
			"elapsed", elapsed.String())
	} else {
		a.d.Log.Debug("command done", "verb", string(cmd.verb), "elapsed", elapsed.String())
	}
	a.d.Metrics.CommandsTotal.WithLabelValues(string(cmd.verb), outcome).Inc()
	a.d.Metrics.CommandDuration.WithLabelValues(string(cmd.verb)).Observe(elapsed.Seconds())
	a.hub.Publish(Event{Verb: string(cmd.verb), Outcome: outcome, Error: errMsg, At: time.Now().UTC()})

	cmd.reply <- result{value: value, err: err}
}

func (a *Actor) execute(ctx context.Context, verb Verb, p Params) (any, error) {
	switch verb {
	case VerbMint:
		return a.execMint(ctx, p)
	case VerbGetAccountInfo:
		return a.execAccountInfo(ctx, p)
	case VerbGetConsumableNotes:
		return a.execConsumableNotes(ctx, p)
	case VerbConsumeNote:
		return a.execConsume(ctx, p)
	case VerbTransferProperty:
		return a.execTransfer(ctx, p, notes.SelectFirstAsset)
	case VerbSendTokens:
		return a.execTransfer(ctx, p, notes.SelectAll)
	case VerbGetBalance:
		return a.execBalance(ctx, p)
	case VerbCreateEscrow:
		return a.d.Escrows.Create(ctx, orDefault(p.Buyer, string(registry.RoleBuyer)), orDefault(p.Seller, string(registry.RoleSeller)), p.Amount)
	case VerbFundEscrow:
		return a.d.Escrows.Fund(ctx, p.Escrow)
	case VerbReleaseEscrow:
		return a.d.Escrows.Release(ctx, p.Escrow)
	case VerbRefundEscrow:
		return a.d.Escrows.Refund(ctx, p.Escrow)
	case VerbGetEscrow:
		return a.d.Escrows.Get(ctx, p.Escrow)
	case VerbListEscrows:
		return a.d.Escrows.List(ctx), nil
	case VerbDisputeEscrow:
		disputed := true
		if p.Disputed != nil {
			disputed = *p.Disputed
		}
		return a.d.Escrows.MarkDisputed(ctx, p.Escrow, disputed)
	default:
		return nil, fmt.Errorf("unknown command verb %q", verb)
	}
}

func (a *Actor) execMint(ctx context.Context, p Params) (models.MintReceipt, error) {
	faucet, err := a.d.Reg.RoleID(registry.RoleFaucet)
	if err != nil {
		return models.MintReceipt{}, err
	}
	target, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return models.MintReceipt{}, err
	}
	amount := p.Amount
	if amount == 0 {
		amount = a.cfg.DefaultMintAmount
	}
	txID, disc, err := a.d.Notes.Mint(ctx, faucet, target, amount)
	if err != nil {
		return models.MintReceipt{}, err
	}
	return models.MintReceipt{
		TransactionID: string(txID),
		NoteID:        disc.NoteID,
		NotePending:   disc.State != notes.DiscoveryFound,
	}, nil
}

func (a *Actor) execAccountInfo(ctx context.Context, p Params) (models.AccountInfo, error) {
	id, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return models.AccountInfo{}, err
	}
	acct, ok, err := a.d.Client.Account(ctx, id)
	if err != nil {
		return models.AccountInfo{}, fault.Network(err)
	}
	if !ok {
		return models.AccountInfo{}, fmt.Errorf("%w: %s", fault.ErrUnknownAccount, id)
	}
	info := models.AccountInfo{ID: acct.ID.String(), IsPublic: acct.Public, IsFaucet: acct.Faucet}
	if role, bound := a.d.Reg.RoleOf(acct.ID); bound {
		info.Role = string(role)
	}
	return info, nil
}

func (a *Actor) execConsumableNotes(ctx context.Context, p Params) ([]models.NoteInfo, error) {
	id, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return nil, err
	}
	listing, err := a.d.Notes.ListConsumable(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]models.NoteInfo, 0, len(listing.Confirmed)+len(listing.Pending))
	for _, n := range listing.Confirmed {
		out = append(out, models.NoteInfo{NoteID: n.ID, State: models.NoteStateConsumable})
	}
	for _, id := range listing.Pending {
		out = append(out, models.NoteInfo{NoteID: id, State: models.NoteStatePending})
	}
	return out, nil
}

func (a *Actor) execConsume(ctx context.Context, p Params) (models.ConsumeReceipt, error) {
	id, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return models.ConsumeReceipt{}, err
	}
	txID, count, err := a.d.Notes.ConsumeAll(ctx, id)
	if err != nil {
		return models.ConsumeReceipt{}, err
	}
	return models.ConsumeReceipt{TransactionID: string(txID), NotesConsumed: count}, nil
}

func (a *Actor) execTransfer(ctx context.Context, p Params, sel notes.Selection) (models.TransferReceipt, error) {
	source, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	dest, err := a.d.Reg.ResolveString(p.Target)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	txID, err := a.d.Notes.Transfer(ctx, source, dest, sel)
	if err != nil {
		return models.TransferReceipt{}, err
	}
	return models.TransferReceipt{TransactionID: string(txID)}, nil
}

func (a *Actor) execBalance(ctx context.Context, p Params) (models.BalanceInfo, error) {
	id, err := a.d.Reg.ResolveString(p.Account)
	if err != nil {
		return models.BalanceInfo{}, err
	}
	if _, err := a.d.Client.SyncState(ctx); err != nil {
		return models.BalanceInfo{}, fault.Network(err)
	}
	acct, ok, err := a.d.Client.Account(ctx, id)
	if err != nil {
		return models.BalanceInfo{}, fault.Network(err)
	}
	if !ok {
		return models.BalanceInfo{}, fmt.Errorf("%w: %s", fault.ErrUnknownAccount, id)
	}
	assets := make([]models.AssetAmount, 0, len(acct.Vault))
	for _, asset := range acct.Vault {
		assets = append(assets, models.AssetAmount{FaucetID: asset.Faucet.String(), Amount: asset.Amount})
	}
	return models.BalanceInfo{
		AccountID:   acct.ID.String(),
		VaultAssets: assets,
		AssetCount:  len(assets),
		IsPublic:    acct.Public,
	}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
