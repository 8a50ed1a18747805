// Package escrow implements the four-step escrow saga: create a fresh
// holding account, fund it from the buyer, then release to the seller
// or refund to the buyer.
package escrow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"notegate/go-daemon/internal/fault"
	"notegate/go-daemon/internal/keystore"
	"notegate/go-daemon/internal/ledger"
	"notegate/go-daemon/internal/notes"
	"notegate/go-daemon/internal/registry"
	"notegate/go-daemon/pkg/models"
)

// Coordinator orchestrates escrows on top of the note manager and the
// account registry. Like everything behind the command queue it is
// owned by the actor worker and not safe for concurrent use.
type Coordinator struct {
	client ledger.Client
	notes  *notes.Manager
	reg    *registry.Registry
	keys   *keystore.Store
	store  *Store
	rng    io.Reader
	log    *slog.Logger
	now    func() time.Time
}

func NewCoordinator(client ledger.Client, nm *notes.Manager, reg *registry.Registry, keys *keystore.Store, store *Store, rng io.Reader, log *slog.Logger) *Coordinator {
	return &Coordinator{
		client: client,
		notes:  nm,
		reg:    reg,
		keys:   keys,
		store:  store,
		rng:    rng,
		log:    log,
		now:    time.Now,
	}
}

// Create allocates a new escrow-holder account with fresh signing
// material and records the escrow. Amount is a declared expectation
// checked against zero, not enforced against later funding.
func (c *Coordinator) Create(ctx context.Context, buyerRef, sellerRef string, amount uint64) (models.EscrowView, error) {
	if amount == 0 {
		return models.EscrowView{}, fmt.Errorf("%w: escrow amount must be positive", fault.ErrThresholdNotMet)
	}
	buyer, err := c.reg.ResolveString(buyerRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	seller, err := c.reg.ResolveString(sellerRef)
	if err != nil {
		return models.EscrowView{}, err
	}

	entry, err := c.keys.Create(c.rng)
	if err != nil {
		return models.EscrowView{}, fmt.Errorf("generate escrow key: %w", err)
	}
	holder, err := c.client.CreateWallet(ctx, entry.SeedBytes(), entry.PublicKey, true)
	if err != nil {
		return models.EscrowView{}, fault.Network(err)
	}

	rec := Record{
		RecordID:        uuid.NewString(),
		EscrowAccountID: holder.ID.String(),
		BuyerAccountID:  buyer.String(),
		SellerAccountID: seller.String(),
		KeyEntryID:      entry.ID,
		Amount:          amount,
		CreatedAt:       c.now().UTC(),
	}
	if err := c.store.Put(rec); err != nil {
		return models.EscrowView{}, err
	}
	c.log.Info("escrow created",
		"record_id", rec.RecordID, "escrow_account", rec.EscrowAccountID,
		"buyer", rec.BuyerAccountID, "seller", rec.SellerAccountID, "amount", amount)
	return c.view(ctx, rec), nil
}

// Fund moves the buyer's entire vault into one note addressed to the
// escrow holder. The note is not consumed here; the holder's vault
// stays empty until a later consume step.
func (c *Coordinator) Fund(ctx context.Context, escrowRef string) (models.EscrowView, error) {
	rec, holder, err := c.lookup(escrowRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	buyer, err := ledger.ParseAccountID(rec.BuyerAccountID)
	if err != nil {
		return models.EscrowView{}, fmt.Errorf("%w: stored buyer id: %v", fault.ErrDecode, err)
	}
	txID, err := c.notes.Transfer(ctx, buyer, holder, notes.SelectAll)
	if err != nil {
		return models.EscrowView{}, err
	}
	rec.FundTxID = string(txID)
	if err := c.store.Put(rec); err != nil {
		return models.EscrowView{}, err
	}
	c.log.Info("escrow funded", "record_id", rec.RecordID, "tx_id", rec.FundTxID)
	return c.view(ctx, rec), nil
}

// Release settles the escrow to the seller: consume all pending notes,
// resync, then forward the whole vault. Both phases always run in that
// order; a phase-two failure leaves consumed assets in the holder's
// vault and reports overall failure.
func (c *Coordinator) Release(ctx context.Context, escrowRef string) (models.EscrowView, error) {
	rec, holder, err := c.lookup(escrowRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	seller, err := ledger.ParseAccountID(rec.SellerAccountID)
	if err != nil {
		return models.EscrowView{}, fmt.Errorf("%w: stored seller id: %v", fault.ErrDecode, err)
	}
	txID, err := c.settle(ctx, holder, seller)
	if err != nil {
		return models.EscrowView{}, err
	}
	rec.ReleaseTxID = string(txID)
	if err := c.store.Put(rec); err != nil {
		return models.EscrowView{}, err
	}
	c.log.Info("escrow released", "record_id", rec.RecordID, "tx_id", rec.ReleaseTxID)
	return c.view(ctx, rec), nil
}

// Refund settles the escrow back to the buyer with the same two-phase
// structure as Release.
func (c *Coordinator) Refund(ctx context.Context, escrowRef string) (models.EscrowView, error) {
	rec, holder, err := c.lookup(escrowRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	buyer, err := ledger.ParseAccountID(rec.BuyerAccountID)
	if err != nil {
		return models.EscrowView{}, fmt.Errorf("%w: stored buyer id: %v", fault.ErrDecode, err)
	}
	txID, err := c.settle(ctx, holder, buyer)
	if err != nil {
		return models.EscrowView{}, err
	}
	rec.RefundTxID = string(txID)
	if err := c.store.Put(rec); err != nil {
		return models.EscrowView{}, err
	}
	c.log.Info("escrow refunded", "record_id", rec.RecordID, "tx_id", rec.RefundTxID)
	return c.view(ctx, rec), nil
}

// settle is the shared two-phase settlement: consume everything the
// holder can see, resync, then forward the whole vault. The resync
// between phases is mandatory because vault contents only become
// visible after a sync that follows consumption.
func (c *Coordinator) settle(ctx context.Context, holder, destination ledger.AccountID) (ledger.TxID, error) {
	if _, _, err := c.notes.ConsumeAll(ctx, holder); err != nil {
		return "", err
	}
	if _, err := c.client.SyncState(ctx); err != nil {
		return "", fault.Network(err)
	}
	return c.notes.Transfer(ctx, holder, destination, notes.SelectAll)
}

// Get returns one escrow with its derived status.
func (c *Coordinator) Get(ctx context.Context, escrowRef string) (models.EscrowView, error) {
	rec, _, err := c.lookup(escrowRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	return c.view(ctx, rec), nil
}

// List returns every escrow with derived statuses, oldest first.
func (c *Coordinator) List(ctx context.Context) []models.EscrowView {
	records := c.store.List()
	out := make([]models.EscrowView, 0, len(records))
	for _, rec := range records {
		out = append(out, c.view(ctx, rec))
	}
	return out
}

// MarkDisputed flags an escrow; a disputed escrow reports status
// "disputed" until settled.
func (c *Coordinator) MarkDisputed(ctx context.Context, escrowRef string, disputed bool) (models.EscrowView, error) {
	rec, _, err := c.lookup(escrowRef)
	if err != nil {
		return models.EscrowView{}, err
	}
	rec.Disputed = disputed
	if err := c.store.Put(rec); err != nil {
		return models.EscrowView{}, err
	}
	return c.view(ctx, rec), nil
}

func (c *Coordinator) lookup(escrowRef string) (Record, ledger.AccountID, error) {
	holder, err := ledger.ParseAccountID(escrowRef)
	if err != nil {
		return Record{}, ledger.AccountID{}, fmt.Errorf("%w: escrow reference %q: %v", fault.ErrDecode, escrowRef, err)
	}
	rec, err := c.store.Get(holder.String())
	if err != nil {
		return Record{}, ledger.AccountID{}, fmt.Errorf("%w: %s", fault.ErrUnknownAccount, escrowRef)
	}
	return rec, holder, nil
}

// deriveStatus computes the escrow's status from what the ledger shows
// right now plus the recorded settlement transactions. Status is never
// accepted from callers, so it cannot drift from vault and note truth.
func (c *Coordinator) deriveStatus(ctx context.Context, rec Record) string {
	if rec.Disputed {
		return models.EscrowStatusDisputed
	}
	holder, err := ledger.ParseAccountID(rec.EscrowAccountID)
	if err != nil {
		return models.EscrowStatusCreated
	}
	pending, notesErr := c.client.ConsumableNotes(ctx, holder)
	acct, ok, acctErr := c.client.Account(ctx, holder)
	vaultEmpty := acctErr == nil && (!ok || len(acct.Vault) == 0)
	holdsAssets := (notesErr == nil && len(pending) > 0) || (acctErr == nil && ok && len(acct.Vault) > 0)

	switch {
	case rec.ReleaseTxID != "" && vaultEmpty && len(pending) == 0:
		return models.EscrowStatusReleased
	case rec.RefundTxID != "" && vaultEmpty && len(pending) == 0:
		return models.EscrowStatusRefunded
	case holdsAssets:
		return models.EscrowStatusFunded
	case rec.FundTxID != "":
		return models.EscrowStatusFunded
	default:
		return models.EscrowStatusCreated
	}
}

func (c *Coordinator) view(ctx context.Context, rec Record) models.EscrowView {
	return models.EscrowView{
		RecordID:        rec.RecordID,
		EscrowAccountID: rec.EscrowAccountID,
		BuyerAccountID:  rec.BuyerAccountID,
		SellerAccountID: rec.SellerAccountID,
		Amount:          rec.Amount,
		Status:          c.deriveStatus(ctx, rec),
		CreatedAt:       rec.CreatedAt,
		FundTxID:        rec.FundTxID,
		ReleaseTxID:     rec.ReleaseTxID,
		RefundTxID:      rec.RefundTxID,
	}
}
