package escrow

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"notegate/go-daemon/internal/fault"
	"notegate/go-daemon/internal/keystore"
	"notegate/go-daemon/internal/ledger"
	"notegate/go-daemon/internal/notes"
	"notegate/go-daemon/internal/registry"
	"notegate/go-daemon/pkg/models"
)

type fixture struct {
	coord  *Coordinator
	client *ledger.MemLedger
	notes  *notes.Manager
	faucet ledger.Account
	buyer  ledger.Account
	seller ledger.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	client := ledger.NewMemLedger(0)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	faucet, err := client.CreateFaucet(ctx, ledger.Seed{1}, nil, ledger.TokenConfig{Symbol: "PROP", Decimals: 8})
	if err != nil {
		t.Fatalf("create faucet: %v", err)
	}
	buyer, err := client.CreateWallet(ctx, ledger.Seed{2}, nil, true)
	if err != nil {
		t.Fatalf("create buyer: %v", err)
	}
	seller, err := client.CreateWallet(ctx, ledger.Seed{3}, nil, true)
	if err != nil {
		t.Fatalf("create seller: %v", err)
	}

	reg := registry.New()
	reg.SetRole(registry.RoleFaucet, faucet.ID)
	reg.SetRole(registry.RoleBuyer, buyer.ID)
	reg.SetRole(registry.RoleSeller, seller.ID)

	keys, err := keystore.Open(t.TempDir(), "pw")
	if err != nil {
		t.Fatalf("open keystore: %v", err)
	}
	store, err := OpenStore(filepath.Join(t.TempDir(), "escrows.enc"), "pw")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	nm := notes.NewManager(client, log, time.Millisecond, 3)
	coord := NewCoordinator(client, nm, reg, keys, store, rand.Reader, log)
	return &fixture{coord: coord, client: client, notes: nm, faucet: faucet, buyer: buyer, seller: seller}
}

// fundBuyer mints into the buyer's wallet and consumes the note so the
// buyer's vault holds spendable assets.
func (f *fixture) fundBuyer(t *testing.T, amount uint64) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := f.notes.Mint(ctx, f.faucet.ID, f.buyer.ID, amount); err != nil {
		t.Fatalf("mint to buyer: %v", err)
	}
	if _, _, err := f.notes.ConsumeAll(ctx, f.buyer.ID); err != nil {
		t.Fatalf("consume into buyer vault: %v", err)
	}
}

func TestCreateReturnsDistinctAccounts(t *testing.T) {
	f := newFixture(t)
	view, err := f.coord.Create(context.Background(), "buyer", "seller", 100)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if view.Status != models.EscrowStatusCreated {
		t.Fatalf("status = %s, want created", view.Status)
	}
	if view.EscrowAccountID == view.BuyerAccountID ||
		view.EscrowAccountID == view.SellerAccountID ||
		view.BuyerAccountID == view.SellerAccountID {
		t.Fatalf("account ids not pairwise distinct: %+v", view)
	}
	if view.RecordID == "" {
		t.Fatal("empty record id")
	}
}

func TestCreateRejectsZeroAmount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.Create(context.Background(), "buyer", "seller", 0); !errors.Is(err, fault.ErrThresholdNotMet) {
		t.Fatalf("expected ErrThresholdNotMet, got %v", err)
	}
}

func TestCreateRejectsUnresolvableParty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.coord.Create(context.Background(), "escrow-holder", "seller", 10); !errors.Is(err, fault.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized for unbound role, got %v", err)
	}
	if _, err := f.coord.Create(context.Background(), "not-a-ref", "seller", 10); !errors.Is(err, fault.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestFundRequiresBuyerAssets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.coord.Create(ctx, "buyer", "seller", 100)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.coord.Fund(ctx, view.EscrowAccountID); !errors.Is(err, fault.ErrEmptyVault) {
		t.Fatalf("expected ErrEmptyVault, got %v", err)
	}
}

func TestFundMovesVaultAndDerivesFundedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundBuyer(t, 100)

	view, err := f.coord.Create(ctx, "buyer", "seller", 100)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	funded, err := f.coord.Fund(ctx, view.EscrowAccountID)
	if err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	if funded.FundTxID == "" {
		t.Fatal("empty fund tx id")
	}
	if funded.Status != models.EscrowStatusFunded {
		t.Fatalf("status = %s, want funded", funded.Status)
	}
	buyerAcct, _, _ := f.client.Account(ctx, f.buyer.ID)
	if len(buyerAcct.Vault) != 0 {
		t.Fatalf("buyer vault not emptied: %+v", buyerAcct.Vault)
	}
	holder, _ := ledger.ParseAccountID(view.EscrowAccountID)
	holderAcct, _, _ := f.client.Account(ctx, holder)
	if len(holderAcct.Vault) != 0 {
		t.Fatal("funding must not consume the note into the holder vault")
	}
}

func TestReleaseForwardsToSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundBuyer(t, 100)

	view, err := f.coord.Create(ctx, "buyer", "seller", 100)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.coord.Fund(ctx, view.EscrowAccountID); err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	released, err := f.coord.Release(ctx, view.EscrowAccountID)
	if err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if released.ReleaseTxID == "" {
		t.Fatal("empty release tx id")
	}
	if released.Status != models.EscrowStatusReleased {
		t.Fatalf("status = %s, want released", released.Status)
	}
	if _, _, err := f.notes.ConsumeAll(ctx, f.seller.ID); err != nil {
		t.Fatalf("seller consume failed: %v", err)
	}
	sellerAcct, _, _ := f.client.Account(ctx, f.seller.ID)
	if len(sellerAcct.Vault) != 1 || sellerAcct.Vault[0].Amount != 100 {
		t.Fatalf("unexpected seller vault: %+v", sellerAcct.Vault)
	}
}

func TestRefundReturnsToBuyer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundBuyer(t, 42)

	view, err := f.coord.Create(ctx, "buyer", "seller", 42)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.coord.Fund(ctx, view.EscrowAccountID); err != nil {
		t.Fatalf("fund failed: %v", err)
	}
	refunded, err := f.coord.Refund(ctx, view.EscrowAccountID)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.Status != models.EscrowStatusRefunded {
		t.Fatalf("status = %s, want refunded", refunded.Status)
	}
	if _, _, err := f.notes.ConsumeAll(ctx, f.buyer.ID); err != nil {
		t.Fatalf("buyer consume failed: %v", err)
	}
	buyerAcct, _, _ := f.client.Account(ctx, f.buyer.ID)
	if len(buyerAcct.Vault) != 1 || buyerAcct.Vault[0].Amount != 42 {
		t.Fatalf("unexpected buyer vault: %+v", buyerAcct.Vault)
	}
}

func TestReleaseWithoutFundingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.coord.Create(ctx, "buyer", "seller", 10)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.coord.Release(ctx, view.EscrowAccountID); !errors.Is(err, fault.ErrNoConsumableNotes) {
		t.Fatalf("expected ErrNoConsumableNotes, got %v", err)
	}
}

func TestDisputedStatusOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.coord.Create(ctx, "buyer", "seller", 10)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	disputed, err := f.coord.MarkDisputed(ctx, view.EscrowAccountID, true)
	if err != nil {
		t.Fatalf("mark disputed failed: %v", err)
	}
	if disputed.Status != models.EscrowStatusDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}
}

func TestGetUnknownEscrow(t *testing.T) {
	f := newFixture(t)
	var missing ledger.AccountID
	missing[0] = 0x99
	if _, err := f.coord.Get(context.Background(), missing.String()); !errors.Is(err, fault.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if _, err := f.coord.Get(context.Background(), "garbage"); !errors.Is(err, fault.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestListSurvivesReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.coord.Create(ctx, "buyer", "seller", 5)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	path := f.coord.store.path
	reopened, err := OpenStore(path, "pw")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	records := reopened.List()
	if len(records) != 1 || records[0].RecordID != first.RecordID {
		t.Fatalf("unexpected records after reopen: %+v", records)
	}
}
