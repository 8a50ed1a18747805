package ledger

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *MemLedger {
	t.Helper()
	m := NewMemLedger(0)
	base := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return base }
	return m
}

func mustWallet(t *testing.T, m *MemLedger, seedByte byte) Account {
	t.Helper()
	var seed Seed
	seed[0] = seedByte
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	acct, err := m.CreateWallet(context.Background(), seed, pub, true)
	if err != nil {
		t.Fatalf("create wallet failed: %v", err)
	}
	return acct
}

func mustFaucet(t *testing.T, m *MemLedger, seedByte byte) Account {
	t.Helper()
	var seed Seed
	seed[0] = seedByte
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	acct, err := m.CreateFaucet(context.Background(), seed, pub, TokenConfig{Symbol: "PROP", Decimals: 8, MaxSupply: 1_000_000_000})
	if err != nil {
		t.Fatalf("create faucet failed: %v", err)
	}
	return acct
}

func TestMintConsumeMovesAssetsIntoVault(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(t)
	faucet := mustFaucet(t, m, 1)
	wallet := mustWallet(t, m, 2)

	if _, err := m.Submit(ctx, faucet.ID, MintRequest(Asset{Faucet: faucet.ID, Amount: 100}, wallet.ID)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := m.SyncState(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	notes, err := m.ConsumableNotes(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("consumable notes failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if _, err := m.Submit(ctx, wallet.ID, ConsumeRequest([]string{notes[0].ID})); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	acct, ok, err := m.Account(ctx, wallet.ID)
	if err != nil || !ok {
		t.Fatalf("account lookup failed: ok=%v err=%v", ok, err)
	}
	if len(acct.Vault) != 1 || acct.Vault[0].Amount != 100 {
		t.Fatalf("unexpected vault: %+v", acct.Vault)
	}
}

func TestNoteHiddenUntilPropagationDelayElapses(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger(10 * time.Second)
	clock := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return clock }
	faucet := mustFaucet(t, m, 1)
	wallet := mustWallet(t, m, 2)

	if _, err := m.Submit(ctx, faucet.ID, MintRequest(Asset{Faucet: faucet.ID, Amount: 5}, wallet.ID)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := m.SyncState(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	notes, _ := m.ConsumableNotes(ctx, wallet.ID)
	if len(notes) != 0 {
		t.Fatalf("note visible before propagation delay: %+v", notes)
	}

	clock = clock.Add(11 * time.Second)
	if _, err := m.SyncState(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	notes, _ = m.ConsumableNotes(ctx, wallet.ID)
	if len(notes) != 1 {
		t.Fatalf("expected note after delay, got %d", len(notes))
	}
}

func TestConsumeRejectsForeignNote(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(t)
	faucet := mustFaucet(t, m, 1)
	alice := mustWallet(t, m, 2)
	bob := mustWallet(t, m, 3)

	if _, err := m.Submit(ctx, faucet.ID, MintRequest(Asset{Faucet: faucet.ID, Amount: 5}, alice.ID)); err != nil {
		t.Fatalf("mint failed: %v", err)
	}
	if _, err := m.SyncState(ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	notes, _ := m.ConsumableNotes(ctx, alice.ID)
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	if _, err := m.Submit(ctx, bob.ID, ConsumeRequest([]string{notes[0].ID})); err == nil {
		t.Fatal("expected consume of foreign note to fail")
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(t)
	faucet := mustFaucet(t, m, 1)
	alice := mustWallet(t, m, 2)
	bob := mustWallet(t, m, 3)

	req := TransferRequest(alice.ID, bob.ID, []Asset{{Faucet: faucet.ID, Amount: 10}})
	if _, err := m.Submit(ctx, alice.ID, req); err == nil {
		t.Fatal("expected transfer from empty vault to fail")
	}
}

func TestMintEnforcesMaxSupply(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger(t)
	faucet := mustFaucet(t, m, 1)
	wallet := mustWallet(t, m, 2)

	req := MintRequest(Asset{Faucet: faucet.ID, Amount: 2_000_000_000}, wallet.ID)
	if _, err := m.Submit(ctx, faucet.ID, req); err == nil {
		t.Fatal("expected over-supply mint to fail")
	}
}

func TestParseAccountID(t *testing.T) {
	m := newTestLedger(t)
	wallet := mustWallet(t, m, 7)

	parsed, err := ParseAccountID(wallet.ID.String())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != wallet.ID {
		t.Fatalf("round trip mismatch: %s != %s", parsed, wallet.ID)
	}

	if _, err := ParseAccountID("0xzz"); err == nil {
		t.Fatal("expected non-hex id to fail")
	}
	if _, err := ParseAccountID("0xdeadbeef"); err == nil {
		t.Fatal("expected short id to fail")
	}
}
