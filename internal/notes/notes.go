// Package notes implements note lifecycle operations over the ledger
// client: minting with propagation-delay discovery, listing consumable
// notes, all-or-nothing consumption, and vault forwarding.
package notes

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"notegate/go-daemon/internal/fault"
	"notegate/go-daemon/internal/ledger"
)

// DiscoveryState classifies the note identifier returned by Mint.
type DiscoveryState int

const (
	// DiscoveryFound means the note was observed on the ledger and the
	// identifier is real.
	DiscoveryFound DiscoveryState = iota + 1
	// DiscoveryPendingSynthetic means the note was not observed within
	// the poll budget; the identifier is a deterministic placeholder
	// derived from the mint inputs and must not be treated as
	// ledger-confirmed.
	DiscoveryPendingSynthetic
	// DiscoveryNotFound means the poll budget was exhausted and no
	// placeholder was requested.
	DiscoveryNotFound
)

// Discovery is the outcome of the post-mint note search.
type Discovery struct {
	State  DiscoveryState
	NoteID string
}

// Selection picks which assets a transfer forwards from the source
// vault.
type Selection int

const (
	// SelectAll forwards the entire vault in one note.
	SelectAll Selection = iota + 1
	// SelectFirstAsset forwards the full balance of the vault's first
	// asset only.
	SelectFirstAsset
)

// Listing pairs ledger-confirmed consumable notes with synthetic
// placeholder ids from mints whose notes are still propagating.
type Listing struct {
	Confirmed []ledger.Note
	Pending   []string
}

// pendingMint remembers a mint whose note was not discovered within the
// poll budget. known holds the note ids visible to the target before
// the mint, so a later listing can tell the minted note apart.
type pendingMint struct {
	target ledger.AccountID
	noteID string
	known  map[string]struct{}
}

// Manager drives note operations through a single ledger client. It is
// owned by the actor worker and is not safe for concurrent use.
type Manager struct {
	client       ledger.Client
	log          *slog.Logger
	pollInterval time.Duration
	pollAttempts int
	sleep        func(ctx context.Context, d time.Duration) error
	pending      []pendingMint
}

func NewManager(client ledger.Client, log *slog.Logger, pollInterval time.Duration, pollAttempts int) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if pollAttempts <= 0 {
		pollAttempts = 5
	}
	return &Manager{
		client:       client,
		log:          log,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Mint submits a minting transaction from faucet to target, then polls
// for the resulting note. Each poll round waits, resyncs and queries
// the target's consumable notes; if the budget runs out the returned
// Discovery carries a synthetic placeholder id.
func (m *Manager) Mint(ctx context.Context, faucet, target ledger.AccountID, amount uint64) (ledger.TxID, Discovery, error) {
	before, err := m.client.ConsumableNotes(ctx, target)
	if err != nil {
		return "", Discovery{}, fault.Network(err)
	}
	known := make(map[string]struct{}, len(before))
	for _, n := range before {
		known[n.ID] = struct{}{}
	}

	asset := ledger.Asset{Faucet: faucet, Amount: amount}
	txID, err := m.client.Submit(ctx, faucet, ledger.MintRequest(asset, target))
	if err != nil {
		return "", Discovery{}, fault.Network(err)
	}

	for attempt := 1; attempt <= m.pollAttempts; attempt++ {
		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return txID, Discovery{}, err
		}
		if _, err := m.client.SyncState(ctx); err != nil {
			return txID, Discovery{}, fault.Network(err)
		}
		current, err := m.client.ConsumableNotes(ctx, target)
		if err != nil {
			return txID, Discovery{}, fault.Network(err)
		}
		for _, n := range current {
			if _, seen := known[n.ID]; !seen {
				m.log.Debug("minted note discovered", "note_id", n.ID, "attempts", attempt)
				return txID, Discovery{State: DiscoveryFound, NoteID: n.ID}, nil
			}
		}
	}

	synthetic := syntheticNoteID(faucet, target, amount, txID)
	m.pending = append(m.pending, pendingMint{target: target, noteID: synthetic, known: known})
	m.log.Warn("minted note not yet visible, returning synthetic id",
		"tx_id", string(txID), "synthetic_note_id", synthetic, "attempts", m.pollAttempts)
	return txID, Discovery{State: DiscoveryPendingSynthetic, NoteID: synthetic}, nil
}

// Consumable resyncs and lists all notes the account can consume.
func (m *Manager) Consumable(ctx context.Context, account ledger.AccountID) ([]ledger.Note, error) {
	if _, err := m.client.SyncState(ctx); err != nil {
		return nil, fault.Network(err)
	}
	found, err := m.client.ConsumableNotes(ctx, account)
	if err != nil {
		return nil, fault.Network(err)
	}
	return found, nil
}

// ListConsumable resyncs and lists the account's notes: confirmed
// consumable ones plus synthetic placeholders for mints whose notes
// have not surfaced yet. A placeholder is retired as soon as a note
// unknown at mint time becomes visible to the target; that note is
// assumed to be the minted one.
func (m *Manager) ListConsumable(ctx context.Context, account ledger.AccountID) (Listing, error) {
	found, err := m.Consumable(ctx, account)
	if err != nil {
		return Listing{}, err
	}
	listing := Listing{Confirmed: found}
	kept := m.pending[:0]
	for _, p := range m.pending {
		if p.target != account {
			kept = append(kept, p)
			continue
		}
		resolved := false
		for _, n := range found {
			if _, seen := p.known[n.ID]; !seen {
				resolved = true
				break
			}
		}
		if resolved {
			m.log.Debug("pending minted note surfaced", "synthetic_note_id", p.noteID)
			continue
		}
		listing.Pending = append(listing.Pending, p.noteID)
		kept = append(kept, p)
	}
	m.pending = kept
	return listing, nil
}

// ConsumeAll consumes every consumable note of the account in one
// aggregate transaction. There is no per-note selection: either all
// pending notes are consumed or the call fails.
func (m *Manager) ConsumeAll(ctx context.Context, account ledger.AccountID) (ledger.TxID, int, error) {
	found, err := m.Consumable(ctx, account)
	if err != nil {
		return "", 0, err
	}
	if len(found) == 0 {
		return "", 0, fmt.Errorf("%w: account %s", fault.ErrNoConsumableNotes, account)
	}
	ids := make([]string, len(found))
	for i, n := range found {
		ids[i] = n.ID
	}
	txID, err := m.client.Submit(ctx, account, ledger.ConsumeRequest(ids))
	if err != nil {
		return "", 0, fault.Network(err)
	}
	if _, err := m.client.SyncState(ctx); err != nil {
		return "", 0, fault.Network(err)
	}
	m.log.Info("consumed notes", "account", account.String(), "count", len(ids), "tx_id", string(txID))
	return txID, len(ids), nil
}

// Transfer forwards assets from the source vault to destination as one
// note. Selection decides whether the whole vault or only the first
// asset moves; there is no partial-amount splitting.
func (m *Manager) Transfer(ctx context.Context, source, destination ledger.AccountID, sel Selection) (ledger.TxID, error) {
	if _, err := m.client.SyncState(ctx); err != nil {
		return "", fault.Network(err)
	}
	acct, ok, err := m.client.Account(ctx, source)
	if err != nil {
		return "", fault.Network(err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", fault.ErrUnknownAccount, source)
	}
	if len(acct.Vault) == 0 {
		return "", fmt.Errorf("%w: account %s", fault.ErrEmptyVault, source)
	}

	assets := acct.Vault
	if sel == SelectFirstAsset {
		assets = acct.Vault[:1]
	}
	txID, err := m.client.Submit(ctx, source, ledger.TransferRequest(source, destination, assets))
	if err != nil {
		return "", fault.Network(err)
	}
	m.log.Info("forwarded vault assets",
		"source", source.String(), "destination", destination.String(),
		"assets", len(assets), "tx_id", string(txID))
	return txID, nil
}

// syntheticNoteID derives a placeholder note id from the mint inputs so
// repeated discovery failures for the same mint produce the same id.
func syntheticNoteID(faucet, target ledger.AccountID, amount uint64, txID ledger.TxID) string {
	var amt [8]byte
	binary.BigEndian.PutUint64(amt[:], amount)
	h, _ := blake2b.New256(nil)
	h.Write(faucet[:])
	h.Write(target[:])
	h.Write(amt[:])
	h.Write([]byte(txID))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
