// Package ledger defines the contract of the external ledger client the
// daemon drives. The client is not safe for concurrent use; every
// implementation assumes a single caller (the actor worker).
package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AccountIDSize is the length of a binary account identifier.
const AccountIDSize = 15

type AccountID [AccountIDSize]byte

func (id AccountID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id AccountID) IsZero() bool {
	return id == AccountID{}
}

var ErrBadAccountID = errors.New("malformed account id")

// ParseAccountID decodes a hex-encoded identifier with an optional 0x
// prefix into its fixed-length binary form.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %v", ErrBadAccountID, err)
	}
	if len(raw) != AccountIDSize {
		return AccountID{}, fmt.Errorf("%w: got %d bytes, want %d", ErrBadAccountID, len(raw), AccountIDSize)
	}
	var id AccountID
	copy(id[:], raw)
	return id, nil
}

// Asset is a fungible amount issued by a faucet account.
type Asset struct {
	Faucet AccountID
	Amount uint64
}

type Account struct {
	ID     AccountID
	Public bool
	Faucet bool
	Vault  []Asset
}

// Note is a bearer record addressed to a target account. It must be
// consumed before its assets appear in the target's vault.
type Note struct {
	ID     string
	Sender AccountID
	Target AccountID
	Assets []Asset
}

type TxID string

type BlockHeight uint64

// Seed is the signing-key seed registered for a freshly built account.
type Seed [32]byte

// TokenConfig describes the fungible token a faucet account issues.
type TokenConfig struct {
	Symbol    string
	Decimals  uint8
	MaxSupply uint64
}

type RequestKind int

const (
	RequestMint RequestKind = iota + 1
	RequestConsume
	RequestTransfer
)

// TransactionRequest is the closed set of transaction shapes the daemon
// submits. Exactly one payload field is set, matching Kind.
type TransactionRequest struct {
	Kind     RequestKind
	Mint     *MintPayload
	Consume  *ConsumePayload
	Transfer *TransferPayload
}

type MintPayload struct {
	Asset  Asset
	Target AccountID
}

type ConsumePayload struct {
	NoteIDs []string
}

type TransferPayload struct {
	Sender AccountID
	Target AccountID
	Assets []Asset
}

func MintRequest(asset Asset, target AccountID) TransactionRequest {
	return TransactionRequest{Kind: RequestMint, Mint: &MintPayload{Asset: asset, Target: target}}
}

func ConsumeRequest(noteIDs []string) TransactionRequest {
	return TransactionRequest{Kind: RequestConsume, Consume: &ConsumePayload{NoteIDs: noteIDs}}
}

func TransferRequest(sender, target AccountID, assets []Asset) TransactionRequest {
	return TransactionRequest{Kind: RequestTransfer, Transfer: &TransferPayload{Sender: sender, Target: target, Assets: assets}}
}

// Client is the externally supplied ledger client. Account building,
// signing and transaction assembly happen behind this interface; the
// daemon only sequences calls against it.
type Client interface {
	// SyncState refreshes local client state from the network and
	// returns the latest block height.
	SyncState(ctx context.Context) (BlockHeight, error)

	// CreateWallet builds and registers a new basic wallet account
	// authenticated by the given public key.
	CreateWallet(ctx context.Context, seed Seed, authKey ed25519.PublicKey, public bool) (Account, error)

	// CreateFaucet builds and registers a fungible faucet account.
	CreateFaucet(ctx context.Context, seed Seed, authKey ed25519.PublicKey, token TokenConfig) (Account, error)

	// Account returns the current state of a tracked account.
	Account(ctx context.Context, id AccountID) (Account, bool, error)

	// ConsumableNotes lists notes visible and spendable by an account.
	ConsumableNotes(ctx context.Context, id AccountID) ([]Note, error)

	// Submit executes and submits one transaction on behalf of the
	// executor account, returning the transaction id.
	Submit(ctx context.Context, executor AccountID, req TransactionRequest) (TxID, error)
}
