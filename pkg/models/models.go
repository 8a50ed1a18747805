package models

import "time"

// AssetAmount is a fungible quantity tied to the faucet that issued it.
type AssetAmount struct {
	FaucetID string `json:"faucet_id"`
	Amount   uint64 `json:"amount"`
}

type AccountInfo struct {
	ID       string `json:"id"`
	Role     string `json:"role,omitempty"`
	IsPublic bool   `json:"is_public"`
	IsFaucet bool   `json:"is_faucet,omitempty"`
}

type BalanceInfo struct {
	AccountID   string        `json:"account_id"`
	VaultAssets []AssetAmount `json:"vault_assets"`
	AssetCount  int           `json:"asset_count"`
	IsPublic    bool          `json:"is_public"`
}

const (
	NoteStateConsumable = "consumable"
	NoteStatePending    = "pending"
)

// NoteInfo describes one note visible to an account. State is
// NoteStateConsumable for ledger-confirmed notes and NoteStatePending
// for notes whose id is a synthetic placeholder (not yet
// network-visible).
type NoteInfo struct {
	NoteID string `json:"note_id"`
	State  string `json:"state"`
}

// MintReceipt is the outcome of a mint command. NotePending marks the
// note id as a synthetic placeholder derived from the mint inputs;
// such an id must never be treated as ledger-confirmed.
type MintReceipt struct {
	TransactionID string `json:"transaction_id"`
	NoteID        string `json:"note_id"`
	NotePending   bool   `json:"note_pending"`
}

type TransferReceipt struct {
	TransactionID string `json:"transaction_id"`
}

type ConsumeReceipt struct {
	TransactionID string `json:"transaction_id"`
	NotesConsumed int    `json:"notes_consumed"`
}

const (
	EscrowStatusCreated  = "created"
	EscrowStatusFunded   = "funded"
	EscrowStatusReleased = "released"
	EscrowStatusRefunded = "refunded"
	EscrowStatusDisputed = "disputed"
)

// EscrowView is an escrow record plus its status derived from current
// ledger observation. Status is never stored or accepted from callers.
type EscrowView struct {
	RecordID        string    `json:"record_id"`
	EscrowAccountID string    `json:"escrow_account_id"`
	BuyerAccountID  string    `json:"buyer_account_id"`
	SellerAccountID string    `json:"seller_account_id"`
	Amount          uint64    `json:"amount"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	FundTxID        string    `json:"fund_tx_id,omitempty"`
	ReleaseTxID     string    `json:"release_tx_id,omitempty"`
	RefundTxID      string    `json:"refund_tx_id,omitempty"`
}

type OperationMetric struct {
	Count         int   `json:"count"`
	Errors        int   `json:"errors"`
	AvgLatencyMs  int64 `json:"avg_latency_ms"`
	MaxLatencyMs  int64 `json:"max_latency_ms"`
	LastLatencyMs int64 `json:"last_latency_ms"`
}

type MetricsSnapshot struct {
	ErrorCounters map[string]int             `json:"error_counters"`
	Operations    map[string]OperationMetric `json:"operations"`
	QueueDepth    int                        `json:"queue_depth"`
	LastUpdatedAt time.Time                  `json:"last_updated_at"`
}
