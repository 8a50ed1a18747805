package escrow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"notegate/go-daemon/internal/securestore"
)

// Record is the durable part of an escrow: identity and transaction
// history. Status is deliberately absent; it is derived from ledger
// observation at read time, never stored.
type Record struct {
	RecordID        string    `json:"record_id"`
	EscrowAccountID string    `json:"escrow_account_id"`
	BuyerAccountID  string    `json:"buyer_account_id"`
	SellerAccountID string    `json:"seller_account_id"`
	KeyEntryID      string    `json:"key_entry_id"`
	Amount          uint64    `json:"amount"`
	CreatedAt       time.Time `json:"created_at"`
	FundTxID        string    `json:"fund_tx_id,omitempty"`
	ReleaseTxID     string    `json:"release_tx_id,omitempty"`
	RefundTxID      string    `json:"refund_tx_id,omitempty"`
	Disputed        bool      `json:"disputed,omitempty"`
}

var ErrRecordNotFound = errors.New("escrow record not found")

// Store keeps escrow records in memory and mirrors every mutation to an
// encrypted snapshot file, keyed by escrow account id.
type Store struct {
	mu         sync.Mutex
	records    map[string]Record
	path       string
	passphrase string
}

func OpenStore(path, passphrase string) (*Store, error) {
	s := &Store{records: make(map[string]Record), path: path, passphrase: passphrase}
	raw, err := securestore.ReadDecryptedFile(path, passphrase)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load escrow snapshot: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode escrow snapshot: %w", err)
	}
	for _, r := range records {
		s.records[r.EscrowAccountID] = r
	}
	return s, nil
}

// Put inserts or replaces a record and persists the snapshot.
func (s *Store) Put(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.EscrowAccountID] = r
	return s.persistLocked()
}

// Get returns the record for an escrow account id.
func (s *Store) Get(escrowAccountID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[escrowAccountID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, escrowAccountID)
	}
	return r, nil
}

// List returns all records ordered by creation time.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) persistLocked() error {
	records := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].RecordID < records[j].RecordID })
	if err := securestore.WriteEncryptedJSON(s.path, s.passphrase, records); err != nil {
		return fmt.Errorf("persist escrow snapshot: %w", err)
	}
	return nil
}
