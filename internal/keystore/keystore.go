// Package keystore persists the signing keys the daemon creates for its
// role and escrow accounts. Each key lives in its own encrypted file so
// a single corrupted entry cannot take the others down with it.
package keystore

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"

	"notegate/go-daemon/internal/securestore"
)

const entryIDBytes = 12

var (
	ErrEntryNotFound = errors.New("keystore entry not found")
	ErrBadMnemonic   = errors.New("mnemonic is not valid")
)

// Entry is one stored signing key. Entropy doubles as the ed25519 seed
// and as the source of the BIP-39 recovery mnemonic.
type Entry struct {
	ID        string
	PublicKey ed25519.PublicKey
	entropy   []byte
}

func (e Entry) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(e.entropy)
}

// SeedBytes returns the raw 32-byte entropy, used as account-build
// seed material by the ledger client.
func (e Entry) SeedBytes() [32]byte {
	var out [32]byte
	copy(out[:], e.entropy)
	return out
}

// Mnemonic renders the entry's entropy as a BIP-39 recovery phrase.
func (e Entry) Mnemonic() (string, error) {
	return bip39.NewMnemonic(e.entropy)
}

type entryFile struct {
	ID        string    `json:"id"`
	Entropy   []byte    `json:"entropy"`
	PublicKey []byte    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a directory of encrypted key entries. It is owned by the
// actor worker and is not safe for concurrent use.
type Store struct {
	dir        string
	passphrase string
	entries    map[string]Entry
}

// Open loads every entry under dir. An empty passphrase stores entries
// as plaintext, which is only acceptable for throwaway setups.
func Open(dir, passphrase string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	s := &Store{dir: dir, passphrase: passphrase, entries: make(map[string]Entry)}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.IsDir() || !strings.HasSuffix(item.Name(), ".key") {
			continue
		}
		entry, err := s.loadEntry(filepath.Join(dir, item.Name()))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", item.Name(), err)
		}
		s.entries[entry.ID] = entry
	}
	return s, nil
}

// Create generates a fresh key from rng and persists it. The caller
// supplies rng so all randomness in the daemon flows from one owned
// source.
func (s *Store) Create(rng io.Reader) (Entry, error) {
	entropy := make([]byte, 32)
	if _, err := io.ReadFull(rng, entropy); err != nil {
		return Entry{}, fmt.Errorf("read entropy: %w", err)
	}
	return s.add(entropy)
}

// Import restores a key from a BIP-39 recovery phrase.
func (s *Store) Import(mnemonic string) (Entry, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Entry{}, ErrBadMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrBadMnemonic, err)
	}
	if len(entropy) != 32 {
		return Entry{}, fmt.Errorf("%w: need a 24-word phrase", ErrBadMnemonic)
	}
	return s.add(entropy)
}

func (s *Store) add(entropy []byte) (Entry, error) {
	priv := ed25519.NewKeyFromSeed(entropy)
	pub := priv.Public().(ed25519.PublicKey)
	entry := Entry{ID: entryID(pub), PublicKey: pub, entropy: entropy}
	if existing, ok := s.entries[entry.ID]; ok {
		return existing, nil
	}
	ef := entryFile{ID: entry.ID, Entropy: entropy, PublicKey: pub, CreatedAt: time.Now().UTC()}
	if err := securestore.WriteEncryptedJSON(s.entryPath(entry.ID), s.passphrase, ef); err != nil {
		return Entry{}, fmt.Errorf("persist key entry: %w", err)
	}
	s.entries[entry.ID] = entry
	return entry, nil
}

// Get returns a stored entry by id.
func (s *Store) Get(id string) (Entry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return entry, nil
}

// Len reports how many entries the store holds.
func (s *Store) Len() int {
	return len(s.entries)
}

func (s *Store) loadEntry(path string) (Entry, error) {
	raw, err := securestore.ReadDecryptedFile(path, s.passphrase)
	if err != nil {
		return Entry{}, err
	}
	ef, err := decodeEntryFile(raw)
	if err != nil {
		return Entry{}, err
	}
	if len(ef.Entropy) != 32 {
		return Entry{}, fmt.Errorf("entry %s has %d-byte entropy", ef.ID, len(ef.Entropy))
	}
	priv := ed25519.NewKeyFromSeed(ef.Entropy)
	pub := priv.Public().(ed25519.PublicKey)
	if entryID(pub) != ef.ID {
		return Entry{}, fmt.Errorf("entry id %s does not match its key material", ef.ID)
	}
	return Entry{ID: ef.ID, PublicKey: pub, entropy: ef.Entropy}, nil
}

func decodeEntryFile(raw []byte) (entryFile, error) {
	var ef entryFile
	if err := json.Unmarshal(raw, &ef); err != nil {
		return entryFile{}, fmt.Errorf("decode key entry: %w", err)
	}
	return ef, nil
}

func (s *Store) entryPath(id string) string {
	return filepath.Join(s.dir, id+".key")
}

func entryID(pub ed25519.PublicKey) string {
	sum := blake2b.Sum256(pub)
	return base58.Encode(sum[:entryIDBytes])
}
