package keystore

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tyler-smith/go-bip39"
)

func TestCreateAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	entry, err := s.Create(rand.Reader)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if entry.ID == "" || len(entry.PublicKey) == 0 {
		t.Fatalf("incomplete entry: %+v", entry)
	}

	reopened, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	got, err := reopened.Get(entry.ID)
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if !bytes.Equal(got.PublicKey, entry.PublicKey) {
		t.Fatal("public key changed across reopen")
	}
	if !got.PrivateKey().Equal(entry.PrivateKey()) {
		t.Fatal("private key changed across reopen")
	}
}

func TestEntryFilesAreEncrypted(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	entry, err := s.Create(rand.Reader)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, entry.ID+".key"))
	if err != nil {
		t.Fatalf("read entry file: %v", err)
	}
	if bytes.Contains(raw, []byte(`"entropy"`)) {
		t.Fatal("entry file stored in plaintext")
	}
	if _, err := Open(dir, "other"); err == nil {
		t.Fatal("expected open with wrong passphrase to fail")
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	entry, err := s.Create(rand.Reader)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	phrase, err := entry.Mnemonic()
	if err != nil {
		t.Fatalf("mnemonic failed: %v", err)
	}
	if words := len(strings.Fields(phrase)); words != 24 {
		t.Fatalf("expected 24-word phrase, got %d words", words)
	}
	if !bip39.IsMnemonicValid(phrase) {
		t.Fatal("exported mnemonic is not valid")
	}

	other, err := Open(t.TempDir(), "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	restored, err := other.Import(phrase)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if restored.ID != entry.ID {
		t.Fatalf("restored id %s, want %s", restored.ID, entry.ID)
	}
	if !bytes.Equal(restored.PublicKey, entry.PublicKey) {
		t.Fatal("restored key does not match original")
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	s, err := Open(t.TempDir(), "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Import("definitely not a mnemonic"); !errors.Is(err, ErrBadMnemonic) {
		t.Fatalf("expected ErrBadMnemonic, got %v", err)
	}
}

func TestGetUnknownEntry(t *testing.T) {
	s, err := Open(t.TempDir(), "pw")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := s.Get("nope"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}
