package ledger

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// MemLedger is an in-process ledger backend used when no real network
// client is linked in. It models the one property callers must cope
// with: a minted note is not visible until the network has propagated
// it, so freshly minted notes stay hidden until PropagationDelay has
// elapsed and a SyncState call has run.
//
// MemLedger is intentionally NOT safe for concurrent use, matching the
// contract of the real client it stands in for.
type MemLedger struct {
	// PropagationDelay is how long a submitted note stays invisible
	// to ConsumableNotes. Zero means notes appear on the next sync.
	PropagationDelay time.Duration

	now      func() time.Time
	height   BlockHeight
	accounts map[AccountID]*memAccount
	notes    map[string]*memNote
	seq      uint64
}

type memAccount struct {
	account Account
	authKey ed25519.PublicKey
	token   TokenConfig
	minted  uint64
}

type memNote struct {
	note      Note
	visibleAt time.Time
	visible   bool
	consumed  bool
}

func NewMemLedger(propagationDelay time.Duration) *MemLedger {
	return &MemLedger{
		PropagationDelay: propagationDelay,
		now:              time.Now,
		accounts:         make(map[AccountID]*memAccount),
		notes:            make(map[string]*memNote),
	}
}

func (m *MemLedger) SyncState(ctx context.Context) (BlockHeight, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.height++
	now := m.now()
	for _, n := range m.notes {
		if !n.visible && !now.Before(n.visibleAt) {
			n.visible = true
		}
	}
	return m.height, nil
}

func (m *MemLedger) CreateWallet(ctx context.Context, seed Seed, authKey ed25519.PublicKey, public bool) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	id := m.newAccountID(seed, "wallet")
	acct := Account{ID: id, Public: public}
	m.accounts[id] = &memAccount{account: acct, authKey: authKey}
	return acct, nil
}

func (m *MemLedger) CreateFaucet(ctx context.Context, seed Seed, authKey ed25519.PublicKey, token TokenConfig) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	id := m.newAccountID(seed, "faucet")
	acct := Account{ID: id, Public: true, Faucet: true}
	m.accounts[id] = &memAccount{account: acct, authKey: authKey, token: token}
	return acct, nil
}

func (m *MemLedger) Account(ctx context.Context, id AccountID) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}
	entry, ok := m.accounts[id]
	if !ok {
		return Account{}, false, nil
	}
	acct := entry.account
	acct.Vault = append([]Asset(nil), entry.account.Vault...)
	return acct, true, nil
}

func (m *MemLedger) ConsumableNotes(ctx context.Context, id AccountID) ([]Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Note
	for _, n := range m.notes {
		if n.visible && !n.consumed && n.note.Target == id {
			out = append(out, n.note)
		}
	}
	return out, nil
}

func (m *MemLedger) Submit(ctx context.Context, executor AccountID, req TransactionRequest) (TxID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	exec, ok := m.accounts[executor]
	if !ok {
		return "", fmt.Errorf("executor %s is not tracked", executor)
	}
	switch req.Kind {
	case RequestMint:
		return m.applyMint(exec, req.Mint)
	case RequestConsume:
		return m.applyConsume(exec, req.Consume)
	case RequestTransfer:
		return m.applyTransfer(exec, req.Transfer)
	default:
		return "", fmt.Errorf("unsupported request kind %d", req.Kind)
	}
}

func (m *MemLedger) applyMint(exec *memAccount, p *MintPayload) (TxID, error) {
	if p == nil {
		return "", fmt.Errorf("mint payload missing")
	}
	if !exec.account.Faucet {
		return "", fmt.Errorf("account %s is not a faucet", exec.account.ID)
	}
	if p.Asset.Faucet != exec.account.ID {
		return "", fmt.Errorf("asset faucet %s does not match executor %s", p.Asset.Faucet, exec.account.ID)
	}
	if exec.token.MaxSupply > 0 && exec.minted+p.Asset.Amount > exec.token.MaxSupply {
		return "", fmt.Errorf("mint exceeds max supply of %d", exec.token.MaxSupply)
	}
	exec.minted += p.Asset.Amount
	m.addNote(exec.account.ID, p.Target, []Asset{p.Asset})
	return m.newTxID("mint"), nil
}

func (m *MemLedger) applyConsume(exec *memAccount, p *ConsumePayload) (TxID, error) {
	if p == nil || len(p.NoteIDs) == 0 {
		return "", fmt.Errorf("consume payload missing note ids")
	}
	for _, id := range p.NoteIDs {
		n, ok := m.notes[id]
		if !ok || !n.visible || n.consumed {
			return "", fmt.Errorf("note %s is not consumable", id)
		}
		if n.note.Target != exec.account.ID {
			return "", fmt.Errorf("note %s is not addressed to %s", id, exec.account.ID)
		}
	}
	for _, id := range p.NoteIDs {
		n := m.notes[id]
		n.consumed = true
		for _, a := range n.note.Assets {
			addAsset(&exec.account.Vault, a)
		}
	}
	return m.newTxID("consume"), nil
}

func (m *MemLedger) applyTransfer(exec *memAccount, p *TransferPayload) (TxID, error) {
	if p == nil || len(p.Assets) == 0 {
		return "", fmt.Errorf("transfer payload missing assets")
	}
	if p.Sender != exec.account.ID {
		return "", fmt.Errorf("transfer sender %s does not match executor %s", p.Sender, exec.account.ID)
	}
	for _, a := range p.Assets {
		if err := removeAsset(&exec.account.Vault, a); err != nil {
			return "", err
		}
	}
	m.addNote(exec.account.ID, p.Target, p.Assets)
	return m.newTxID("transfer"), nil
}

func (m *MemLedger) addNote(sender, target AccountID, assets []Asset) {
	id := m.newNoteID(sender, target)
	m.notes[id] = &memNote{
		note:      Note{ID: id, Sender: sender, Target: target, Assets: append([]Asset(nil), assets...)},
		visibleAt: m.now().Add(m.PropagationDelay),
	}
}

func (m *MemLedger) newAccountID(seed Seed, kind string) AccountID {
	sum := blake2b.Sum256(append(seed[:], kind...))
	var id AccountID
	copy(id[:], sum[:])
	return id
}

func (m *MemLedger) newNoteID(sender, target AccountID) string {
	return "0x" + hex.EncodeToString(m.digest("note", sender, target))
}

func (m *MemLedger) newTxID(kind string) TxID {
	return TxID("0x" + hex.EncodeToString(m.digest(kind, AccountID{}, AccountID{})))
}

func (m *MemLedger) digest(kind string, a, b AccountID) []byte {
	m.seq++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], m.seq)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(kind))
	h.Write(a[:])
	h.Write(b[:])
	h.Write(buf[:])
	return h.Sum(nil)
}

func addAsset(vault *[]Asset, a Asset) {
	for i := range *vault {
		if (*vault)[i].Faucet == a.Faucet {
			(*vault)[i].Amount += a.Amount
			return
		}
	}
	*vault = append(*vault, a)
}

func removeAsset(vault *[]Asset, a Asset) error {
	for i := range *vault {
		if (*vault)[i].Faucet != a.Faucet {
			continue
		}
		if (*vault)[i].Amount < a.Amount {
			return fmt.Errorf("insufficient balance for faucet %s", a.Faucet)
		}
		(*vault)[i].Amount -= a.Amount
		if (*vault)[i].Amount == 0 {
			*vault = append((*vault)[:i], (*vault)[i+1:]...)
		}
		return nil
	}
	return fmt.Errorf("no asset from faucet %s in vault", a.Faucet)
}
