package state

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"escrownet/native/escrow"
)

// storedInstance is the RLP image of an escrow instance. RLP carries no signed
// integers, so durations and timestamps persist as uint64; the engine only
// produces non-negative values for them.
type storedInstance struct {
	Token string

	Maker     [20]byte
	Judge     [20]byte
	Payer     [20]byte
	Recipient [20]byte

	OrderDuration uint64
	JudgeDuration uint64

	Order            *big.Int
	RecipientDeposit *big.Int
	JudgeDeposit     *big.Int
	Fee              *big.Int
	Refund           *big.Int

	ForfeitRecipientDeposit bool
	SplitPayerBps           uint32

	Phase      uint8
	DisputedBy uint8

	CreatedAt     uint64
	PhaseDeadline uint64
}

func toStoredInstance(i *escrow.Instance) *storedInstance {
	return &storedInstance{
		Token:                   i.Token,
		Maker:                   i.Maker,
		Judge:                   i.Judge,
		Payer:                   i.Payer,
		Recipient:               i.Recipient,
		OrderDuration:           uint64(i.OrderDuration),
		JudgeDuration:           uint64(i.JudgeDuration),
		Order:                   i.Amounts.Order,
		RecipientDeposit:        i.Amounts.RecipientDeposit,
		JudgeDeposit:            i.Amounts.JudgeDeposit,
		Fee:                     i.Amounts.Fee,
		Refund:                  i.Amounts.Refund,
		ForfeitRecipientDeposit: i.Policy.ForfeitRecipientDeposit,
		SplitPayerBps:           i.Policy.SplitPayerBps,
		Phase:                   uint8(i.Phase),
		DisputedBy:              uint8(i.DisputedBy),
		CreatedAt:               uint64(i.CreatedAt),
		PhaseDeadline:           uint64(i.PhaseDeadline),
	}
}

func (s *storedInstance) toInstance(id [32]byte) *escrow.Instance {
	return &escrow.Instance{
		ID:            id,
		Token:         s.Token,
		Maker:         s.Maker,
		Judge:         s.Judge,
		Payer:         s.Payer,
		Recipient:     s.Recipient,
		OrderDuration: int64(s.OrderDuration),
		JudgeDuration: int64(s.JudgeDuration),
		Amounts: escrow.Amounts{
			Order:            s.Order,
			RecipientDeposit: s.RecipientDeposit,
			JudgeDeposit:     s.JudgeDeposit,
			Fee:              s.Fee,
			Refund:           s.Refund,
		},
		Policy: escrow.ResolutionPolicy{
			ForfeitRecipientDeposit: s.ForfeitRecipientDeposit,
			SplitPayerBps:           s.SplitPayerBps,
		},
		Phase:         escrow.Phase(s.Phase),
		DisputedBy:    escrow.Role(s.DisputedBy),
		CreatedAt:     int64(s.CreatedAt),
		PhaseDeadline: int64(s.PhaseDeadline),
	}
}

// InstancePut persists an escrow instance after sanitising it.
func (m *Manager) InstancePut(i *escrow.Instance) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	sanitized, err := escrow.Sanitize(i)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(toStoredInstance(sanitized))
	if err != nil {
		return fmt.Errorf("state: encode instance %x: %w", sanitized.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(instanceKey(sanitized.ID), encoded)
}

// InstanceGet loads an escrow instance snapshot by identifier.
func (m *Manager) InstanceGet(id [32]byte) (*escrow.Instance, bool) {
	if m == nil || m.db == nil {
		return nil, false
	}
	m.mu.RLock()
	data, ok, err := m.getRaw(instanceKey(id))
	m.mu.RUnlock()
	if err != nil || !ok {
		return nil, false
	}
	stored := new(storedInstance)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	return stored.toInstance(id), true
}

func (m *Manager) ledgerBalanceLocked(id [32]byte, role escrow.Role) (*big.Int, error) {
	data, ok, err := m.getRaw(ledgerKey(id, uint8(role)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, fmt.Errorf("state: decode ledger %x/%s: %w", id, role, err)
	}
	return balance, nil
}

func (m *Manager) ledgerWriteLocked(id [32]byte, role escrow.Role, balance *big.Int) error {
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return err
	}
	return m.db.Put(ledgerKey(id, uint8(role)), encoded)
}

// LedgerCredit adds to a role bucket.
func (m *Manager) LedgerCredit(id [32]byte, role escrow.Role, amt *big.Int) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if amt == nil || amt.Sign() < 0 {
		return escrow.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.ledgerBalanceLocked(id, role)
	if err != nil {
		return err
	}
	return m.ledgerWriteLocked(id, role, balance.Add(balance, amt))
}

// LedgerDebit subtracts from a role bucket, guarding against overdrafts.
func (m *Manager) LedgerDebit(id [32]byte, role escrow.Role, amt *big.Int) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if amt == nil || amt.Sign() < 0 {
		return escrow.ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.ledgerBalanceLocked(id, role)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: bucket %s holds %s", escrow.ErrInsufficientBalance, role, balance)
	}
	return m.ledgerWriteLocked(id, role, balance.Sub(balance, amt))
}

// LedgerTransfer moves value between two buckets of the same instance.
func (m *Manager) LedgerTransfer(id [32]byte, from, to escrow.Role, amt *big.Int) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if amt == nil || amt.Sign() < 0 {
		return escrow.ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src, err := m.ledgerBalanceLocked(id, from)
	if err != nil {
		return err
	}
	if src.Cmp(amt) < 0 {
		return fmt.Errorf("%w: bucket %s holds %s", escrow.ErrInsufficientBalance, from, src)
	}
	dst, err := m.ledgerBalanceLocked(id, to)
	if err != nil {
		return err
	}
	if err := m.ledgerWriteLocked(id, from, src.Sub(src, amt)); err != nil {
		return err
	}
	return m.ledgerWriteLocked(id, to, dst.Add(dst, amt))
}

// LedgerBalance reads the current balance of a role bucket.
func (m *Manager) LedgerBalance(id [32]byte, role escrow.Role) (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, errNilManager
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledgerBalanceLocked(id, role)
}

// LedgerWithdrawAll zeroes a role bucket and returns the drained amount.
func (m *Manager) LedgerWithdrawAll(id [32]byte, role escrow.Role) (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, errNilManager
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, err := m.ledgerBalanceLocked(id, role)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := m.ledgerWriteLocked(id, role, big.NewInt(0)); err != nil {
		return nil, err
	}
	return balance, nil
}

// VaultAddress derives the deterministic custody address for a token. Vault
// accounts hold every escrowed unit of the token while instances are live.
func (m *Manager) VaultAddress(token string) ([20]byte, error) {
	if m == nil || m.db == nil {
		return [20]byte{}, errNilManager
	}
	if !m.TokenRegistered(token) {
		return [20]byte{}, fmt.Errorf("%w: %s", escrow.ErrUnsupportedToken, token)
	}
	digest := ethcrypto.Keccak256(vaultPrefix, []byte(token))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}
