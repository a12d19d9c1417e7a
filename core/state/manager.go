package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"escrownet/core/types"
	"escrownet/storage"
)

// Manager provides typed access to confirmed chain state on top of the raw
// key/value database. All values are RLP encoded under keccak-hashed keys.
// Writes are immediately durable; the node serialises block application, and a
// single mutex here guards the read-modify-write cycles of concurrent readers.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// TokenMetadata describes a token from the genesis registry.
type TokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

var errNilManager = errors.New("state: manager unavailable")

func (m *Manager) getRaw(key []byte) ([]byte, bool, error) {
	value, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// KVPut RLP-encodes the value and stores it under the hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(kvKey(key), encoded)
}

// KVGet decodes the stored value into out, reporting whether the key exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilManager
	}
	m.mu.RLock()
	data, ok, err := m.getRaw(kvKey(key))
	m.mu.RUnlock()
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// RegisterToken adds a token to the registry. Symbols are stored uppercase and
// registration of an existing symbol with different metadata fails.
func (m *Manager) RegisterToken(symbol, name string, decimals uint8) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("state: token symbol required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok, err := m.loadTokenLocked(normalized)
	if err != nil {
		return err
	}
	if ok {
		if existing.Name != name || existing.Decimals != decimals {
			return fmt.Errorf("state: token %s already registered with different metadata", normalized)
		}
		return nil
	}
	meta := &TokenMetadata{Symbol: normalized, Name: name, Decimals: decimals}
	encoded, err := rlp.EncodeToBytes(meta)
	if err != nil {
		return err
	}
	if err := m.db.Put(tokenMetadataKey(normalized), encoded); err != nil {
		return err
	}
	list, err := m.loadTokenListLocked()
	if err != nil {
		return err
	}
	list = append(list, normalized)
	sort.Strings(list)
	return m.writeTokenListLocked(list)
}

// Token returns the metadata for a registered symbol.
func (m *Manager) Token(symbol string) (*TokenMetadata, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, errNilManager
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTokenLocked(strings.ToUpper(strings.TrimSpace(symbol)))
}

// TokenList returns the sorted registered symbols.
func (m *Manager) TokenList() ([]string, error) {
	if m == nil || m.db == nil {
		return nil, errNilManager
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadTokenListLocked()
}

// TokenRegistered reports whether the symbol is part of the registry.
func (m *Manager) TokenRegistered(symbol string) bool {
	_, ok, err := m.Token(symbol)
	return err == nil && ok
}

func (m *Manager) loadTokenLocked(symbol string) (*TokenMetadata, bool, error) {
	data, ok, err := m.getRaw(tokenMetadataKey(symbol))
	if err != nil || !ok {
		return nil, false, err
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, false, fmt.Errorf("state: decode token %s: %w", symbol, err)
	}
	return meta, true, nil
}

func (m *Manager) loadTokenListLocked() ([]string, error) {
	data, ok, err := m.getRaw(tokenListKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	var list []string
	if err := rlp.DecodeBytes(data, &list); err != nil {
		return nil, fmt.Errorf("state: decode token list: %w", err)
	}
	return list, nil
}

func (m *Manager) writeTokenListLocked(list []string) error {
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(tokenListKey, encoded)
}

// RLP has no map support, so account balances persist as a sorted slice.
type storedTokenBalance struct {
	Symbol string
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []storedTokenBalance
}

// GetAccount loads an account, returning a zero-valued account for unknown
// addresses.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	if m == nil || m.db == nil {
		return nil, errNilManager
	}
	m.mu.RLock()
	data, ok, err := m.getRaw(accountKey(addr))
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode account %x: %w", addr, err)
	}
	account := types.NewAccount()
	account.Nonce = stored.Nonce
	for _, balance := range stored.Balances {
		account.SetBalance(balance.Symbol, balance.Amount)
	}
	return account, nil
}

// PutAccount persists the account. Zero balances are dropped from storage.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if m == nil || m.db == nil {
		return errNilManager
	}
	if account == nil {
		account = types.NewAccount()
	}
	stored := &storedAccount{Nonce: account.Nonce, Balances: make([]storedTokenBalance, 0, len(account.Balances))}
	symbols := make([]string, 0, len(account.Balances))
	for symbol := range account.Balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		amount := account.Balance(symbol)
		if amount.Sign() == 0 {
			continue
		}
		stored.Balances = append(stored.Balances, storedTokenBalance{Symbol: symbol, Amount: amount})
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return fmt.Errorf("state: encode account %x: %w", addr, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(accountKey(addr), encoded)
}
