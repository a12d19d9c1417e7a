package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"escrownet/core/state"
	"escrownet/core/types"
	"escrownet/crypto"
)

// GenesisSpec describes the initial chain state: the token registry, opening
// account balances and the address that collects fees and forfeited deposits.
type GenesisSpec struct {
	GenesisTime string                       `json:"genesisTime"`
	ChainID     *uint64                      `json:"chainId,omitempty"`
	Tokens      []TokenSpec                  `json:"tokens"`
	Alloc       map[string]map[string]string `json:"alloc"` // addr -> token -> amount
	FeeTreasury string                       `json:"feeTreasury"`

	genesisTimestamp time.Time
	treasuryAddr     [20]byte
}

// TokenSpec declares a token available for denominating escrow instances.
type TokenSpec struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// LoadGenesisSpec reads and validates a genesis file. Unknown fields are
// rejected so typos fail loudly at startup.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a genesis document.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// GenesisTimestamp returns the parsed genesis time.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// FeeTreasuryAddress returns the decoded treasury address.
func (s *GenesisSpec) FeeTreasuryAddress() [20]byte { return s.treasuryAddr }

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if len(s.Tokens) == 0 {
		return fmt.Errorf("at least one token must be declared")
	}
	tokenSymbols := make(map[string]struct{}, len(s.Tokens))
	for i := range s.Tokens {
		if err := s.Tokens[i].validate(); err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		key := strings.ToUpper(strings.TrimSpace(s.Tokens[i].Symbol))
		if _, exists := tokenSymbols[key]; exists {
			return fmt.Errorf("tokens[%d]: duplicate symbol %q", i, s.Tokens[i].Symbol)
		}
		tokenSymbols[key] = struct{}{}
	}

	trimmedTreasury := strings.TrimSpace(s.FeeTreasury)
	if trimmedTreasury == "" {
		return fmt.Errorf("feeTreasury must be provided")
	}
	treasury, err := crypto.DecodeAddress(trimmedTreasury)
	if err != nil {
		return fmt.Errorf("feeTreasury: %w", err)
	}
	s.treasuryAddr = treasury.Array()

	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		if _, err := crypto.DecodeAddress(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		for symbol, amount := range s.Alloc[account] {
			key := strings.ToUpper(strings.TrimSpace(symbol))
			if _, exists := tokenSymbols[key]; !exists {
				return fmt.Errorf("alloc[%q][%q]: undefined token", account, symbol)
			}
			parsed, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
			if !ok || parsed.Sign() < 0 {
				return fmt.Errorf("alloc[%q][%q]: invalid amount %q", account, symbol, amount)
			}
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol must be provided")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name must be provided")
	}
	if t.Decimals > 18 {
		return fmt.Errorf("decimals must be 18 or fewer")
	}
	return nil
}

// genesisAppliedKey marks a store whose opening balances have already been
// written. Allocations apply exactly once; balances move afterwards and must
// never be reset by a restart.
var genesisAppliedKey = []byte("genesis/applied")

// Apply writes the genesis state into the manager. Token registration is
// idempotent and runs on every boot; the opening balances are written only
// the first time a store sees this spec.
func (s *GenesisSpec) Apply(manager *state.Manager) error {
	if manager == nil {
		return fmt.Errorf("state manager must not be nil")
	}
	for _, token := range s.Tokens {
		if err := manager.RegisterToken(token.Symbol, token.Name, token.Decimals); err != nil {
			return fmt.Errorf("register token %s: %w", token.Symbol, err)
		}
	}
	var marker uint64
	applied, err := manager.KVGet(genesisAppliedKey, &marker)
	if err != nil {
		return fmt.Errorf("read genesis marker: %w", err)
	}
	if applied {
		return nil
	}
	accounts := make([]string, 0, len(s.Alloc))
	for account := range s.Alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		addr, err := crypto.DecodeAddress(account)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", account, err)
		}
		stateAccount, err := manager.GetAccount(addr.Bytes())
		if err != nil {
			return err
		}
		if stateAccount == nil {
			stateAccount = types.NewAccount()
		}
		for symbol, amount := range s.Alloc[account] {
			parsed, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
			if !ok {
				return fmt.Errorf("alloc %q %q: invalid amount", account, symbol)
			}
			stateAccount.SetBalance(strings.ToUpper(strings.TrimSpace(symbol)), parsed)
		}
		if err := manager.PutAccount(addr.Bytes(), stateAccount); err != nil {
			return err
		}
	}
	if err := manager.KVPut(genesisAppliedKey, uint64(1)); err != nil {
		return fmt.Errorf("write genesis marker: %w", err)
	}
	return nil
}

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}
