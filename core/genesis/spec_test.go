package genesis

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"escrownet/core/state"
	"escrownet/crypto"
	"escrownet/storage"
)

func testAddress(t *testing.T, fill byte) crypto.Address {
	t.Helper()
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(crypto.EscrowPrefix, raw)
}

func validSpecJSON(t *testing.T) []byte {
	t.Helper()
	treasury := testAddress(t, 0xFF)
	holder := testAddress(t, 0x01)
	return []byte(fmt.Sprintf(`{
		"genesisTime": "2026-01-01T00:00:00Z",
		"chainId": 77,
		"tokens": [{"symbol": "esc", "name": "Escrow Coin", "decimals": 8}],
		"alloc": {%q: {"ESC": "1000"}},
		"feeTreasury": %q
	}`, holder.String(), treasury.String()))
}

func TestParseGenesisSpec(t *testing.T) {
	spec, err := ParseGenesisSpec(validSpecJSON(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.GenesisTimestamp().Unix() != 1767225600 {
		t.Fatalf("unexpected genesis time: %v", spec.GenesisTimestamp())
	}
	if spec.FeeTreasuryAddress() != testAddress(t, 0xFF).Array() {
		t.Fatalf("treasury address mismatch")
	}
	if spec.ChainID == nil || *spec.ChainID != 77 {
		t.Fatalf("chain id lost")
	}
}

func TestParseGenesisSpecRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{"unknown field", func(s string) string {
			return strings.Replace(s, `"chainId": 77,`, `"chainId": 77, "bogus": 1,`, 1)
		}, "decode"},
		{"missing treasury", func(s string) string {
			return strings.Replace(s, `"feeTreasury"`, `"feeTreasury2"`, 1)
		}, ""},
		{"undefined alloc token", func(s string) string {
			return strings.Replace(s, `"ESC": "1000"`, `"USD": "1000"`, 1)
		}, "undefined token"},
		{"negative amount", func(s string) string {
			return strings.Replace(s, `"1000"`, `"-5"`, 1)
		}, "invalid amount"},
		{"no tokens", func(s string) string {
			return strings.Replace(s, `[{"symbol": "esc", "name": "Escrow Coin", "decimals": 8}]`, `[]`, 1)
		}, "at least one token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := tc.mutate(string(validSpecJSON(t)))
			if _, err := ParseGenesisSpec([]byte(raw)); err == nil {
				t.Fatalf("expected failure")
			} else if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want %q in error, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestApplyGenesis(t *testing.T) {
	spec, err := ParseGenesisSpec(validSpecJSON(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	manager := state.NewManager(storage.NewMemDB())
	if err := spec.Apply(manager); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !manager.TokenRegistered("ESC") {
		t.Fatalf("token not registered")
	}
	holder := testAddress(t, 0x01)
	account, err := manager.GetAccount(holder.Bytes())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance("ESC").Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("allocation missing: %s", account.Balance("ESC"))
	}

	// Reapplying the same spec must not duplicate anything.
	if err := spec.Apply(manager); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	account, err = manager.GetAccount(holder.Bytes())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance("ESC").Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("reapply changed balances: %s", account.Balance("ESC"))
	}
}

func TestApplyOnRestartKeepsMovedBalances(t *testing.T) {
	spec, err := ParseGenesisSpec(validSpecJSON(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	db := storage.NewMemDB()
	manager := state.NewManager(db)
	if err := spec.Apply(manager); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// The holder moves 300 units into escrow after genesis.
	holder := testAddress(t, 0x01)
	account, err := manager.GetAccount(holder.Bytes())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	account.SetBalance("ESC", big.NewInt(700))
	if err := manager.PutAccount(holder.Bytes(), account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	// A restart reopens the same store and applies genesis again. The moved
	// balance must survive; only the token registry re-runs.
	restarted := state.NewManager(db)
	if err := spec.Apply(restarted); err != nil {
		t.Fatalf("apply after restart: %v", err)
	}
	account, err = restarted.GetAccount(holder.Bytes())
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if account.Balance("ESC").Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("restart reset the balance: want 700, got %s", account.Balance("ESC"))
	}
	if !restarted.TokenRegistered("ESC") {
		t.Fatalf("token registry must still apply on restart")
	}
}
