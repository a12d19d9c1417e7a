package state

import (
	"errors"
	"math/big"
	"testing"

	"escrownet/core/types"
	"escrownet/native/escrow"
	"escrownet/storage"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(storage.NewMemDB())
	if err := m.RegisterToken("ESC", "Escrow Coin", 8); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return m
}

func TestTokenRegistry(t *testing.T) {
	m := newTestManager(t)

	meta, ok, err := m.Token("esc")
	if err != nil || !ok {
		t.Fatalf("token lookup: ok=%v err=%v", ok, err)
	}
	if meta.Symbol != "ESC" || meta.Decimals != 8 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if !m.TokenRegistered("ESC") || m.TokenRegistered("DOGE") {
		t.Fatalf("registry membership incorrect")
	}

	// Re-registering identical metadata is a no-op; conflicts fail.
	if err := m.RegisterToken("ESC", "Escrow Coin", 8); err != nil {
		t.Fatalf("idempotent registration: %v", err)
	}
	if err := m.RegisterToken("ESC", "Escrow Coin", 6); err == nil {
		t.Fatalf("conflicting registration should fail")
	}

	if err := m.RegisterToken("USD", "Dollar", 2); err != nil {
		t.Fatalf("second token: %v", err)
	}
	list, err := m.TokenList()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0] != "ESC" || list[1] != "USD" {
		t.Fatalf("unexpected token list: %v", list)
	}
}

func TestAccountRoundTrip(t *testing.T) {
	m := newTestManager(t)
	addr := []byte{0x01, 0x02, 0x03}

	account, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if account.Nonce != 0 || account.Balance("ESC").Sign() != 0 {
		t.Fatalf("unknown account should be zero valued")
	}

	account.Nonce = 7
	account.SetBalance("ESC", big.NewInt(100))
	account.SetBalance("USD", big.NewInt(0)) // dropped on write
	if err := m.PutAccount(addr, account); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, err := m.GetAccount(addr)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.Nonce != 7 {
		t.Fatalf("nonce lost: %d", loaded.Nonce)
	}
	if loaded.Balance("ESC").Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance lost: %s", loaded.Balance("ESC"))
	}
	if _, ok := loaded.Balances["USD"]; ok {
		t.Fatalf("zero balance should not persist")
	}
}

func TestInstanceRoundTrip(t *testing.T) {
	m := newTestManager(t)
	var maker [20]byte
	maker[0] = 0xAA
	inst := &escrow.Instance{
		ID:            escrow.InstanceID(maker, "ESC", 1),
		Token:         "ESC",
		Maker:         maker,
		Judge:         maker,
		OrderDuration: 600,
		JudgeDuration: 300,
		Amounts: escrow.Amounts{
			Order:            big.NewInt(10),
			RecipientDeposit: big.NewInt(2),
			JudgeDeposit:     big.NewInt(3),
			Fee:              big.NewInt(4),
			Refund:           big.NewInt(5),
		},
		Policy:        escrow.ResolutionPolicy{ForfeitRecipientDeposit: true, SplitPayerBps: 2_500},
		Phase:         escrow.PhaseCreated,
		CreatedAt:     1_700_000_000,
		PhaseDeadline: 1_700_000_600,
	}
	if err := m.InstancePut(inst); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, ok := m.InstanceGet(inst.ID)
	if !ok {
		t.Fatalf("instance missing after put")
	}
	if loaded.Token != "ESC" || loaded.Maker != maker || loaded.Judge != maker {
		t.Fatalf("addresses or token lost: %+v", loaded)
	}
	if loaded.OrderDuration != 600 || loaded.JudgeDuration != 300 {
		t.Fatalf("durations lost")
	}
	if loaded.Amounts.Fee.Cmp(big.NewInt(4)) != 0 || loaded.Amounts.Refund.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("amounts lost: %+v", loaded.Amounts)
	}
	if !loaded.Policy.ForfeitRecipientDeposit || loaded.Policy.SplitPayerBps != 2_500 {
		t.Fatalf("policy lost: %+v", loaded.Policy)
	}
	if loaded.CreatedAt != 1_700_000_000 || loaded.PhaseDeadline != 1_700_000_600 {
		t.Fatalf("timestamps lost")
	}

	if _, ok := m.InstanceGet([32]byte{0xFF}); ok {
		t.Fatalf("unknown id should miss")
	}
	if err := m.InstancePut(&escrow.Instance{Token: "ESC"}); err == nil {
		t.Fatalf("invalid instance should fail sanitisation")
	}
}

func TestLedgerOperations(t *testing.T) {
	m := newTestManager(t)
	id := [32]byte{0x01}

	if err := m.LedgerCredit(id, escrow.RolePayer, big.NewInt(30)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.LedgerDebit(id, escrow.RolePayer, big.NewInt(4)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := m.LedgerDebit(id, escrow.RolePayer, big.NewInt(27)); !errors.Is(err, escrow.ErrInsufficientBalance) {
		t.Fatalf("overdraft debit should fail, got %v", err)
	}
	if err := m.LedgerTransfer(id, escrow.RolePayer, escrow.RoleRecipient, big.NewInt(6)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := m.LedgerTransfer(id, escrow.RoleJudge, escrow.RolePayer, big.NewInt(1)); !errors.Is(err, escrow.ErrInsufficientBalance) {
		t.Fatalf("transfer from empty bucket should fail, got %v", err)
	}

	payer, err := m.LedgerBalance(id, escrow.RolePayer)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if payer.Cmp(big.NewInt(20)) != 0 {
		t.Fatalf("payer bucket: want 20, got %s", payer)
	}

	drained, err := m.LedgerWithdrawAll(id, escrow.RoleRecipient)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if drained.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("drained: want 6, got %s", drained)
	}
	after, err := m.LedgerBalance(id, escrow.RoleRecipient)
	if err != nil {
		t.Fatalf("balance after withdraw: %v", err)
	}
	if after.Sign() != 0 {
		t.Fatalf("bucket should be empty after withdraw")
	}

	// Buckets of different instances are independent.
	other := [32]byte{0x02}
	balance, err := m.LedgerBalance(other, escrow.RolePayer)
	if err != nil {
		t.Fatalf("other balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("foreign instance bucket should be empty")
	}
}

func TestVaultAddressDeterminism(t *testing.T) {
	m := newTestManager(t)

	a, err := m.VaultAddress("ESC")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	b, err := m.VaultAddress("ESC")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if a != b {
		t.Fatalf("vault derivation must be deterministic")
	}
	if a == ([20]byte{}) {
		t.Fatalf("vault address must be non-zero")
	}
	if _, err := m.VaultAddress("DOGE"); !errors.Is(err, escrow.ErrUnsupportedToken) {
		t.Fatalf("unregistered token should fail, got %v", err)
	}
}

func TestEngineOverManager(t *testing.T) {
	m := newTestManager(t)
	engine := escrow.NewEngine()
	engine.SetState(m)
	var treasury [20]byte
	treasury[0] = 0xFF
	engine.SetFeeTreasury(treasury)
	now := int64(1_700_000_000)
	engine.SetNowFunc(func() int64 { return now })

	fundAccount := func(fill byte) [20]byte {
		var addr [20]byte
		addr[0] = fill
		account := types.NewAccount()
		account.SetBalance("ESC", big.NewInt(100))
		if err := m.PutAccount(addr[:], account); err != nil {
			t.Fatalf("fund account: %v", err)
		}
		return addr
	}
	maker := fundAccount(0x01)
	payer := fundAccount(0x02)
	recipient := fundAccount(0x03)

	inst, err := engine.Register(maker, "ESC", 600, 600, escrow.Amounts{
		Order:            big.NewInt(10),
		RecipientDeposit: big.NewInt(2),
		JudgeDeposit:     big.NewInt(3),
		Fee:              big.NewInt(4),
		Refund:           big.NewInt(5),
	}, escrow.ResolutionPolicy{}, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, deposit := range []struct {
		role escrow.Role
		from [20]byte
	}{
		{escrow.RolePayer, payer},
		{escrow.RoleRecipient, recipient},
		{escrow.RoleJudge, maker},
	} {
		if err := engine.Deposit(inst.ID, deposit.role, deposit.from, big.NewInt(30)); err != nil {
			t.Fatalf("deposit %s: %v", deposit.role, err)
		}
	}
	if err := engine.Commit(inst.ID, recipient); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := engine.Approve(inst.ID, payer); err != nil {
		t.Fatalf("approve: %v", err)
	}

	loaded, ok := m.InstanceGet(inst.ID)
	if !ok || loaded.Phase != escrow.PhaseSettled {
		t.Fatalf("instance should settle through the durable backend")
	}
	recipientAccount, err := m.GetAccount(recipient[:])
	if err != nil {
		t.Fatalf("recipient account: %v", err)
	}
	if recipientAccount.Balance("ESC").Cmp(big.NewInt(106)) != 0 {
		t.Fatalf("recipient payout: want 106, got %s", recipientAccount.Balance("ESC"))
	}
	treasuryAccount, err := m.GetAccount(treasury[:])
	if err != nil {
		t.Fatalf("treasury account: %v", err)
	}
	if treasuryAccount.Balance("ESC").Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("fee: want 4, got %s", treasuryAccount.Balance("ESC"))
	}
}
