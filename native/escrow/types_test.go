package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func validInstance() *Instance {
	return &Instance{
		ID:            [32]byte{0x01},
		Token:         "esc",
		Maker:         newTestAddress(0x01),
		Judge:         newTestAddress(0x01),
		OrderDuration: 600,
		JudgeDuration: 600,
		Amounts: Amounts{
			Order:            big.NewInt(10),
			RecipientDeposit: big.NewInt(2),
			JudgeDeposit:     big.NewInt(3),
			Fee:              big.NewInt(4),
			Refund:           big.NewInt(5),
		},
	}
}

func TestSanitizeNormalisesToken(t *testing.T) {
	inst := validInstance()
	sanitized, err := Sanitize(inst)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.Token != "ESC" {
		t.Fatalf("token not normalised: %s", sanitized.Token)
	}
	if inst.Token != "esc" {
		t.Fatalf("sanitize must not mutate its input")
	}
}

func TestSanitizeRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Instance)
		want   error
	}{
		{"zero order duration", func(i *Instance) { i.OrderDuration = 0 }, ErrInvalidDuration},
		{"negative judge duration", func(i *Instance) { i.JudgeDuration = -1 }, ErrInvalidDuration},
		{"blank token", func(i *Instance) { i.Token = "  " }, ErrUnsupportedToken},
		{"zero order amount", func(i *Instance) { i.Amounts.Order = big.NewInt(0) }, ErrInvalidAmount},
		{"negative deposit", func(i *Instance) { i.Amounts.JudgeDeposit = big.NewInt(-1) }, ErrInvalidAmount},
		{"fee above order", func(i *Instance) { i.Amounts.Fee = big.NewInt(11) }, ErrInvalidAmount},
		{"refund above order", func(i *Instance) { i.Amounts.Refund = big.NewInt(11) }, ErrInvalidAmount},
		{"split bps overflow", func(i *Instance) { i.Policy.SplitPayerBps = 10_001 }, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := validInstance()
			tc.mutate(inst)
			if _, err := Sanitize(inst); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInstanceCloneIsolation(t *testing.T) {
	inst := validInstance()
	clone := inst.Clone()
	clone.Amounts.Order.SetInt64(999)
	clone.Phase = PhaseSettled
	if inst.Amounts.Order.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("clone shares amount storage with the original")
	}
	if inst.Phase != PhaseCreated {
		t.Fatalf("clone shares scalar state with the original")
	}
}

func TestRequiredDeposit(t *testing.T) {
	inst := validInstance()
	if inst.RequiredDeposit(RolePayer).Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("payer requirement should equal the order amount")
	}
	if inst.RequiredDeposit(RoleRecipient).Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("recipient requirement mismatch")
	}
	if inst.RequiredDeposit(RoleJudge).Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("judge requirement mismatch")
	}
	if inst.RequiredDeposit(RoleUnknown).Sign() != 0 {
		t.Fatalf("unknown role must require nothing")
	}
}

func TestParseRole(t *testing.T) {
	for wire, want := range map[string]Role{
		"payer":     RolePayer,
		" Recipient": RoleRecipient,
		"JUDGE":     RoleJudge,
	} {
		got, err := ParseRole(wire)
		if err != nil {
			t.Fatalf("parse %q: %v", wire, err)
		}
		if got != want {
			t.Fatalf("parse %q: want %s, got %s", wire, want, got)
		}
	}
	if _, err := ParseRole("maker"); !errors.Is(err, ErrRoleNotBound) {
		t.Fatalf("maker is not a ledger role")
	}
}

func TestPhaseTerminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseCreated:   false,
		PhaseFunded:    false,
		PhaseCommitted: false,
		PhaseDisputed:  false,
		PhaseSettled:   true,
		PhaseRefunded:  true,
		PhaseExpired:   true,
	}
	for phase, want := range terminal {
		if phase.Terminal() != want {
			t.Fatalf("%s terminal: want %v", phase, want)
		}
	}
}

func TestInstanceIDDeterminism(t *testing.T) {
	maker := newTestAddress(0x07)
	a := InstanceID(maker, "ESC", 1)
	b := InstanceID(maker, "ESC", 1)
	if a != b {
		t.Fatalf("identical inputs must derive identical ids")
	}
	if InstanceID(maker, "ESC", 2) == a {
		t.Fatalf("nonce must change the id")
	}
	if InstanceID(maker, "USD", 1) == a {
		t.Fatalf("token must change the id")
	}
	if InstanceID(newTestAddress(0x08), "ESC", 1) == a {
		t.Fatalf("maker must change the id")
	}
}
