package escrow

import (
	"encoding/hex"
	"math/big"
	"testing"
)

func TestInstanceEventAttributes(t *testing.T) {
	inst := validInstance()
	inst.CreatedAt = 42
	inst.PhaseDeadline = 642

	evt := NewRegisteredEvent(inst)
	if evt.Type != EventTypeRegistered {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["id"] != hex.EncodeToString(inst.ID[:]) {
		t.Fatalf("id attribute mismatch")
	}
	if evt.Attributes["judge"] != hex.EncodeToString(inst.Judge[:]) {
		t.Fatalf("judge attribute mismatch")
	}
	if evt.Attributes["createdAt"] != "42" || evt.Attributes["phaseDeadline"] != "642" {
		t.Fatalf("timestamp attributes mismatch: %v", evt.Attributes)
	}
	// Unbound payer and recipient are omitted rather than rendered as zeros.
	if _, ok := evt.Attributes["payer"]; ok {
		t.Fatalf("unbound payer should be absent")
	}
	if _, ok := evt.Attributes["recipient"]; ok {
		t.Fatalf("unbound recipient should be absent")
	}

	inst.Payer = newTestAddress(0x03)
	evt = NewDepositedEvent(inst, RolePayer, big.NewInt(30))
	if evt.Attributes["role"] != "payer" || evt.Attributes["deposit"] != "30" {
		t.Fatalf("deposit attributes mismatch: %v", evt.Attributes)
	}
	if evt.Attributes["payer"] != hex.EncodeToString(inst.Payer[:]) {
		t.Fatalf("bound payer should be present")
	}
}

func TestDecidedAndSupersededEvents(t *testing.T) {
	inst := validInstance()
	inst.DisputedBy = RoleRecipient

	evt := NewDisputedEvent(inst)
	if evt.Attribute("raisedBy") != "recipient" {
		t.Fatalf("raiser attribute mismatch: %v", evt.Attributes)
	}

	evt = NewDecidedEvent(inst, OutcomeSplit)
	if evt.Attribute("outcome") != OutcomeSplit {
		t.Fatalf("outcome attribute mismatch")
	}

	old := newTestAddress(0x09)
	evt = NewSupersededEvent(inst, old)
	if evt.Attribute("oldJudge") != hex.EncodeToString(old[:]) {
		t.Fatalf("old judge attribute mismatch")
	}
	if evt.Attribute("missing") != "" {
		t.Fatalf("absent attribute should read empty")
	}
}
