package escrow

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"escrownet/core/types"
)

const (
	EventTypeRegistered = "escrow.registered"
	EventTypeDeposited  = "escrow.deposited"
	EventTypeFunded     = "escrow.funded"
	EventTypeCommitted  = "escrow.committed"
	EventTypeDisputed   = "escrow.disputed"
	EventTypeDecided    = "escrow.decided"
	EventTypeSettled    = "escrow.settled"
	EventTypeRefunded   = "escrow.refunded"
	EventTypeExpired    = "escrow.expired"
	EventTypeSuperseded = "escrow.superseded"
)

// NewRegisteredEvent returns the canonical payload for a newly registered
// instance.
func NewRegisteredEvent(i *Instance) *types.Event { return newInstanceEvent(EventTypeRegistered, i) }

// NewDepositedEvent returns the payload emitted for every confirmed deposit.
func NewDepositedEvent(i *Instance, role Role, amount *big.Int) *types.Event {
	evt := newInstanceEvent(EventTypeDeposited, i)
	evt.Attributes["role"] = role.String()
	evt.Attributes["deposit"] = cloneBigInt(amount).String()
	return evt
}

// NewFundedEvent returns the payload emitted once all required deposits have
// been observed.
func NewFundedEvent(i *Instance) *types.Event { return newInstanceEvent(EventTypeFunded, i) }

// NewCommittedEvent returns the payload emitted when the recipient commits.
func NewCommittedEvent(i *Instance) *types.Event { return newInstanceEvent(EventTypeCommitted, i) }

// NewDisputedEvent returns the payload emitted when arbitration starts.
func NewDisputedEvent(i *Instance) *types.Event {
	evt := newInstanceEvent(EventTypeDisputed, i)
	evt.Attributes["raisedBy"] = i.DisputedBy.String()
	return evt
}

// NewDecidedEvent returns the payload emitted when the judge settles a
// dispute.
func NewDecidedEvent(i *Instance, outcome string) *types.Event {
	evt := newInstanceEvent(EventTypeDecided, i)
	evt.Attributes["outcome"] = outcome
	return evt
}

// NewSettledEvent returns the payload for a settlement outside arbitration.
func NewSettledEvent(i *Instance, via string) *types.Event {
	evt := newInstanceEvent(EventTypeSettled, i)
	evt.Attributes["via"] = via
	return evt
}

// NewRefundedEvent returns the payload for the default resolution applied
// after a judge timeout.
func NewRefundedEvent(i *Instance) *types.Event { return newInstanceEvent(EventTypeRefunded, i) }

// NewExpiredEvent returns the payload emitted when the order window elapses
// without a commitment.
func NewExpiredEvent(i *Instance) *types.Event { return newInstanceEvent(EventTypeExpired, i) }

// NewSupersededEvent returns the payload emitted when the maker replaces the
// judge.
func NewSupersededEvent(i *Instance, oldJudge [20]byte) *types.Event {
	evt := newInstanceEvent(EventTypeSuperseded, i)
	evt.Attributes["oldJudge"] = hex.EncodeToString(oldJudge[:])
	return evt
}

func newInstanceEvent(eventType string, i *Instance) *types.Event {
	attrs := make(map[string]string)
	if i == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = hex.EncodeToString(i.ID[:])
	attrs["token"] = i.Token
	attrs["maker"] = hex.EncodeToString(i.Maker[:])
	attrs["judge"] = hex.EncodeToString(i.Judge[:])
	if i.Payer != ([20]byte{}) {
		attrs["payer"] = hex.EncodeToString(i.Payer[:])
	}
	if i.Recipient != ([20]byte{}) {
		attrs["recipient"] = hex.EncodeToString(i.Recipient[:])
	}
	attrs["orderAmount"] = cloneBigInt(i.Amounts.Order).String()
	attrs["phase"] = i.Phase.String()
	attrs["createdAt"] = strconv.FormatInt(i.CreatedAt, 10)
	if i.PhaseDeadline > 0 {
		attrs["phaseDeadline"] = strconv.FormatInt(i.PhaseDeadline, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
