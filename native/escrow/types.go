package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// Role identifies a ledger bucket inside one escrow instance. The maker
// configures the instance but never holds escrowed funds, so it has no bucket.
type Role uint8

const (
	RoleUnknown Role = iota
	RolePayer
	RoleRecipient
	RoleJudge
)

// ledgerRoles is the fixed settlement order for bucket withdrawals.
var ledgerRoles = [...]Role{RolePayer, RoleRecipient, RoleJudge}

func (r Role) String() string {
	switch r {
	case RolePayer:
		return "payer"
	case RoleRecipient:
		return "recipient"
	case RoleJudge:
		return "judge"
	default:
		return "unknown"
	}
}

// Valid reports whether the role owns a ledger bucket.
func (r Role) Valid() bool {
	switch r {
	case RolePayer, RoleRecipient, RoleJudge:
		return true
	default:
		return false
	}
}

// ParseRole converts the wire representation of a role into its enum value.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "payer":
		return RolePayer, nil
	case "recipient":
		return RoleRecipient, nil
	case "judge":
		return RoleJudge, nil
	default:
		return RoleUnknown, fmt.Errorf("%w: unknown role %q", ErrRoleNotBound, s)
	}
}

// Phase is the lifecycle state of an escrow instance.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseFunded
	PhaseCommitted
	PhaseDisputed
	PhaseSettled
	PhaseRefunded
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseFunded:
		return "funded"
	case PhaseCommitted:
		return "committed"
	case PhaseDisputed:
		return "disputed"
	case PhaseSettled:
		return "settled"
	case PhaseRefunded:
		return "refunded"
	case PhaseExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Valid reports whether the phase value is within the supported range.
func (p Phase) Valid() bool {
	return p <= PhaseExpired
}

// Terminal reports whether the phase admits no further mutation.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSettled, PhaseRefunded, PhaseExpired:
		return true
	default:
		return false
	}
}

// Dispute outcomes a judge may apply.
const (
	OutcomeFavorPayer     = "favor_payer"
	OutcomeFavorRecipient = "favor_recipient"
	OutcomeSplit          = "split"
)

// Amounts groups the immutable economic parameters fixed at registration.
type Amounts struct {
	Order            *big.Int
	RecipientDeposit *big.Int
	JudgeDeposit     *big.Int
	Fee              *big.Int
	Refund           *big.Int
}

// Clone returns a deep copy with no nil fields.
func (a Amounts) Clone() Amounts {
	return Amounts{
		Order:            cloneBigInt(a.Order),
		RecipientDeposit: cloneBigInt(a.RecipientDeposit),
		JudgeDeposit:     cloneBigInt(a.JudgeDeposit),
		Fee:              cloneBigInt(a.Fee),
		Refund:           cloneBigInt(a.Refund),
	}
}

// ResolutionPolicy carries the settlement knobs that are a product decision
// rather than protocol constants: what happens to the recipient's deposit when
// the order expires, and how a split decision divides the order amount.
type ResolutionPolicy struct {
	// ForfeitRecipientDeposit moves the recipient's required deposit to the
	// payer when the instance expires without a commitment.
	ForfeitRecipientDeposit bool
	// SplitPayerBps is the payer's share of the distributable order amount,
	// in basis points, under a split decision.
	SplitPayerBps uint32
}

// Instance captures the configuration and runtime state of a single escrow
// agreement. The identifier is the keccak256 hash of the maker address, the
// token symbol and a maker-supplied nonce, giving deterministic IDs without
// a global sequence.
type Instance struct {
	ID    [32]byte
	Token string

	Maker     [20]byte
	Judge     [20]byte
	Payer     [20]byte // zero until bound by the first payer deposit
	Recipient [20]byte // zero until bound by the first recipient deposit

	OrderDuration int64 // seconds from creation until the recipient must commit
	JudgeDuration int64 // seconds from dispute until the judge must decide

	Amounts Amounts
	Policy  ResolutionPolicy

	Phase      Phase
	DisputedBy Role // raiser of the dispute, RoleUnknown otherwise

	CreatedAt     int64
	PhaseDeadline int64 // 0 when no timed window is running
}

// Clone returns a deep copy of the instance so callers can safely mutate the
// copy without affecting the stored record.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Amounts = i.Amounts.Clone()
	return &clone
}

// BoundAddress returns the address currently bound to the role, with ok=false
// while payer or recipient are still unbound.
func (i *Instance) BoundAddress(role Role) ([20]byte, bool) {
	var addr [20]byte
	switch role {
	case RolePayer:
		addr = i.Payer
	case RoleRecipient:
		addr = i.Recipient
	case RoleJudge:
		addr = i.Judge
	default:
		return addr, false
	}
	return addr, addr != ([20]byte{})
}

// RequiredDeposit returns the amount the role must have escrowed before the
// instance can leave the created phase.
func (i *Instance) RequiredDeposit(role Role) *big.Int {
	switch role {
	case RolePayer:
		return cloneBigInt(i.Amounts.Order)
	case RoleRecipient:
		return cloneBigInt(i.Amounts.RecipientDeposit)
	case RoleJudge:
		return cloneBigInt(i.Amounts.JudgeDeposit)
	default:
		return big.NewInt(0)
	}
}

// NormalizeToken returns the canonical uppercase token symbol, rejecting
// blank symbols. Whether the symbol is actually registered is checked against
// the state's token registry at use sites.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnsupportedToken)
	}
	return trimmed, nil
}

// Sanitize validates and normalises an instance definition, returning a clone
// with canonical token casing and no nil amount fields. The original value is
// not mutated.
func Sanitize(i *Instance) (*Instance, error) {
	if i == nil {
		return nil, fmt.Errorf("nil instance")
	}
	clone := i.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.OrderDuration <= 0 || clone.JudgeDuration <= 0 {
		return nil, fmt.Errorf("%w: durations must be positive", ErrInvalidDuration)
	}
	if clone.Amounts.Order.Sign() <= 0 {
		return nil, fmt.Errorf("%w: order amount must be positive", ErrInvalidAmount)
	}
	for _, amt := range []*big.Int{clone.Amounts.RecipientDeposit, clone.Amounts.JudgeDeposit, clone.Amounts.Fee, clone.Amounts.Refund} {
		if amt.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative amount", ErrInvalidAmount)
		}
	}
	if clone.Amounts.Fee.Cmp(clone.Amounts.Order) > 0 {
		return nil, fmt.Errorf("%w: fee exceeds order amount", ErrInvalidAmount)
	}
	if clone.Amounts.Refund.Cmp(clone.Amounts.Order) > 0 {
		return nil, fmt.Errorf("%w: refund exceeds order amount", ErrInvalidAmount)
	}
	if clone.Policy.SplitPayerBps > 10_000 {
		return nil, fmt.Errorf("%w: split bps out of range", ErrInvalidAmount)
	}
	if !clone.Phase.Valid() {
		return nil, fmt.Errorf("invalid phase: %d", clone.Phase)
	}
	return clone, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
