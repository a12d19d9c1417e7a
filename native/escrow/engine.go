package escrow

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"escrownet/core/events"
	"escrownet/core/types"
)

// State is the backend the engine mutates. All methods operate on confirmed
// state; the engine never observes half-applied submissions.
type State interface {
	InstancePut(*Instance) error
	InstanceGet(id [32]byte) (*Instance, bool)

	LedgerCredit(id [32]byte, role Role, amt *big.Int) error
	LedgerDebit(id [32]byte, role Role, amt *big.Int) error
	LedgerTransfer(id [32]byte, from, to Role, amt *big.Int) error
	LedgerBalance(id [32]byte, role Role) (*big.Int, error)
	LedgerWithdrawAll(id [32]byte, role Role) (*big.Int, error)

	VaultAddress(token string) ([20]byte, error)
	TokenRegistered(symbol string) bool

	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

var (
	errNilState    = fmt.Errorf("escrow engine: state not configured")
	errNilTreasury = fmt.Errorf("escrow engine: fee treasury not configured")
)

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine hosts the escrow contract logic: registration, the deposit ledger,
// the phase machine, dispute arbitration and settlement. Mutations against a
// single instance are linearized through a per-instance lock; instances are
// otherwise independent.
type Engine struct {
	state       State
	emitter     events.Emitter
	feeTreasury [20]byte
	nowFn       func() int64

	mu    sync.Mutex
	locks map[[32]byte]*sync.Mutex
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		locks:   make(map[[32]byte]*sync.Mutex),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetFeeTreasury configures the address that receives order fees and
// forfeited judge deposits.
func (e *Engine) SetFeeTreasury(addr [20]byte) { e.feeTreasury = addr }

// SetNowFunc overrides the time source used by the engine. The node installs
// its chain clock here; tests install deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// deadlineReached implements the lazy expiry check: a zero deadline means no
// timed window is running.
func deadlineReached(now, deadline int64) bool {
	return deadline > 0 && now >= deadline
}

// lockInstance serialises mutations for one instance id. Operations against
// different ids proceed concurrently.
func (e *Engine) lockInstance(id [32]byte) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// InstanceID derives the deterministic identifier for a registration.
func InstanceID(maker [20]byte, token string, nonce uint64) [32]byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return ethcrypto.Keccak256Hash(maker[:], []byte(token), n[:])
}

func (e *Engine) loadInstance(id [32]byte) (*Instance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	inst, ok := e.state.InstanceGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return inst, nil
}

func (e *Engine) storeInstance(inst *Instance) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.InstancePut(inst)
}

// Register creates and persists a new escrow instance in the created phase.
// The judge defaults to the maker until superseded. Registration is
// idempotent: resubmitting an identical definition returns the existing
// instance.
func (e *Engine) Register(maker [20]byte, token string, orderDuration, judgeDuration int64, amounts Amounts, policy ResolutionPolicy, nonce uint64) (*Instance, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if orderDuration <= 0 || judgeDuration <= 0 {
		return nil, fmt.Errorf("%w: order %ds judge %ds", ErrInvalidDuration, orderDuration, judgeDuration)
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if !e.state.TokenRegistered(normalized) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, normalized)
	}
	now := e.now()
	inst := &Instance{
		ID:            InstanceID(maker, normalized, nonce),
		Token:         normalized,
		Maker:         maker,
		Judge:         maker,
		OrderDuration: orderDuration,
		JudgeDuration: judgeDuration,
		Amounts:       amounts.Clone(),
		Policy:        policy,
		Phase:         PhaseCreated,
		CreatedAt:     now,
		PhaseDeadline: now + orderDuration,
	}
	sanitized, err := Sanitize(inst)
	if err != nil {
		return nil, err
	}
	unlock := e.lockInstance(sanitized.ID)
	defer unlock()
	if existing, ok := e.state.InstanceGet(sanitized.ID); ok {
		if !sameDefinition(existing, sanitized) {
			return nil, fmt.Errorf("escrow: identifier already exists with different definition")
		}
		return existing.Clone(), nil
	}
	if err := e.storeInstance(sanitized); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(sanitized))
	return sanitized.Clone(), nil
}

func sameDefinition(a, b *Instance) bool {
	return a.Maker == b.Maker &&
		a.Token == b.Token &&
		a.OrderDuration == b.OrderDuration &&
		a.JudgeDuration == b.JudgeDuration &&
		a.Amounts.Order.Cmp(b.Amounts.Order) == 0 &&
		a.Amounts.RecipientDeposit.Cmp(b.Amounts.RecipientDeposit) == 0 &&
		a.Amounts.JudgeDeposit.Cmp(b.Amounts.JudgeDeposit) == 0 &&
		a.Amounts.Fee.Cmp(b.Amounts.Fee) == 0 &&
		a.Amounts.Refund.Cmp(b.Amounts.Refund) == 0 &&
		a.Policy == b.Policy
}

// Get returns a snapshot of the instance.
func (e *Engine) Get(id [32]byte) (*Instance, error) {
	inst, err := e.loadInstance(id)
	if err != nil {
		return nil, err
	}
	return inst.Clone(), nil
}

// BalanceOf returns the confirmed ledger balance for one role bucket.
func (e *Engine) BalanceOf(id [32]byte, role Role) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotBound, role)
	}
	if _, err := e.loadInstance(id); err != nil {
		return nil, err
	}
	return e.state.LedgerBalance(id, role)
}

// Deposit credits the role's bucket with tokens moved from the depositor's
// account into the token vault. The first payer or recipient deposit binds
// the role to the depositor; later deposits must come from the same address
// and accumulate. A deposit may complete the funding guard and move the
// instance out of the created phase.
func (e *Engine) Deposit(id [32]byte, role Role, from [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: deposit must be positive", ErrInvalidAmount)
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %s", ErrRoleNotBound, role)
	}
	bound := false
	switch role {
	case RoleJudge:
		if inst.Judge != from {
			return fmt.Errorf("%w: depositor is not the bound judge", ErrUnauthorized)
		}
	case RolePayer:
		if inst.Payer == ([20]byte{}) {
			inst.Payer = from
			bound = true
		} else if inst.Payer != from {
			return fmt.Errorf("%w: payer already bound", ErrUnauthorized)
		}
	case RoleRecipient:
		if inst.Recipient == ([20]byte{}) {
			inst.Recipient = from
			bound = true
		} else if inst.Recipient != from {
			return fmt.Errorf("%w: recipient already bound", ErrUnauthorized)
		}
	}
	vault, err := e.state.VaultAddress(inst.Token)
	if err != nil {
		return err
	}
	if err := e.transferToken(from, vault, inst.Token, amount); err != nil {
		return err
	}
	if err := e.state.LedgerCredit(id, role, amount); err != nil {
		return err
	}
	if bound {
		if err := e.storeInstance(inst); err != nil {
			return err
		}
	}
	e.emit(NewDepositedEvent(inst, role, amount))
	return e.maybeFund(inst)
}

// maybeFund re-evaluates the funding guard after a credit. The created phase
// is left once every role bucket covers its required amount, in whatever
// order the deposits arrived.
func (e *Engine) maybeFund(inst *Instance) error {
	if inst.Phase != PhaseCreated {
		return nil
	}
	for _, role := range ledgerRoles {
		required := inst.RequiredDeposit(role)
		if required.Sign() == 0 {
			continue
		}
		balance, err := e.state.LedgerBalance(inst.ID, role)
		if err != nil {
			return err
		}
		if balance.Cmp(required) < 0 {
			return nil
		}
	}
	inst.Phase = PhaseFunded
	// The order window keeps running: the deadline set at creation stands
	// until the recipient commits.
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewFundedEvent(inst))
	return nil
}

// Commit records the recipient's work/delivery step and stops the order
// expiry window.
func (e *Engine) Commit(id [32]byte, by [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if inst.Phase != PhaseFunded {
		return fmt.Errorf("%w: commit requires funded, have %s", ErrPhaseMismatch, inst.Phase)
	}
	recipient, ok := inst.BoundAddress(RoleRecipient)
	if !ok {
		return fmt.Errorf("%w: recipient", ErrRoleNotBound)
	}
	if recipient != by {
		return fmt.Errorf("%w: only the recipient may commit", ErrUnauthorized)
	}
	inst.Phase = PhaseCommitted
	inst.PhaseDeadline = 0
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewCommittedEvent(inst))
	return nil
}

// Approve settles the committed order in the recipient's favour: the
// recipient receives the order amount minus the fee, the fee goes to the
// treasury, and all remaining bucket balances return to their owners.
func (e *Engine) Approve(id [32]byte, by [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if inst.Phase != PhaseCommitted {
		return fmt.Errorf("%w: approve requires committed, have %s", ErrPhaseMismatch, inst.Phase)
	}
	payer, ok := inst.BoundAddress(RolePayer)
	if !ok {
		return fmt.Errorf("%w: payer", ErrRoleNotBound)
	}
	if payer != by {
		return fmt.Errorf("%w: only the payer may approve", ErrUnauthorized)
	}
	if err := e.releaseToRecipient(inst); err != nil {
		return err
	}
	if err := e.finalize(inst, PhaseSettled); err != nil {
		return err
	}
	e.emit(NewSettledEvent(inst, "approve"))
	return nil
}

// releaseToRecipient applies the favour-recipient distribution: fee to the
// treasury, order amount minus fee from the payer bucket to the recipient
// bucket. Surpluses stay in their buckets for finalize to return.
func (e *Engine) releaseToRecipient(inst *Instance) error {
	if err := e.collectFee(inst); err != nil {
		return err
	}
	payout := new(big.Int).Sub(inst.Amounts.Order, inst.Amounts.Fee)
	if payout.Sign() > 0 {
		if err := e.state.LedgerTransfer(inst.ID, RolePayer, RoleRecipient, payout); err != nil {
			return err
		}
	}
	return nil
}

// collectFee debits the fee from the payer bucket and pays it out of the
// vault to the fee treasury.
func (e *Engine) collectFee(inst *Instance) error {
	fee := inst.Amounts.Fee
	if fee.Sign() == 0 {
		return nil
	}
	if e.feeTreasury == ([20]byte{}) {
		return errNilTreasury
	}
	if err := e.state.LedgerDebit(inst.ID, RolePayer, fee); err != nil {
		return err
	}
	vault, err := e.state.VaultAddress(inst.Token)
	if err != nil {
		return err
	}
	return e.transferToken(vault, e.feeTreasury, inst.Token, fee)
}

// RaiseDispute moves a committed order into arbitration. Only the bound payer
// or recipient may raise it; the judge window starts now.
func (e *Engine) RaiseDispute(id [32]byte, by [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if inst.Phase != PhaseCommitted {
		return fmt.Errorf("%w: dispute requires committed, have %s", ErrPhaseMismatch, inst.Phase)
	}
	var raiser Role
	switch by {
	case inst.Payer:
		raiser = RolePayer
	case inst.Recipient:
		raiser = RoleRecipient
	default:
		return fmt.Errorf("%w: only payer or recipient may dispute", ErrUnauthorized)
	}
	now := e.now()
	inst.Phase = PhaseDisputed
	inst.DisputedBy = raiser
	inst.PhaseDeadline = now + inst.JudgeDuration
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewDisputedEvent(inst))
	return nil
}

// Decide applies the judge's outcome to a disputed instance. If the judge
// window has already elapsed the default resolution is applied first and the
// call fails with ErrInstanceTerminal.
func (e *Engine) Decide(id [32]byte, by [20]byte, outcome string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if inst.Phase != PhaseDisputed {
		return fmt.Errorf("%w: decide requires disputed, have %s", ErrPhaseMismatch, inst.Phase)
	}
	if inst.Judge != by {
		return fmt.Errorf("%w: only the bound judge may decide", ErrUnauthorized)
	}
	switch outcome {
	case OutcomeFavorRecipient:
		if err := e.releaseToRecipient(inst); err != nil {
			return err
		}
	case OutcomeFavorPayer:
		if err := e.collectFee(inst); err != nil {
			return err
		}
		// The recipient's good-faith deposit compensates the payer.
		forfeit := inst.Amounts.RecipientDeposit
		if forfeit.Sign() > 0 {
			if err := e.state.LedgerTransfer(inst.ID, RoleRecipient, RolePayer, forfeit); err != nil {
				return err
			}
		}
	case OutcomeSplit:
		if err := e.collectFee(inst); err != nil {
			return err
		}
		distributable := new(big.Int).Sub(inst.Amounts.Order, inst.Amounts.Fee)
		payerShare := new(big.Int).Mul(distributable, new(big.Int).SetUint64(uint64(inst.Policy.SplitPayerBps)))
		payerShare.Div(payerShare, big.NewInt(10_000))
		recipientShare := new(big.Int).Sub(distributable, payerShare)
		if recipientShare.Sign() > 0 {
			if err := e.state.LedgerTransfer(inst.ID, RolePayer, RoleRecipient, recipientShare); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}
	if err := e.finalize(inst, PhaseSettled); err != nil {
		return err
	}
	e.emit(NewDecidedEvent(inst, outcome))
	return nil
}

// Supersede rebinds the judge role. Only the maker may call it, and only
// while the instance is non-terminal. The judge bucket follows the role: any
// balance already escrowed settles to the new judge.
func (e *Engine) Supersede(id [32]byte, by, newJudge [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if newJudge == ([20]byte{}) {
		return fmt.Errorf("%w: new judge address required", ErrRoleNotBound)
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	if err := e.tryExpire(inst); err != nil {
		return err
	}
	if inst.Phase.Terminal() {
		return fmt.Errorf("%w: phase %s", ErrInstanceTerminal, inst.Phase)
	}
	if inst.Maker != by {
		return fmt.Errorf("%w: only the maker may supersede", ErrUnauthorized)
	}
	old := inst.Judge
	inst.Judge = newJudge
	if err := e.storeInstance(inst); err != nil {
		return err
	}
	e.emit(NewSupersededEvent(inst, old))
	return nil
}

// Touch applies any pending expiry transition without performing another
// operation. It is how the node surfaces "the default applies automatically
// on the next touching call" to external pollers.
func (e *Engine) Touch(id [32]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	unlock := e.lockInstance(id)
	defer unlock()
	inst, err := e.loadInstance(id)
	if err != nil {
		return err
	}
	return e.tryExpire(inst)
}

// tryExpire evaluates the lazy expiry rule against the chain clock. It is
// called at the head of every mutating operation; no background timer exists.
func (e *Engine) tryExpire(inst *Instance) error {
	if inst.Phase.Terminal() || !deadlineReached(e.now(), inst.PhaseDeadline) {
		return nil
	}
	switch inst.Phase {
	case PhaseCreated, PhaseFunded:
		return e.expireOrder(inst)
	case PhaseDisputed:
		return e.applyDefaultResolution(inst)
	default:
		return nil
	}
}

// expireOrder resolves an order whose recipient never committed in time.
// Every bucket returns to its depositor; the recipient's required deposit
// forfeits to the payer when the policy says so.
func (e *Engine) expireOrder(inst *Instance) error {
	if inst.Policy.ForfeitRecipientDeposit {
		balance, err := e.state.LedgerBalance(inst.ID, RoleRecipient)
		if err != nil {
			return err
		}
		forfeit := minBigInt(balance, inst.Amounts.RecipientDeposit)
		if forfeit.Sign() > 0 && inst.Payer != ([20]byte{}) {
			if err := e.state.LedgerTransfer(inst.ID, RoleRecipient, RolePayer, forfeit); err != nil {
				return err
			}
		}
	}
	if err := e.finalize(inst, PhaseExpired); err != nil {
		return err
	}
	e.emit(NewExpiredEvent(inst))
	return nil
}

// applyDefaultResolution settles a dispute the judge never decided: the
// refund amount stays with the payer, the remainder of the order moves to
// the recipient, and the judge's deposit forfeits to the treasury as a
// penalty. No fee is charged.
func (e *Engine) applyDefaultResolution(inst *Instance) error {
	remainder := new(big.Int).Sub(inst.Amounts.Order, inst.Amounts.Refund)
	if remainder.Sign() > 0 {
		if err := e.state.LedgerTransfer(inst.ID, RolePayer, RoleRecipient, remainder); err != nil {
			return err
		}
	}
	judgeBalance, err := e.state.LedgerBalance(inst.ID, RoleJudge)
	if err != nil {
		return err
	}
	penalty := minBigInt(judgeBalance, inst.Amounts.JudgeDeposit)
	if penalty.Sign() > 0 {
		if e.feeTreasury == ([20]byte{}) {
			return errNilTreasury
		}
		if err := e.state.LedgerDebit(inst.ID, RoleJudge, penalty); err != nil {
			return err
		}
		vault, err := e.state.VaultAddress(inst.Token)
		if err != nil {
			return err
		}
		if err := e.transferToken(vault, e.feeTreasury, inst.Token, penalty); err != nil {
			return err
		}
	}
	if err := e.finalize(inst, PhaseRefunded); err != nil {
		return err
	}
	e.emit(NewRefundedEvent(inst))
	return nil
}

// finalize drains every role bucket back to its bound address and marks the
// instance terminal. The record is kept for audit; nothing is deleted.
func (e *Engine) finalize(inst *Instance, phase Phase) error {
	vault, err := e.state.VaultAddress(inst.Token)
	if err != nil {
		return err
	}
	for _, role := range ledgerRoles {
		balance, err := e.state.LedgerWithdrawAll(inst.ID, role)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			continue
		}
		addr, ok := inst.BoundAddress(role)
		if !ok {
			return fmt.Errorf("%w: %s bucket holds funds", ErrRoleNotBound, role)
		}
		if err := e.transferToken(vault, addr, inst.Token, balance); err != nil {
			return err
		}
	}
	inst.Phase = phase
	inst.PhaseDeadline = 0
	return e.storeInstance(inst)
}

// transferToken moves tokens between two accounts, guarding against negative
// amounts and overdrafts.
func (e *Engine) transferToken(from, to [20]byte, token string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer", ErrInvalidAmount)
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	if fromAcc == nil {
		fromAcc = types.NewAccount()
	}
	if toAcc == nil {
		toAcc = types.NewAccount()
	}
	if fromAcc.Balance(token).Cmp(amt) < 0 {
		return fmt.Errorf("%w: account %x", ErrInsufficientBalance, from)
	}
	fromAcc.SetBalance(token, new(big.Int).Sub(fromAcc.Balance(token), amt))
	toAcc.SetBalance(token, new(big.Int).Add(toAcc.Balance(token), amt))
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

func minBigInt(a, b *big.Int) *big.Int {
	if a == nil {
		if b == nil {
			return big.NewInt(0)
		}
		return new(big.Int).Set(b)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
