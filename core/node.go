package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"escrownet/core/events"
	"escrownet/core/state"
	"escrownet/core/types"
	"escrownet/native/escrow"
	"escrownet/observability/metrics"
)

// Receipt records the confirmation result of a submitted transaction.
type Receipt struct {
	TxHash [32]byte
	Status string
	Info   string
	Height uint64
	Time   int64
}

// ReceiptStatusOK marks a transaction that applied cleanly; failed
// transactions carry the rejection reason in Info.
const (
	ReceiptStatusOK     = "ok"
	ReceiptStatusFailed = "failed"
)

var (
	receiptPrefix     = []byte("chain/receipt/")
	chainHeightKey    = []byte("chain/height")
	errUnknownTxType  = errors.New("node: unknown transaction type")
	errMissingFields  = errors.New("node: transaction missing required fields")
	ErrReceiptUnknown = errors.New("node: receipt not found")
)

type storedReceipt struct {
	Status string
	Info   string
	Height uint64
	Time   uint64
}

type chainTip struct {
	Height   uint64
	LastTime uint64
}

// Node owns the ordered transaction log. Submissions collect in a mempool and
// apply in batches; within one batch, disputes for an instance apply before
// approvals so a timely dispute always wins the race. The chain clock is the
// monotonic maximum of wall time and the previous block time, which is the
// timestamp every expiry check observes.
type Node struct {
	mu      sync.Mutex
	manager *state.Manager
	engine  *escrow.Engine
	logger  *slog.Logger
	metrics *metrics.Metrics

	mempool []*types.Transaction
	seen    map[[32]byte]struct{}

	height        uint64
	lastBlockTime int64
	wallNow       func() int64
}

// NewNode wires an engine over the state manager and restores the chain tip
// from storage.
func NewNode(manager *state.Manager, feeTreasury [20]byte) (*Node, error) {
	if manager == nil {
		return nil, fmt.Errorf("node: state manager required")
	}
	n := &Node{
		manager: manager,
		engine:  escrow.NewEngine(),
		logger:  slog.Default(),
		seen:    make(map[[32]byte]struct{}),
		wallNow: func() int64 { return time.Now().Unix() },
	}
	n.engine.SetState(manager)
	n.engine.SetFeeTreasury(feeTreasury)
	n.engine.SetNowFunc(n.chainTime)

	var tip chainTip
	ok, err := manager.KVGet(chainHeightKey, &tip)
	if err != nil {
		return nil, fmt.Errorf("node: load chain tip: %w", err)
	}
	if ok {
		n.height = tip.Height
		n.lastBlockTime = int64(tip.LastTime)
	}
	return n, nil
}

// SetLogger overrides the node logger.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger != nil {
		n.logger = logger
	}
}

// SetMetrics installs the instrumentation sink.
func (n *Node) SetMetrics(m *metrics.Metrics) { n.metrics = m }

// SetEmitter forwards engine events to the supplied emitter.
func (n *Node) SetEmitter(emitter events.Emitter) { n.engine.SetEmitter(emitter) }

// SetNowFunc overrides the wall clock, for tests.
func (n *Node) SetNowFunc(now func() int64) {
	if now != nil {
		n.wallNow = now
	}
}

// chainTime is the timestamp engine operations observe: never behind the last
// committed block.
func (n *Node) chainTime() int64 {
	now := n.wallNow()
	if n.lastBlockTime > now {
		return n.lastBlockTime
	}
	return now
}

// Height returns the committed chain height.
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.height
}

// SubmitTx validates the envelope, queues it and returns its hash. Submitting
// an identical envelope again returns the same hash without duplicating it.
func (n *Node) SubmitTx(tx *types.Transaction) ([32]byte, error) {
	if tx == nil {
		return [32]byte{}, errMissingFields
	}
	if err := validateTx(tx); err != nil {
		return [32]byte{}, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return [32]byte{}, fmt.Errorf("node: hash transaction: %w", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, dup := n.seen[hash]; dup {
		return hash, nil
	}
	// Committed submissions are deduplicated against their durable receipt;
	// the seen set only has to cover what is still in the mempool.
	var stored storedReceipt
	if ok, err := n.manager.KVGet(receiptKey(hash), &stored); err != nil {
		return [32]byte{}, fmt.Errorf("node: check receipt: %w", err)
	} else if ok {
		return hash, nil
	}
	n.seen[hash] = struct{}{}
	n.mempool = append(n.mempool, tx)
	n.metrics.SetMempoolDepth(len(n.mempool))
	return hash, nil
}

func validateTx(tx *types.Transaction) error {
	if tx.From == ([20]byte{}) {
		return fmt.Errorf("%w: sender address", errMissingFields)
	}
	switch tx.Type {
	case types.TxTypeRegisterEscrow:
		if tx.Token == "" || tx.OrderDuration <= 0 || tx.JudgeDuration <= 0 {
			return fmt.Errorf("%w: register needs token and positive durations", errMissingFields)
		}
		if tx.OrderAmount == nil || tx.OrderAmount.Sign() <= 0 {
			return fmt.Errorf("%w: register needs a positive order amount", errMissingFields)
		}
	case types.TxTypeDeposit:
		if tx.Instance == ([32]byte{}) {
			return fmt.Errorf("%w: deposit needs an instance", errMissingFields)
		}
		if _, err := escrow.ParseRole(tx.Role); err != nil {
			return err
		}
		if tx.Amount == nil || tx.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: deposit needs a positive amount", errMissingFields)
		}
	case types.TxTypeCommit, types.TxTypeApprove, types.TxTypeDispute:
		if tx.Instance == ([32]byte{}) {
			return fmt.Errorf("%w: instance identifier", errMissingFields)
		}
	case types.TxTypeDecide:
		if tx.Instance == ([32]byte{}) {
			return fmt.Errorf("%w: instance identifier", errMissingFields)
		}
		switch tx.Outcome {
		case escrow.OutcomeFavorPayer, escrow.OutcomeFavorRecipient, escrow.OutcomeSplit:
		default:
			return fmt.Errorf("%w: %q", escrow.ErrInvalidOutcome, tx.Outcome)
		}
	case types.TxTypeSupersede:
		if tx.Instance == ([32]byte{}) || tx.NewJudge == ([20]byte{}) {
			return fmt.Errorf("%w: supersede needs instance and new judge", errMissingFields)
		}
	default:
		return fmt.Errorf("%w: 0x%02x", errUnknownTxType, byte(tx.Type))
	}
	return nil
}

// orderBlock reorders a batch so that, per instance, dispute transactions
// apply before approvals. Everything else keeps submission order; instances
// are independent, so only same-instance races matter.
func orderBlock(txs []*types.Transaction) []*types.Transaction {
	ordered := make([]*types.Transaction, len(txs))
	copy(ordered, txs)
	byInstance := make(map[[32]byte][]int)
	for i, tx := range ordered {
		if tx.Type == types.TxTypeDispute || tx.Type == types.TxTypeApprove {
			byInstance[tx.Instance] = append(byInstance[tx.Instance], i)
		}
	}
	for _, slots := range byInstance {
		if len(slots) < 2 {
			continue
		}
		resorted := make([]*types.Transaction, 0, len(slots))
		for _, i := range slots {
			if ordered[i].Type == types.TxTypeDispute {
				resorted = append(resorted, ordered[i])
			}
		}
		for _, i := range slots {
			if ordered[i].Type == types.TxTypeApprove {
				resorted = append(resorted, ordered[i])
			}
		}
		for j, i := range slots {
			ordered[i] = resorted[j]
		}
	}
	return ordered
}

// CommitBlock drains the mempool, applies the batch in order and writes one
// receipt per transaction. An empty mempool still advances the clock but not
// the height.
func (n *Node) CommitBlock() (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	blockTime := n.chainTime()
	if len(n.mempool) == 0 {
		return n.height, nil
	}
	batch := orderBlock(n.mempool)
	n.mempool = nil
	n.metrics.SetMempoolDepth(0)

	height := n.height + 1
	for _, tx := range batch {
		hash, err := tx.Hash()
		if err != nil {
			return n.height, fmt.Errorf("node: hash transaction: %w", err)
		}
		op, applyErr := n.applyTx(tx)
		receipt := storedReceipt{Status: ReceiptStatusOK, Height: height, Time: uint64(blockTime)}
		result := "ok"
		if applyErr != nil {
			receipt.Status = ReceiptStatusFailed
			receipt.Info = applyErr.Error()
			result = "failed"
			n.logger.Warn("transaction rejected", "op", op, "tx", fmt.Sprintf("%x", hash[:8]), "err", applyErr)
		} else {
			n.logger.Info("transaction applied", "op", op, "tx", fmt.Sprintf("%x", hash[:8]), "height", height)
		}
		n.metrics.ObserveOp(op, result)
		if err := n.manager.KVPut(receiptKey(hash), &receipt); err != nil {
			return n.height, fmt.Errorf("node: store receipt: %w", err)
		}
		delete(n.seen, hash)
	}

	n.height = height
	n.lastBlockTime = blockTime
	tip := chainTip{Height: height, LastTime: uint64(blockTime)}
	if err := n.manager.KVPut(chainHeightKey, &tip); err != nil {
		return n.height, fmt.Errorf("node: store chain tip: %w", err)
	}
	n.metrics.SetBlockHeight(height)
	return height, nil
}

// applyTx dispatches one transaction into the engine and maintains the live
// instance gauge across phase transitions.
func (n *Node) applyTx(tx *types.Transaction) (string, error) {
	wasLive := false
	if tx.Instance != ([32]byte{}) {
		if inst, err := n.engine.Get(tx.Instance); err == nil {
			wasLive = !inst.Phase.Terminal()
		}
	}
	var (
		op  string
		err error
	)
	switch tx.Type {
	case types.TxTypeRegisterEscrow:
		op = "register"
		existed := false
		if token, normErr := escrow.NormalizeToken(tx.Token); normErr == nil {
			if _, getErr := n.engine.Get(escrow.InstanceID(tx.From, token, tx.Nonce)); getErr == nil {
				existed = true
			}
		}
		_, err = n.engine.Register(tx.From, tx.Token, tx.OrderDuration, tx.JudgeDuration, escrow.Amounts{
			Order:            tx.OrderAmount,
			RecipientDeposit: tx.RecipientDeposit,
			JudgeDeposit:     tx.JudgeDeposit,
			Fee:              tx.Fee,
			Refund:           tx.Refund,
		}, escrow.ResolutionPolicy{
			ForfeitRecipientDeposit: tx.ForfeitDeposit,
			SplitPayerBps:           tx.SplitPayerBps,
		}, tx.Nonce)
		if err == nil && !existed {
			n.metrics.AddLiveInstances(1)
		}
		return op, err
	case types.TxTypeDeposit:
		op = "deposit"
		role, parseErr := escrow.ParseRole(tx.Role)
		if parseErr != nil {
			return op, parseErr
		}
		err = n.engine.Deposit(tx.Instance, role, tx.From, tx.Amount)
	case types.TxTypeCommit:
		op = "commit"
		err = n.engine.Commit(tx.Instance, tx.From)
	case types.TxTypeApprove:
		op = "approve"
		err = n.engine.Approve(tx.Instance, tx.From)
	case types.TxTypeDispute:
		op = "dispute"
		err = n.engine.RaiseDispute(tx.Instance, tx.From)
	case types.TxTypeDecide:
		op = "decide"
		err = n.engine.Decide(tx.Instance, tx.From, tx.Outcome)
	case types.TxTypeSupersede:
		op = "supersede"
		err = n.engine.Supersede(tx.Instance, tx.From, tx.NewJudge)
	default:
		return "unknown", fmt.Errorf("%w: 0x%02x", errUnknownTxType, byte(tx.Type))
	}
	if wasLive {
		if inst, getErr := n.engine.Get(tx.Instance); getErr == nil && inst.Phase.Terminal() {
			n.metrics.AddLiveInstances(-1)
		}
	}
	return op, err
}

// Run commits blocks on the supplied interval until the context ends.
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := n.CommitBlock(); err != nil {
				n.logger.Error("commit block", "err", err)
			}
		}
	}
}

// EscrowGet returns the stored instance together with its token metadata.
func (n *Node) EscrowGet(id [32]byte) (*escrow.Instance, *state.TokenMetadata, error) {
	inst, err := n.engine.Get(id)
	if err != nil {
		return nil, nil, err
	}
	meta, ok, err := n.manager.Token(inst.Token)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return inst, nil, nil
	}
	return inst, meta, nil
}

// EscrowBalance returns the confirmed bucket balance for one role.
func (n *Node) EscrowBalance(id [32]byte, role escrow.Role) (*big.Int, error) {
	return n.engine.BalanceOf(id, role)
}

// ReceiptByHash returns the stored confirmation result for a transaction.
func (n *Node) ReceiptByHash(hash [32]byte) (*Receipt, error) {
	var stored storedReceipt
	ok, err := n.manager.KVGet(receiptKey(hash), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrReceiptUnknown
	}
	return &Receipt{
		TxHash: hash,
		Status: stored.Status,
		Info:   stored.Info,
		Height: stored.Height,
		Time:   int64(stored.Time),
	}, nil
}

func receiptKey(hash [32]byte) []byte {
	key := make([]byte, len(receiptPrefix)+len(hash))
	copy(key, receiptPrefix)
	copy(key[len(receiptPrefix):], hash[:])
	return key
}
