package types

import (
	"crypto/sha256"
	"encoding/json"
	"math/big"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeRegisterEscrow TxType = 0x01 // Maker registers a new escrow instance
	TxTypeDeposit        TxType = 0x02 // A role deposits tokens into an instance
	TxTypeCommit         TxType = 0x03 // Recipient commits the work/delivery step
	TxTypeApprove        TxType = 0x04 // Payer approves and settles to the recipient
	TxTypeDispute        TxType = 0x05 // Payer or recipient raises a dispute
	TxTypeDecide         TxType = 0x06 // Judge decides a dispute outcome
	TxTypeSupersede      TxType = 0x07 // Maker replaces the judge
)

// Transaction is the submission envelope for every escrow operation. It is a
// flat record: only the fields relevant to its Type are populated. Callers
// submit the envelope and later poll the receipt for the confirmation result.
type Transaction struct {
	Type     TxType   `json:"type"`
	Nonce    uint64   `json:"nonce"`
	From     [20]byte `json:"from"`
	Instance [32]byte `json:"instance,omitempty"`

	// Deposit fields.
	Role   string   `json:"role,omitempty"`
	Amount *big.Int `json:"amount,omitempty"`

	// Decide fields.
	Outcome string `json:"outcome,omitempty"`

	// Supersede fields.
	NewJudge [20]byte `json:"newJudge,omitempty"`

	// Register fields.
	Token            string   `json:"token,omitempty"`
	OrderDuration    int64    `json:"orderDuration,omitempty"`
	JudgeDuration    int64    `json:"judgeDuration,omitempty"`
	OrderAmount      *big.Int `json:"orderAmount,omitempty"`
	RecipientDeposit *big.Int `json:"recipientDeposit,omitempty"`
	JudgeDeposit     *big.Int `json:"judgeDeposit,omitempty"`
	Fee              *big.Int `json:"fee,omitempty"`
	Refund           *big.Int `json:"refund,omitempty"`
	ForfeitDeposit   bool     `json:"forfeitDeposit,omitempty"`
	SplitPayerBps    uint32   `json:"splitPayerBps,omitempty"`
}

// Hash derives the submission identifier from the canonical JSON encoding of
// the envelope. Two submissions with identical fields and nonce collapse to
// the same hash, which keeps resubmission idempotent.
func (tx *Transaction) Hash() ([32]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}
