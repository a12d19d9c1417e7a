package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"escrownet/core/types"
	"escrownet/crypto"
	"escrownet/native/escrow"
)

type registerParams struct {
	From             string `json:"from"`
	Token            string `json:"token"`
	OrderDuration    int64  `json:"orderDuration"`
	JudgeDuration    int64  `json:"judgeDuration"`
	OrderAmount      string `json:"orderAmount"`
	RecipientDeposit string `json:"recipientDeposit"`
	JudgeDeposit     string `json:"judgeDeposit"`
	Fee              string `json:"fee"`
	Refund           string `json:"refund"`
	ForfeitDeposit   bool   `json:"forfeitDeposit"`
	SplitPayerBps    uint32 `json:"splitPayerBps"`
	Nonce            uint64 `json:"nonce"`
}

type depositParams struct {
	From     string `json:"from"`
	Instance string `json:"instance"`
	Role     string `json:"role"`
	Amount   string `json:"amount"`
}

type instanceActionParams struct {
	From     string `json:"from"`
	Instance string `json:"instance"`
}

type decideParams struct {
	From     string `json:"from"`
	Instance string `json:"instance"`
	Outcome  string `json:"outcome"`
}

type supersedeParams struct {
	From     string `json:"from"`
	Instance string `json:"instance"`
	NewJudge string `json:"newJudge"`
}

type instanceQueryParams struct {
	Instance string `json:"instance"`
}

type balanceParams struct {
	Instance string `json:"instance"`
	Role     string `json:"role"`
}

type receiptParams struct {
	Hash string `json:"hash"`
}

type submitResult struct {
	TxHash string `json:"txHash"`
}

type heightResult struct {
	Height uint64 `json:"height"`
}

type balanceResult struct {
	Instance string `json:"instance"`
	Role     string `json:"role"`
	Balance  string `json:"balance"`
}

type receiptResult struct {
	TxHash string `json:"txHash"`
	Status string `json:"status"`
	Info   string `json:"info,omitempty"`
	Height uint64 `json:"height"`
	Time   int64  `json:"time"`
}

// instanceResult is the external view of an escrow instance: bech32 addresses,
// decimal string amounts, and the token's display decimals.
type instanceResult struct {
	ID               string `json:"id"`
	Token            string `json:"token"`
	Decimals         uint8  `json:"decimals"`
	Phase            string `json:"phase"`
	Maker            string `json:"maker"`
	Judge            string `json:"judge"`
	Payer            string `json:"payer,omitempty"`
	Recipient        string `json:"recipient,omitempty"`
	OrderDuration    int64  `json:"orderDuration"`
	JudgeDuration    int64  `json:"judgeDuration"`
	OrderAmount      string `json:"orderAmount"`
	RecipientDeposit string `json:"recipientDeposit"`
	JudgeDeposit     string `json:"judgeDeposit"`
	Fee              string `json:"fee"`
	Refund           string `json:"refund"`
	ForfeitDeposit   bool   `json:"forfeitDeposit"`
	SplitPayerBps    uint32 `json:"splitPayerBps"`
	DisputedBy       string `json:"disputedBy,omitempty"`
	CreatedAt        int64  `json:"createdAt"`
	PhaseDeadline    int64  `json:"phaseDeadline,omitempty"`
}

func decodeParams(raw json.RawMessage, out interface{}) *rpcError {
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "params required"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "malformed params: " + err.Error()}
	}
	return nil
}

func parseAddress(field, value string) ([20]byte, *rpcError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s: %v", field, err)}
	}
	return addr.Array(), nil
}

func parseInstanceID(value string) ([32]byte, *rpcError) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, &rpcError{Code: codeInvalidParams, Message: "instance must be a 32-byte hex identifier"}
	}
	var id [32]byte
	copy(id[:], raw)
	return id, nil
}

func parseHash(value string) ([32]byte, *rpcError) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, &rpcError{Code: codeInvalidParams, Message: "hash must be a 32-byte hex value"}
	}
	var hash [32]byte
	copy(hash[:], raw)
	return hash, nil
}

func parseAmount(field, value string) (*big.Int, *rpcError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: field + ": invalid decimal amount"}
	}
	return amount, nil
}

func (s *Server) submit(tx *types.Transaction) (interface{}, *rpcError) {
	hash, err := s.node.SubmitTx(tx)
	if err != nil {
		return nil, errToRPC(err)
	}
	return submitResult{TxHash: "0x" + hex.EncodeToString(hash[:])}, nil
}

func (s *Server) handleRegister(raw json.RawMessage) (interface{}, *rpcError) {
	var params registerParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amounts := make([]*big.Int, 5)
	for i, field := range []struct {
		name  string
		value string
	}{
		{"orderAmount", params.OrderAmount},
		{"recipientDeposit", params.RecipientDeposit},
		{"judgeDeposit", params.JudgeDeposit},
		{"fee", params.Fee},
		{"refund", params.Refund},
	} {
		amount, rpcErr := parseAmount(field.name, field.value)
		if rpcErr != nil {
			return nil, rpcErr
		}
		amounts[i] = amount
	}
	return s.submit(&types.Transaction{
		Type:             types.TxTypeRegisterEscrow,
		Nonce:            params.Nonce,
		From:             from,
		Token:            params.Token,
		OrderDuration:    params.OrderDuration,
		JudgeDuration:    params.JudgeDuration,
		OrderAmount:      amounts[0],
		RecipientDeposit: amounts[1],
		JudgeDeposit:     amounts[2],
		Fee:              amounts[3],
		Refund:           amounts[4],
		ForfeitDeposit:   params.ForfeitDeposit,
		SplitPayerBps:    params.SplitPayerBps,
	})
}

func (s *Server) handleDeposit(raw json.RawMessage) (interface{}, *rpcError) {
	var params depositParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount("amount", params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.submit(&types.Transaction{
		Type:     types.TxTypeDeposit,
		From:     from,
		Instance: id,
		Role:     params.Role,
		Amount:   amount,
	})
}

func (s *Server) instanceAction(raw json.RawMessage, txType types.TxType) (interface{}, *rpcError) {
	var params instanceActionParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.submit(&types.Transaction{Type: txType, From: from, Instance: id})
}

func (s *Server) handleCommit(raw json.RawMessage) (interface{}, *rpcError) {
	return s.instanceAction(raw, types.TxTypeCommit)
}

func (s *Server) handleApprove(raw json.RawMessage) (interface{}, *rpcError) {
	return s.instanceAction(raw, types.TxTypeApprove)
}

func (s *Server) handleDispute(raw json.RawMessage) (interface{}, *rpcError) {
	return s.instanceAction(raw, types.TxTypeDispute)
}

func (s *Server) handleDecide(raw json.RawMessage) (interface{}, *rpcError) {
	var params decideParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.submit(&types.Transaction{
		Type:     types.TxTypeDecide,
		From:     from,
		Instance: id,
		Outcome:  strings.TrimSpace(params.Outcome),
	})
}

func (s *Server) handleSupersede(raw json.RawMessage) (interface{}, *rpcError) {
	var params supersedeParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddress("from", params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	newJudge, rpcErr := parseAddress("newJudge", params.NewJudge)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return s.submit(&types.Transaction{
		Type:     types.TxTypeSupersede,
		From:     from,
		Instance: id,
		NewJudge: newJudge,
	})
}

func (s *Server) handleGet(raw json.RawMessage) (interface{}, *rpcError) {
	var params instanceQueryParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	inst, meta, err := s.node.EscrowGet(id)
	if err != nil {
		return nil, errToRPC(err)
	}
	result := instanceResult{
		ID:               "0x" + hex.EncodeToString(inst.ID[:]),
		Token:            inst.Token,
		Phase:            inst.Phase.String(),
		Maker:            encodeAddress(inst.Maker),
		Judge:            encodeAddress(inst.Judge),
		OrderDuration:    inst.OrderDuration,
		JudgeDuration:    inst.JudgeDuration,
		OrderAmount:      inst.Amounts.Order.String(),
		RecipientDeposit: inst.Amounts.RecipientDeposit.String(),
		JudgeDeposit:     inst.Amounts.JudgeDeposit.String(),
		Fee:              inst.Amounts.Fee.String(),
		Refund:           inst.Amounts.Refund.String(),
		ForfeitDeposit:   inst.Policy.ForfeitRecipientDeposit,
		SplitPayerBps:    inst.Policy.SplitPayerBps,
		CreatedAt:        inst.CreatedAt,
		PhaseDeadline:    inst.PhaseDeadline,
	}
	if meta != nil {
		result.Decimals = meta.Decimals
	}
	if inst.Payer != ([20]byte{}) {
		result.Payer = encodeAddress(inst.Payer)
	}
	if inst.Recipient != ([20]byte{}) {
		result.Recipient = encodeAddress(inst.Recipient)
	}
	if inst.DisputedBy.Valid() {
		result.DisputedBy = inst.DisputedBy.String()
	}
	return result, nil
}

func (s *Server) handleBalance(raw json.RawMessage) (interface{}, *rpcError) {
	var params balanceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	id, rpcErr := parseInstanceID(params.Instance)
	if rpcErr != nil {
		return nil, rpcErr
	}
	role, err := escrow.ParseRole(params.Role)
	if err != nil {
		return nil, errToRPC(err)
	}
	balance, err := s.node.EscrowBalance(id, role)
	if err != nil {
		return nil, errToRPC(err)
	}
	return balanceResult{
		Instance: "0x" + hex.EncodeToString(id[:]),
		Role:     role.String(),
		Balance:  balance.String(),
	}, nil
}

func (s *Server) handleReceipt(raw json.RawMessage) (interface{}, *rpcError) {
	var params receiptParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	hash, rpcErr := parseHash(params.Hash)
	if rpcErr != nil {
		return nil, rpcErr
	}
	receipt, err := s.node.ReceiptByHash(hash)
	if err != nil {
		return nil, errToRPC(err)
	}
	return receiptResult{
		TxHash: "0x" + hex.EncodeToString(receipt.TxHash[:]),
		Status: receipt.Status,
		Info:   receipt.Info,
		Height: receipt.Height,
		Time:   receipt.Time,
	}, nil
}

func encodeAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.EscrowPrefix, addr[:]).String()
}
