package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"escrownet/core"
	"escrownet/core/state"
	"escrownet/core/types"
	"escrownet/crypto"
	"escrownet/native/escrow"
	"escrownet/storage"
)

const testBearer = "local-test-token"

type rpcEnv struct {
	server   *httptest.Server
	node     *core.Node
	now      int64
	maker    crypto.Address
	payer    crypto.Address
	recp     crypto.Address
	treasury crypto.Address
}

func addressOf(fill byte) crypto.Address {
	raw := make([]byte, 20)
	raw[0] = fill
	return crypto.NewAddress(crypto.EscrowPrefix, raw)
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	require.NoError(t, manager.RegisterToken("ESC", "Escrow Coin", 8))

	env := &rpcEnv{
		now:      1_700_000_000,
		maker:    addressOf(0x01),
		payer:    addressOf(0x02),
		recp:     addressOf(0x03),
		treasury: addressOf(0xFF),
	}
	for _, addr := range []crypto.Address{env.maker, env.payer, env.recp} {
		account := types.NewAccount()
		account.SetBalance("ESC", big.NewInt(100))
		require.NoError(t, manager.PutAccount(addr.Bytes(), account))
	}

	node, err := core.NewNode(manager, env.treasury.Array())
	require.NoError(t, err)
	node.SetNowFunc(func() int64 { return env.now })
	env.node = node

	env.server = httptest.NewServer(NewServer(node, testBearer))
	t.Cleanup(env.server.Close)
	return env
}

type rpcResult struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (env *rpcEnv) call(t *testing.T, method string, params interface{}) *rpcResult {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.server.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testBearer)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return &out
}

func (env *rpcEnv) callOK(t *testing.T, method string, params interface{}, out interface{}) {
	t.Helper()
	res := env.call(t, method, params)
	require.Nil(t, res.Error, "method %s: %+v", method, res.Error)
	require.NoError(t, json.Unmarshal(res.Result, out))
}

func (env *rpcEnv) register(t *testing.T) string {
	t.Helper()
	var result submitResult
	env.callOK(t, "escrow_register", registerParams{
		From:             env.maker.String(),
		Token:            "ESC",
		OrderDuration:    600,
		JudgeDuration:    600,
		OrderAmount:      "10",
		RecipientDeposit: "2",
		JudgeDeposit:     "3",
		Fee:              "4",
		Refund:           "5",
		Nonce:            1,
	}, &result)
	require.NotEmpty(t, result.TxHash)

	_, err := env.node.CommitBlock()
	require.NoError(t, err)

	var receipt receiptResult
	env.callOK(t, "escrow_receipt", receiptParams{Hash: result.TxHash}, &receipt)
	require.Equal(t, core.ReceiptStatusOK, receipt.Status, receipt.Info)

	var get struct {
		ID string `json:"id"`
	}
	// Derive the id by reading the registered instance back.
	id := instanceIDHex(env.maker)
	env.callOK(t, "escrow_get", instanceQueryParams{Instance: id}, &get)
	require.Equal(t, id, get.ID)
	return id
}

func instanceIDHex(maker crypto.Address) string {
	id := escrow.InstanceID(maker.Array(), "ESC", 1)
	return "0x" + hex.EncodeToString(id[:])
}

func TestAuthRequired(t *testing.T) {
	env := newRPCEnv(t)
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"chain_height"}`)
	resp, err := http.Post(env.server.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	require.Equal(t, codeUnauthorized, out.Error.Code)
}

func TestMalformedAndUnknownRequests(t *testing.T) {
	env := newRPCEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.server.URL, bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testBearer)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out rpcResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	require.Equal(t, codeParseError, out.Error.Code)

	res := env.call(t, "escrow_unknown", nil)
	require.NotNil(t, res.Error)
	require.Equal(t, codeMethodNotFound, res.Error.Code)
}

func TestRegisterAndGet(t *testing.T) {
	env := newRPCEnv(t)
	id := env.register(t)

	var inst instanceResult
	env.callOK(t, "escrow_get", instanceQueryParams{Instance: id}, &inst)
	require.Equal(t, "created", inst.Phase)
	require.Equal(t, env.maker.String(), inst.Maker)
	require.Equal(t, env.maker.String(), inst.Judge, "judge defaults to the maker")
	require.Empty(t, inst.Payer)
	require.Equal(t, "10", inst.OrderAmount)
	require.Equal(t, uint8(8), inst.Decimals)
	require.Equal(t, env.now+600, inst.PhaseDeadline)
}

func TestDepositLifecycleOverRPC(t *testing.T) {
	env := newRPCEnv(t)
	id := env.register(t)

	for _, deposit := range []depositParams{
		{From: env.payer.String(), Instance: id, Role: "payer", Amount: "30"},
		{From: env.recp.String(), Instance: id, Role: "recipient", Amount: "30"},
		{From: env.maker.String(), Instance: id, Role: "judge", Amount: "30"},
	} {
		var result submitResult
		env.callOK(t, "escrow_deposit", deposit, &result)
	}
	_, err := env.node.CommitBlock()
	require.NoError(t, err)

	var inst instanceResult
	env.callOK(t, "escrow_get", instanceQueryParams{Instance: id}, &inst)
	require.Equal(t, "funded", inst.Phase)
	require.Equal(t, env.payer.String(), inst.Payer)
	require.Equal(t, env.recp.String(), inst.Recipient)

	var balance balanceResult
	env.callOK(t, "escrow_balance", balanceParams{Instance: id, Role: "payer"}, &balance)
	require.Equal(t, "30", balance.Balance)

	var commit submitResult
	env.callOK(t, "escrow_commit", instanceActionParams{From: env.recp.String(), Instance: id}, &commit)
	var approve submitResult
	env.callOK(t, "escrow_approve", instanceActionParams{From: env.payer.String(), Instance: id}, &approve)
	_, err = env.node.CommitBlock()
	require.NoError(t, err)

	env.callOK(t, "escrow_get", instanceQueryParams{Instance: id}, &inst)
	require.Equal(t, "settled", inst.Phase)

	var receipt receiptResult
	env.callOK(t, "escrow_receipt", receiptParams{Hash: approve.TxHash}, &receipt)
	require.Equal(t, core.ReceiptStatusOK, receipt.Status, receipt.Info)
}

func TestParamValidationErrors(t *testing.T) {
	env := newRPCEnv(t)

	res := env.call(t, "escrow_register", registerParams{From: "not-an-address", Token: "ESC", OrderDuration: 600, JudgeDuration: 600, OrderAmount: "10"})
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)

	res = env.call(t, "escrow_get", instanceQueryParams{Instance: "0x1234"})
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)

	res = env.call(t, "escrow_get", instanceQueryParams{Instance: "0x" + strings.Repeat("ab", 32)})
	require.NotNil(t, res.Error)
	require.Equal(t, codeNotFound, res.Error.Code)

	res = env.call(t, "escrow_balance", balanceParams{Instance: instanceIDHex(env.maker), Role: "maker"})
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)

	res = env.call(t, "escrow_receipt", receiptParams{Hash: "zz"})
	require.NotNil(t, res.Error)
	require.Equal(t, codeInvalidParams, res.Error.Code)
}

func TestChainHeight(t *testing.T) {
	env := newRPCEnv(t)
	var height heightResult
	env.callOK(t, "chain_height", nil, &height)
	require.Equal(t, uint64(0), height.Height)
	env.register(t)
	env.callOK(t, "chain_height", nil, &height)
	require.Equal(t, uint64(1), height.Height)
}
